package pattern

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/atena-edu/enem-helper/internal/exercise"
)

// Occurrence is one matched span. Start and End are half-open byte offsets
// into the matched text.
type Occurrence struct {
	Kind       Kind
	Pattern    string
	Match      string
	Normalized string
	Start      int
	End        int
	Confidence float64

	Number int                  // QuestionNumber
	Letter string               // Alternative
	Body   string               // Alternative, first-line body
	Area   exercise.SubjectArea // SubjectArea
}

// Confirmed reports whether the occurrence came from a high-confidence definition.
func (o Occurrence) Confirmed() bool {
	return o.Confidence >= ConfirmedConfidence
}

// Matcher applies a Library to text. It holds no mutable state.
type Matcher struct {
	lib *Library
}

// NewMatcher creates a matcher over lib.
func NewMatcher(lib *Library) *Matcher {
	return &Matcher{lib: lib}
}

// Library returns the matcher's pattern library.
func (m *Matcher) Library() *Library {
	return m.lib
}

// Match returns occurrences of every kind, ordered by start offset.
func (m *Matcher) Match(text string) []Occurrence {
	return m.MatchKind(text, Kinds...)
}

// MatchKind returns occurrences of the given kinds, ordered by start offset.
// Within a kind, a span claimed by a higher-priority definition is not
// matched again by a lower-priority one; different kinds may overlap.
func (m *Matcher) MatchKind(text string, kinds ...Kind) []Occurrence {
	var out []Occurrence
	for _, k := range kinds {
		var claimed [][2]int
		for _, def := range m.lib.byKind[k] {
			for _, loc := range def.Expr.FindAllStringSubmatchIndex(text, -1) {
				start, end := loc[0], loc[1]
				if overlapsAny(claimed, start, end) {
					continue
				}
				occ, ok := build(def, text, loc)
				if !ok {
					continue
				}
				claimed = append(claimed, [2]int{start, end})
				out = append(out, occ)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}

func build(def Definition, text string, loc []int) (Occurrence, bool) {
	occ := Occurrence{
		Kind:       def.Kind,
		Pattern:    def.Name,
		Match:      text[loc[0]:loc[1]],
		Start:      loc[0],
		End:        loc[1],
		Confidence: def.Confidence,
	}

	switch def.Kind {
	case KindQuestionNumber:
		n, err := strconv.Atoi(group(text, loc, 1))
		if err != nil {
			return Occurrence{}, false
		}
		occ.Number = n
		occ.Normalized = fmt.Sprintf("QUESTÃO %d", n)
	case KindAlternative:
		occ.Letter = group(text, loc, 1)
		occ.Body = strings.Join(strings.Fields(group(text, loc, 2)), " ")
		occ.Normalized = strings.TrimSpace(occ.Letter + ") " + occ.Body)
	case KindSubjectArea:
		occ.Area = def.Area
		occ.Normalized = string(def.Area)
	default:
		occ.Normalized = def.Canonical
	}
	return occ, true
}

func group(text string, loc []int, i int) string {
	if 2*i+1 >= len(loc) || loc[2*i] < 0 {
		return ""
	}
	return text[loc[2*i]:loc[2*i+1]]
}

func overlapsAny(claimed [][2]int, start, end int) bool {
	for _, c := range claimed {
		if start < c[1] && c[0] < end {
			return true
		}
	}
	return false
}

// Filter returns the occurrences of kind k.
func Filter(occs []Occurrence, k Kind) []Occurrence {
	var out []Occurrence
	for _, o := range occs {
		if o.Kind == k {
			out = append(out, o)
		}
	}
	return out
}
