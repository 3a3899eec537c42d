// Package splitter separates a question's statement from its lettered
// alternatives.
package splitter

import (
	"regexp"
	"strings"

	"github.com/atena-edu/enem-helper/internal/pattern"
)

// MinAlternatives is the smallest chain a strategy must find to succeed.
const MinAlternatives = 3

// Marker is the start of one alternative inside a question span.
type Marker struct {
	Letter     string
	Start      int
	Confidence float64
}

// Candidate is an alternative sliced out of a span.
type Candidate struct {
	Letter     string
	Body       string
	Confidence float64
}

// Result is the outcome of a split. On failure Alternatives is empty,
// Statement holds the whole span and Partial counts the markers of the best
// chain any strategy found.
type Result struct {
	Statement    string
	Alternatives []Candidate
	Strategy     string
	Command      string
	Partial      int
}

// Strategy locates alternative markers in a span, returning its best chain of
// strictly increasing letters. A chain shorter than MinAlternatives means
// no match.
type Strategy interface {
	Name() string
	Locate(span string) []Marker
}

// Splitter tries its strategies in order until one yields a usable split.
type Splitter struct {
	matcher    *pattern.Matcher
	strategies []Strategy
}

// New returns a splitter with the marker strategy followed by the line scan.
func New(m *pattern.Matcher) *Splitter {
	return NewWithStrategies(m, &MarkerStrategy{Matcher: m}, LineScanStrategy{})
}

// NewWithStrategies returns a splitter with an explicit strategy order.
func NewWithStrategies(m *pattern.Matcher, strategies ...Strategy) *Splitter {
	return &Splitter{matcher: m, strategies: strategies}
}

// Split separates span into statement and alternatives.
func (s *Splitter) Split(span string) (Result, bool) {
	partial := 0
	for _, st := range s.strategies {
		chain := st.Locate(span)
		if len(chain) < MinAlternatives {
			partial = max(partial, len(chain))
			continue
		}
		res := s.assemble(span, chain)
		if s.strayChain(res.Statement) >= len(chain) {
			partial = max(partial, len(chain))
			continue
		}
		res.Strategy = st.Name()
		return res, true
	}
	return Result{Statement: strings.TrimSpace(span), Partial: partial}, false
}

func (s *Splitter) assemble(span string, chain []Marker) Result {
	res := Result{Statement: s.cleanStatement(span[:chain[0].Start])}
	for i, mk := range chain {
		end := len(span)
		if i+1 < len(chain) {
			end = chain[i+1].Start
		}
		body := collapse(stripMarker(span[mk.Start:end]))
		res.Alternatives = append(res.Alternatives, Candidate{
			Letter:     mk.Letter,
			Body:       body,
			Confidence: BodyConfidence(body),
		})
	}

	best := -1.0
	for _, o := range s.matcher.MatchKind(res.Statement, pattern.KindCommand) {
		if o.Confidence > best {
			best = o.Confidence
			res.Command = o.Normalized
		}
	}
	return res
}

// strayChain returns the length of the best letter chain formed by the
// confirmed alternative markers left in a statement. A statement chain at
// least as long as the selected one means the split picked the wrong block;
// a shorter one is an earlier partial sequence or an abbreviation such as
// "D. João".
func (s *Splitter) strayChain(statement string) int {
	var markers []Marker
	for _, o := range s.matcher.MatchKind(statement, pattern.KindAlternative) {
		if o.Confirmed() {
			markers = append(markers, Marker{Letter: o.Letter, Start: o.Start, Confidence: o.Confidence})
		}
	}
	return len(bestChain(markers))
}

var (
	reMarker   = regexp.MustCompile(`^\s*\(?[A-E](?:\)|\.|[ \t]*[-–:|•])?[ \t]*`)
	reAdaptado = regexp.MustCompile(`(?i)[(\[]\s*adaptad[oa]\s*[)\]]\.?`)
	reCitation = regexp.MustCompile(`(?i)^(?:dispon[íi]vel\s+em|acesso\s+em|acessad[oa]\s+em|fonte\s*:|in\s*:)`)
	reURL      = regexp.MustCompile(`(?i)https?://|www\.`)
	reAuthor   = regexp.MustCompile(`^[A-ZÀ-Ý]{3,}(?:\s+[A-ZÀ-Ý]+)*,\s+[A-ZÀ-Ý][a-zà-ÿ]*\.`)
	reBlank    = regexp.MustCompile(`\n{3,}`)
)

// cleanStatement drops citation and instruction lines and "(adaptado)" markers.
func (s *Splitter) cleanStatement(text string) string {
	text = reAdaptado.ReplaceAllString(text, "")
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if reCitation.MatchString(line) || reURL.MatchString(line) || reAuthor.MatchString(line) {
			continue
		}
		if len(s.matcher.MatchKind(line, pattern.KindInstruction)) > 0 {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.Join(kept, "\n")
	out = reBlank.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func stripMarker(s string) string {
	return reMarker.ReplaceAllString(s, "")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
