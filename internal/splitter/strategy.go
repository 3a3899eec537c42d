package splitter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/atena-edu/enem-helper/internal/noise"
	"github.com/atena-edu/enem-helper/internal/pattern"
)

// MarkerStrategy uses the matcher's Alternative occurrences, preferring a
// chain built only from confirmed occurrences.
type MarkerStrategy struct {
	Matcher *pattern.Matcher
}

func (MarkerStrategy) Name() string { return "pattern-markers" }

func (s *MarkerStrategy) Locate(span string) []Marker {
	var all, confirmed []Marker
	for _, o := range s.Matcher.MatchKind(span, pattern.KindAlternative) {
		mk := Marker{Letter: o.Letter, Start: o.Start, Confidence: o.Confidence}
		all = append(all, mk)
		if o.Confirmed() {
			confirmed = append(confirmed, mk)
		}
	}
	best := bestChain(confirmed)
	if len(best) >= MinAlternatives {
		return best
	}
	if loose := bestChain(all); len(loose) > len(best) {
		return loose
	}
	return best
}

// LineScanStrategy looks for lines that begin with a bare letter token,
// including a letter alone on its line with the body below it.
type LineScanStrategy struct{}

const lineScanConfidence = 0.6

var reLineLetter = regexp.MustCompile(`^[ \t]*\(?([A-E])(?:[).:|•–-]|\s|$)`)

func (LineScanStrategy) Name() string { return "line-scan" }

func (LineScanStrategy) Locate(span string) []Marker {
	var markers []Marker
	offset := 0
	for _, line := range strings.SplitAfter(span, "\n") {
		if m := reLineLetter.FindStringSubmatch(line); m != nil {
			markers = append(markers, Marker{Letter: m[1], Start: offset, Confidence: lineScanConfidence})
		}
		offset += len(line)
	}
	return bestChain(markers)
}

// bestChain picks the strictly increasing letter chain with the most
// markers, then the highest confidence sum, then the latest first marker.
// markers must be ordered by Start.
func bestChain(markers []Marker) []Marker {
	n := len(markers)
	if n == 0 {
		return nil
	}
	length := make([]int, n)
	score := make([]float64, n)
	first := make([]int, n)
	prev := make([]int, n)

	for i := range markers {
		length[i], score[i], first[i], prev[i] = 1, markers[i].Confidence, i, -1
		for j := 0; j < i; j++ {
			if markers[j].Letter >= markers[i].Letter {
				continue
			}
			l, s, f := length[j]+1, score[j]+markers[i].Confidence, first[j]
			if better(l, s, markers[f].Start, length[i], score[i], markers[first[i]].Start) {
				length[i], score[i], first[i], prev[i] = l, s, f, j
			}
		}
	}

	end := 0
	for i := 1; i < n; i++ {
		if better(length[i], score[i], markers[first[i]].Start, length[end], score[end], markers[first[end]].Start) {
			end = i
		}
	}

	chain := make([]Marker, length[end])
	for i, k := end, length[end]-1; i >= 0; i, k = prev[i], k-1 {
		chain[k] = markers[i]
	}
	return chain
}

func better(l1 int, s1 float64, f1 int, l2 int, s2 float64, f2 int) bool {
	const eps = 1e-9
	switch {
	case l1 != l2:
		return l1 > l2
	case s1 > s2+eps:
		return true
	case s1 < s2-eps:
		return false
	default:
		return f1 > f2
	}
}

var (
	reFormulaToken = regexp.MustCompile(`^(?:\d+(?:,\d+)?|\d*(?:[A-Z][a-z]?\d*|[()\[\]]\d*)+(?:\^?\d*[+−-])?|[+−=→⇌⇄×·-])$`)
	reOperator     = regexp.MustCompile(`^[+−=→⇌⇄×·-]$`)
)

// isFormula reports whether body is a chemical or arithmetic expression such
// as "CH4 + 2 O2 → CO2 + 2 H2O": every token is an element group, a
// coefficient or an operator, and at least one operator joins them.
func isFormula(body string) bool {
	toks := strings.Fields(body)
	operator := false
	for _, tok := range toks {
		if !reFormulaToken.MatchString(tok) {
			return false
		}
		if reOperator.MatchString(tok) {
			operator = true
		}
	}
	return operator && len(toks) >= 3
}

var reNumericAnswer = regexp.MustCompile(`^(?:R\$\s*)?[-+−]?\s*\d+(?:[ .]\d{3})*(?:,\d+)?(?:\s*/\s*\d+)?(?:\s*(?:%|[a-zA-Zµ°]{1,4}[²³]?))?$`)

// Confidence levels for alternative bodies that fail the content check.
const (
	confidenceNoisy = 0.4
	confidenceShort = 0.3
)

// BodyConfidence scores an alternative body: 1.0 when it has at least three
// characters and is not dominated by code-like noise. Well-formed numbers,
// quantities and formulas are not noise.
func BodyConfidence(body string) float64 {
	t := strings.TrimSpace(body)
	switch {
	case t == "":
		return 0
	case utf8.RuneCountInString(t) < 3:
		return confidenceShort
	case noise.CodeRatio(t) >= 0.7 && !reNumericAnswer.MatchString(t) && !isFormula(t):
		return confidenceNoisy
	default:
		return 1.0
	}
}
