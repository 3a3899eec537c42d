package topic

import "github.com/atena-edu/enem-helper/internal/exercise"

// RangeHint maps a question-number range to a subject area. The ranges are
// booklet-layout specific, so the hint sits beside the keyword result and
// never replaces it.
type RangeHint struct {
	From int
	To   int
	Area exercise.SubjectArea
}

// DefaultRangeHint marks questions 136 to 180 as mathematics.
func DefaultRangeHint() RangeHint {
	return RangeHint{From: 136, To: 180, Area: exercise.AreaMathematics}
}

// Enabled reports whether the hint has a usable range.
func (h RangeHint) Enabled() bool {
	return h.Area != "" && h.From > 0 && h.From <= h.To
}

// AreaFor returns the hinted area for question n.
func (h RangeHint) AreaFor(n int) (exercise.SubjectArea, bool) {
	if !h.Enabled() || n < h.From || n > h.To {
		return "", false
	}
	return h.Area, true
}

// Conflict reports whether a hinted area disagrees with the keyword topic.
// Topics other than Other are all mathematical, so a mathematics hint
// conflicts with Other and any other hint conflicts with a math topic.
func Conflict(hint exercise.SubjectArea, t exercise.Topic) bool {
	switch {
	case hint == "":
		return false
	case hint == exercise.AreaMathematics:
		return t == exercise.TopicOther
	default:
		return t != exercise.TopicOther
	}
}
