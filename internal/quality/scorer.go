// Package quality scores assembled exercises and decides acceptance.
package quality

import (
	"unicode/utf8"

	"github.com/atena-edu/enem-helper/internal/exercise"
	"github.com/atena-edu/enem-helper/internal/topic"
)

// Thresholds for acceptance.
const (
	MinValidAlternatives = 3
	MinStatementRunes    = 20
	fullStatementRunes   = 50
)

// Points awarded per component.
const (
	statementFull    = 25
	statementPartial = 12
	coverageFull     = 20
	coveragePartial  = 10
	topicBonus       = 5
	areaBonus        = 5
	areaHintBonus    = 3
	commandBonus     = 5
)

// validPoints is indexed by the number of valid alternatives.
var validPoints = [...]int{0, 0, 5, 15, 30, 40}

// Scorer computes quality scores. The zero value is ready to use.
type Scorer struct{}

// Score returns a value in [0, 100] that depends only on ex and never
// decreases when a component gets more complete.
func (Scorer) Score(ex exercise.Exercise) int {
	score := 0

	switch n := utf8.RuneCountInString(ex.Statement); {
	case n >= fullStatementRunes:
		score += statementFull
	case n >= MinStatementRunes:
		score += statementPartial
	}

	switch n := len(ex.Alternatives); {
	case n >= 5:
		score += coverageFull
	case n >= 3:
		score += coveragePartial
	}

	score += validPoints[min(ex.ValidAlternatives(), len(validPoints)-1)]

	if ex.Topic != "" && ex.Topic != exercise.TopicOther && !ex.HintConflict {
		score += topicBonus
	}
	switch {
	case ex.SubjectArea != "":
		score += areaBonus
	case ex.AreaHint != "":
		score += areaHintBonus
	}
	if ex.Command != "" {
		score += commandBonus
	}

	return max(0, min(100, score))
}

// Accept reports whether ex can be emitted. Alternative validity is checked
// before statement length.
func (Scorer) Accept(ex exercise.Exercise) (bool, exercise.RejectReason) {
	if ex.ValidAlternatives() < MinValidAlternatives {
		return false, exercise.ReasonTooFewAlternatives
	}
	if utf8.RuneCountInString(ex.Statement) < MinStatementRunes {
		return false, exercise.ReasonStatementTooShort
	}
	return true, ""
}

// Annotate fills the topic-derived fields of ex from the classifier result
// and range hint, then the quality score.
func (s Scorer) Annotate(ex exercise.Exercise, t exercise.Topic, hint topic.RangeHint) exercise.Exercise {
	ex.Topic = t
	if area, ok := hint.AreaFor(ex.QuestionNumber); ok {
		ex.AreaHint = area
		ex.HintConflict = topic.Conflict(area, t)
	}
	ex.QualityScore = s.Score(ex)
	return ex
}
