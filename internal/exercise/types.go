// Package exercise defines the records that flow through the extraction pipeline.
package exercise

import (
	"errors"
	"fmt"
)

// ValidityThreshold is the minimum alternative confidence considered valid.
const ValidityThreshold = 0.6

// ErrTransient marks an I/O failure that is worth retrying.
var ErrTransient = errors.New("transient failure")

// Topic is a label from the closed topic taxonomy.
type Topic string

const (
	TopicAlgebra          Topic = "Algebra"
	TopicGeometry         Topic = "Geometry"
	TopicStatistics       Topic = "Statistics/Probability"
	TopicFunctions        Topic = "Functions"
	TopicTrigonometry     Topic = "Trigonometry"
	TopicFinancial        Topic = "Financial Math"
	TopicCombinatorics    Topic = "Combinatorics"
	TopicSequences        Topic = "Sequences"
	TopicAnalyticGeometry Topic = "Analytic Geometry"
	TopicOther            Topic = "Other"
)

// Topics lists the taxonomy in its canonical order.
var Topics = []Topic{
	TopicAlgebra,
	TopicGeometry,
	TopicStatistics,
	TopicFunctions,
	TopicTrigonometry,
	TopicFinancial,
	TopicCombinatorics,
	TopicSequences,
	TopicAnalyticGeometry,
	TopicOther,
}

// ParseTopic returns the taxonomy label matching name.
func ParseTopic(name string) (Topic, error) {
	for _, t := range Topics {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown topic %q", name)
}

// SubjectArea is one of the four ENEM knowledge areas.
type SubjectArea string

const (
	AreaLanguages   SubjectArea = "Linguagens, Códigos e suas Tecnologias"
	AreaHumanities  SubjectArea = "Ciências Humanas e suas Tecnologias"
	AreaNatural     SubjectArea = "Ciências da Natureza e suas Tecnologias"
	AreaMathematics SubjectArea = "Matemática e suas Tecnologias"
)

// RejectReason explains why a question or document produced no record.
type RejectReason string

const (
	ReasonTooFewAlternatives RejectReason = "too-few-alternatives"
	ReasonStatementTooShort  RejectReason = "statement-too-short"
	ReasonSplitFailed        RejectReason = "split-failed"
	ReasonTimeout            RejectReason = "timeout"
	ReasonExtractionFailed   RejectReason = "extraction-failed"
	ReasonPersistFailed      RejectReason = "persist-failed"
)

// RawPage is the text of one PDF page (or a whole document) before cleaning.
type RawPage struct {
	Source string // originating file identifier
	Year   int
	Day    int // exam day, 0 when unknown
	Page   int // 1-based, 0 when the text is a whole document
	Text   string
}

// CleanedText is the noise-filtered text of a page.
type CleanedText struct {
	Text string
	Page *RawPage
}

// Alternative is one lettered answer option.
type Alternative struct {
	Letter     string  `json:"letter"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Valid      bool    `json:"valid"`
}

// NewAlternative builds an alternative, deriving validity from confidence.
func NewAlternative(letter, text string, confidence float64) Alternative {
	return Alternative{
		Letter:     letter,
		Text:       text,
		Confidence: confidence,
		Valid:      confidence >= ValidityThreshold,
	}
}

// Exercise is one fully parsed question.
type Exercise struct {
	ID             string        `json:"id"`
	Year           int           `json:"year"`
	Day            int           `json:"day,omitempty"`
	QuestionNumber int           `json:"question_number"`
	Statement      string        `json:"statement"`
	Alternatives   []Alternative `json:"alternatives"`
	Topic          Topic         `json:"topic"`
	QualityScore   int           `json:"quality_score"`
	SubjectArea    SubjectArea   `json:"subject_area,omitempty"`
	AreaHint       SubjectArea   `json:"area_hint,omitempty"`
	HintConflict   bool          `json:"hint_conflict,omitempty"`
	Command        string        `json:"command,omitempty"`
	Source         string        `json:"source,omitempty"`
	Page           int           `json:"page,omitempty"`
	Strategy       string        `json:"strategy,omitempty"`
}

// ExerciseID returns the deterministic identifier for a question.
func ExerciseID(year, number int) string {
	return fmt.Sprintf("ENEM_%d_Q%03d", year, number)
}

// ValidAlternatives counts alternatives that passed the content check.
func (e Exercise) ValidAlternatives() int {
	n := 0
	for _, a := range e.Alternatives {
		if a.Valid {
			n++
		}
	}
	return n
}

// Rejection records a question that did not become an Exercise.
type Rejection struct {
	Source         string       `json:"source"`
	Page           int          `json:"page,omitempty"`
	QuestionNumber int          `json:"question_number,omitempty"`
	Reason         RejectReason `json:"reason"`
	Detail         string       `json:"detail,omitempty"`
}
