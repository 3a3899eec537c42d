package exercise

import "sync"

// RecordAlternative is the exported shape of an alternative.
type RecordAlternative struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// Record is the flat shape consumed by export tooling and the UI.
type Record struct {
	ID             string              `json:"id"`
	Year           int                 `json:"year"`
	QuestionNumber int                 `json:"question_number"`
	Statement      string              `json:"statement"`
	Alternatives   []RecordAlternative `json:"alternatives"`
	Topic          string              `json:"topic"`
	QualityScore   int                 `json:"quality_score"`
	SubjectArea    string              `json:"subject_area,omitempty"`
}

// Record converts the exercise to its export shape.
func (e Exercise) Record() Record {
	alts := make([]RecordAlternative, 0, len(e.Alternatives))
	for _, a := range e.Alternatives {
		alts = append(alts, RecordAlternative{Letter: a.Letter, Text: a.Text})
	}
	return Record{
		ID:             e.ID,
		Year:           e.Year,
		QuestionNumber: e.QuestionNumber,
		Statement:      e.Statement,
		Alternatives:   alts,
		Topic:          string(e.Topic),
		QualityScore:   e.QualityScore,
		SubjectArea:    string(e.SubjectArea),
	}
}

// Summary holds per-run counters.
type Summary struct {
	RunID           string               `json:"run_id"`
	Documents       int                  `json:"documents"`
	DocumentsFailed int                  `json:"documents_failed"`
	Accepted        int                  `json:"accepted"`
	Rejected        int                  `json:"rejected"`
	Reasons         map[RejectReason]int `json:"reasons"`
}

// SummaryBuilder aggregates summaries from concurrent workers.
type SummaryBuilder struct {
	mu  sync.Mutex
	sum Summary
}

// NewSummaryBuilder starts an empty summary for runID.
func NewSummaryBuilder(runID string) *SummaryBuilder {
	return &SummaryBuilder{sum: Summary{RunID: runID, Reasons: make(map[RejectReason]int)}}
}

// AddDocument counts a processed document with its outcomes.
func (b *SummaryBuilder) AddDocument(accepted int, rejected []Rejection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sum.Documents++
	b.sum.Accepted += accepted
	b.sum.Rejected += len(rejected)
	for _, r := range rejected {
		b.sum.Reasons[r.Reason]++
	}
}

// AddFailedDocument counts a document that produced no result at all.
func (b *SummaryBuilder) AddFailedDocument(reason RejectReason) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sum.Documents++
	b.sum.DocumentsFailed++
	b.sum.Reasons[reason]++
}

// Summary returns a copy of the current counters.
func (b *SummaryBuilder) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.sum
	out.Reasons = make(map[RejectReason]int, len(b.sum.Reasons))
	for k, v := range b.sum.Reasons {
		out.Reasons[k] = v
	}
	return out
}
