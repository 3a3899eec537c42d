// Package pipeline turns raw booklet text into scored exercises.
//
// Each question moves through the stages Raw, Cleaned, Matched, Split,
// Classified, Scored and ends Accepted or Rejected. A failed split goes
// straight to Rejected.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atena-edu/enem-helper/internal/exercise"
	"github.com/atena-edu/enem-helper/internal/noise"
	"github.com/atena-edu/enem-helper/internal/pattern"
	"github.com/atena-edu/enem-helper/internal/quality"
	"github.com/atena-edu/enem-helper/internal/splitter"
	"github.com/atena-edu/enem-helper/internal/topic"
)

// Stage is a step of the per-question state machine.
type Stage int

const (
	StageRaw Stage = iota
	StageCleaned
	StageMatched
	StageSplit
	StageClassified
	StageScored
	StageAccepted
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageRaw:
		return "raw"
	case StageCleaned:
		return "cleaned"
	case StageMatched:
		return "matched"
	case StageSplit:
		return "split"
	case StageClassified:
		return "classified"
	case StageScored:
		return "scored"
	case StageAccepted:
		return "accepted"
	case StageRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Question numbers outside this range are not anchors.
const (
	minQuestion = 1
	maxQuestion = 180
)

// anchorConfidence is the tier preferred for question anchors. Lower tiers
// are used only when a page has no anchor at this level.
const anchorConfidence = 0.90

// Config holds the immutable collaborators of a Pipeline. Nil fields get
// the built-in defaults.
type Config struct {
	Noise      *noise.Filter
	Library    *pattern.Library
	Classifier *topic.Classifier
	Hint       *topic.RangeHint
	Logger     *slog.Logger
}

// Pipeline runs the extraction stages. It holds no mutable state and is
// safe for concurrent use.
type Pipeline struct {
	noise      *noise.Filter
	matcher    *pattern.Matcher
	splitter   *splitter.Splitter
	classifier *topic.Classifier
	hint       topic.RangeHint
	scorer     quality.Scorer
	log        *slog.Logger
}

// Result is the outcome for one page or document.
type Result struct {
	Accepted []exercise.Exercise  `json:"accepted"`
	Rejected []exercise.Rejection `json:"rejected"`
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Noise == nil {
		cfg.Noise = noise.Default()
	}
	if cfg.Library == nil {
		cfg.Library = pattern.DefaultLibrary()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = topic.Default()
	}
	hint := topic.DefaultRangeHint()
	if cfg.Hint != nil {
		hint = *cfg.Hint
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := pattern.NewMatcher(cfg.Library)
	return &Pipeline{
		noise:      cfg.Noise,
		matcher:    m,
		splitter:   splitter.New(m),
		classifier: cfg.Classifier,
		hint:       hint,
		log:        cfg.Logger,
	}
}

// Process extracts the exercises of a single page.
func (p *Pipeline) Process(ctx context.Context, page exercise.RawPage) (Result, error) {
	return p.ProcessDocument(ctx, []exercise.RawPage{page})
}

// pageSpan locates a cleaned page inside the joined document text.
type pageSpan struct {
	start int
	page  *exercise.RawPage
	area  exercise.SubjectArea
}

// ProcessDocument extracts the exercises of a document's pages. Pages are
// cleaned separately and joined, so a question may continue onto the next
// page. The only error returned is the context's.
func (p *Pipeline) ProcessDocument(ctx context.Context, pages []exercise.RawPage) (Result, error) {
	var res Result
	if len(pages) == 0 {
		return res, nil
	}

	var (
		sb    strings.Builder
		spans []pageSpan
		area  exercise.SubjectArea
	)
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		// Area banners are boilerplate the noise filter removes, so they
		// are read from the raw text. A page without one keeps the last.
		if a, ok := p.detectArea(pages[i].Text); ok {
			area = a
		}
		cleaned := p.noise.CleanPage(&pages[i])
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		spans = append(spans, pageSpan{start: sb.Len(), page: &pages[i], area: area})
		sb.WriteString(cleaned.Text)
	}
	text := sb.String()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	anchors := selectAnchors(p.matcher.MatchKind(text, pattern.KindQuestionNumber))
	first := pages[0]
	p.log.Debug("document matched", "source", first.Source, "pages", len(pages), "questions", len(anchors))

	for i, a := range anchors {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		end := len(text)
		if i+1 < len(anchors) {
			end = anchors[i+1].Start
		}
		ps := spanAt(spans, a.Start)
		ex, rej, stage := p.question(text[a.End:end], a.Number, first, ps)
		if stage == StageAccepted {
			res.Accepted = append(res.Accepted, ex)
		} else {
			res.Rejected = append(res.Rejected, rej)
		}
		p.log.Debug("question processed",
			"source", first.Source,
			"question", a.Number,
			"stage", stage.String(),
			"reason", rej.Reason,
		)
	}
	return res, nil
}

// question runs the split, classify and score stages for one span.
func (p *Pipeline) question(span string, number int, doc exercise.RawPage, ps pageSpan) (exercise.Exercise, exercise.Rejection, Stage) {
	reject := func(reason exercise.RejectReason, detail string) (exercise.Exercise, exercise.Rejection, Stage) {
		return exercise.Exercise{}, exercise.Rejection{
			Source:         doc.Source,
			Page:           ps.page.Page,
			QuestionNumber: number,
			Reason:         reason,
			Detail:         detail,
		}, StageRejected
	}

	split, ok := p.splitter.Split(span)
	if !ok {
		switch {
		case split.Partial >= splitter.MinAlternatives:
			return reject(exercise.ReasonSplitFailed, fmt.Sprintf("ambiguous block with %d alternatives", split.Partial))
		case split.Partial > 0:
			return reject(exercise.ReasonTooFewAlternatives, fmt.Sprintf("%d alternatives found", split.Partial))
		}
		return reject(exercise.ReasonSplitFailed, "no alternative markers")
	}

	ex := exercise.Exercise{
		ID:             exercise.ExerciseID(doc.Year, number),
		Year:           doc.Year,
		Day:            doc.Day,
		QuestionNumber: number,
		Statement:      split.Statement,
		SubjectArea:    ps.area,
		Command:        split.Command,
		Source:         doc.Source,
		Page:           ps.page.Page,
		Strategy:       split.Strategy,
	}
	for _, c := range split.Alternatives {
		ex.Alternatives = append(ex.Alternatives, exercise.NewAlternative(c.Letter, c.Body, c.Confidence))
	}

	t := p.classifier.Classify(classifierText(ex))
	ex = p.scorer.Annotate(ex, t, p.hint)

	if ok, reason := p.scorer.Accept(ex); !ok {
		return reject(reason, fmt.Sprintf("score %d, %d valid alternatives", ex.QualityScore, ex.ValidAlternatives()))
	}
	return ex, exercise.Rejection{}, StageAccepted
}

func (p *Pipeline) detectArea(raw string) (exercise.SubjectArea, bool) {
	occs := p.matcher.MatchKind(raw, pattern.KindSubjectArea)
	if len(occs) == 0 {
		return "", false
	}
	return occs[len(occs)-1].Area, true
}

// selectAnchors keeps question-number occurrences that form a strictly
// increasing sequence of plausible numbers.
func selectAnchors(occs []pattern.Occurrence) []pattern.Occurrence {
	pool := occs[:0:0]
	for _, o := range occs {
		if o.Confidence >= anchorConfidence {
			pool = append(pool, o)
		}
	}
	if len(pool) == 0 {
		pool = occs
	}

	var out []pattern.Occurrence
	last := 0
	for _, o := range pool {
		if o.Number < minQuestion || o.Number > maxQuestion || o.Number <= last {
			continue
		}
		out = append(out, o)
		last = o.Number
	}
	return out
}

func spanAt(spans []pageSpan, offset int) pageSpan {
	cur := spans[0]
	for _, s := range spans[1:] {
		if s.start > offset {
			break
		}
		cur = s
	}
	return cur
}

func classifierText(ex exercise.Exercise) string {
	var sb strings.Builder
	sb.WriteString(ex.Statement)
	for _, a := range ex.Alternatives {
		sb.WriteByte('\n')
		sb.WriteString(a.Text)
	}
	return sb.String()
}
