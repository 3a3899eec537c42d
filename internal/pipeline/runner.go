package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/atena-edu/enem-helper/internal/exercise"
	"github.com/atena-edu/enem-helper/internal/platform/cache"
	"github.com/atena-edu/enem-helper/internal/store"
)

// DocumentRef identifies a booklet to extract.
type DocumentRef struct {
	Source string `json:"source"`
	Path   string `json:"path,omitempty"`
	Year   int    `json:"year"`
	Day    int    `json:"day,omitempty"`
	// Text, when set, is used as the single page of the document instead of
	// reading Path.
	Text string `json:"text,omitempty"`
}

// Extractor turns a document into raw pages. Errors wrapping
// exercise.ErrTransient, or reporting Temporary(), are retried.
type Extractor interface {
	Extract(ctx context.Context, doc DocumentRef) ([]exercise.RawPage, error)
}

// ResultCache memoises document results by content key.
type ResultCache interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
}

// DocumentReport describes the outcome of one document.
type DocumentReport struct {
	RunID    string                `json:"run_id"`
	Source   string                `json:"source"`
	Accepted int                   `json:"accepted"`
	Rejected int                   `json:"rejected"`
	Failed   exercise.RejectReason `json:"failed,omitempty"`
	Cached   bool                  `json:"cached,omitempty"`
}

// RunnerConfig tunes a Runner. Zero fields get defaults.
type RunnerConfig struct {
	Workers int
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	return c
}

// Runner processes batches of documents on a bounded worker pool.
type Runner struct {
	pipeline   *Pipeline
	extractor  Extractor
	cfg        RunnerConfig
	store      store.ExerciseStore
	events     store.EventLogger
	cache      ResultCache
	logger     *slog.Logger
	onDocument func(DocumentReport)
	onResult   func(DocumentRef, Result)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStore persists each document's accepted exercises.
func WithStore(s store.ExerciseStore) RunnerOption {
	return func(r *Runner) { r.store = s }
}

// WithEvents records extraction events.
func WithEvents(l store.EventLogger) RunnerOption {
	return func(r *Runner) { r.events = l }
}

// WithCache reuses results for documents whose text was seen before.
func WithCache(c ResultCache) RunnerOption {
	return func(r *Runner) { r.cache = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithProgress calls fn after each document. fn may be called from several
// goroutines at once.
func WithProgress(fn func(DocumentReport)) RunnerOption {
	return func(r *Runner) { r.onDocument = fn }
}

// WithResults calls fn with the full result of each document that was
// processed and persisted. fn may be called from several goroutines at once.
func WithResults(fn func(DocumentRef, Result)) RunnerOption {
	return func(r *Runner) { r.onResult = fn }
}

// NewRunner creates a Runner.
func NewRunner(p *Pipeline, ex Extractor, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		pipeline:  p,
		extractor: ex,
		cfg:       cfg.withDefaults(),
		events:    store.NopEventLogger{},
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run processes docs and returns the batch summary. A failing document is
// counted and skipped. The returned error is non-nil only when ctx ends
// before every document was handled.
func (r *Runner) Run(ctx context.Context, docs []DocumentRef) (exercise.Summary, error) {
	runID := uuid.NewString()
	sum := exercise.NewSummaryBuilder(runID)
	r.logger.Info("batch started", "run_id", runID, "documents", len(docs), "workers", r.cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	launched := 0
	for _, doc := range docs {
		if gctx.Err() != nil {
			break
		}
		launched++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return r.runDocument(gctx, runID, doc, sum)
		})
	}
	err := g.Wait()
	if err == nil && launched < len(docs) {
		err = ctx.Err()
	}

	s := sum.Summary()
	r.logger.Info("batch finished",
		"run_id", runID,
		"documents", s.Documents,
		"failed", s.DocumentsFailed,
		"accepted", s.Accepted,
		"rejected", s.Rejected,
	)
	if err != nil {
		return s, fmt.Errorf("batch %s: %w", runID, err)
	}
	return s, nil
}

// runDocument handles one document. It returns an error only when the
// batch context is done.
func (r *Runner) runDocument(ctx context.Context, runID string, doc DocumentRef, sum *exercise.SummaryBuilder) error {
	dctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	report := DocumentReport{RunID: runID, Source: doc.Source}
	res, cached, err := r.process(dctx, doc)
	if err == nil && r.store != nil {
		if perr := r.store.ReplaceDocument(dctx, doc.Source, res.Accepted); perr != nil {
			err = fmt.Errorf("persisting %s: %w", doc.Source, perr)
			report.Failed = exercise.ReasonPersistFailed
		}
	}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		r.logger.Warn("document cancelled", "run_id", runID, "source", doc.Source)
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(dctx.Err(), context.DeadlineExceeded):
		report.Failed = exercise.ReasonTimeout
	case report.Failed == "":
		report.Failed = exercise.ReasonExtractionFailed
	}

	if report.Failed != "" {
		sum.AddFailedDocument(report.Failed)
		r.logger.Error("document failed", "run_id", runID, "source", doc.Source, "reason", report.Failed, "error", err)
		r.logEvent(store.Event{
			RunID: runID, Source: doc.Source, EventType: store.EventDocumentFailed,
			Data: map[string]any{"reason": string(report.Failed), "error": err.Error()},
		})
		r.progress(report)
		return nil
	}

	report.Accepted, report.Rejected, report.Cached = len(res.Accepted), len(res.Rejected), cached
	sum.AddDocument(report.Accepted, res.Rejected)
	for _, rej := range res.Rejected {
		r.logEvent(store.Event{
			RunID: runID, Source: doc.Source, EventType: store.EventQuestionRejected,
			Data: map[string]any{"question": rej.QuestionNumber, "page": rej.Page, "reason": string(rej.Reason), "detail": rej.Detail},
		})
	}
	r.logEvent(store.Event{
		RunID: runID, Source: doc.Source, EventType: store.EventDocumentProcessed,
		Data: map[string]any{"accepted": report.Accepted, "rejected": report.Rejected, "cached": cached},
	})
	r.logger.Info("document processed",
		"run_id", runID,
		"source", doc.Source,
		"accepted", report.Accepted,
		"rejected", report.Rejected,
		"cached", cached,
	)
	if r.onResult != nil {
		r.onResult(doc, res)
	}
	r.progress(report)
	return nil
}

func (r *Runner) process(ctx context.Context, doc DocumentRef) (Result, bool, error) {
	pages, err := r.extract(ctx, doc)
	if err != nil {
		return Result{}, false, err
	}

	var key string
	if r.cache != nil {
		key = documentKey(doc, pages)
		var res Result
		hit, err := r.cache.GetJSON(ctx, key, &res)
		if err != nil {
			r.logger.Warn("cache read failed", "source", doc.Source, "error", err)
		}
		if hit {
			return res, true, nil
		}
	}

	res, err := r.pipeline.ProcessDocument(ctx, pages)
	if err != nil {
		return Result{}, false, err
	}

	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, key, res); err != nil {
			r.logger.Warn("cache write failed", "source", doc.Source, "error", err)
		}
	}
	return res, false, nil
}

// extract calls the extractor, retrying transient failures with
// exponential backoff.
func (r *Runner) extract(ctx context.Context, doc DocumentRef) ([]exercise.RawPage, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.Retries; attempt++ {
		if attempt > 0 {
			backoff := r.cfg.Backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		pages, err := r.extractor.Extract(ctx, doc)
		if err == nil {
			return pages, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isTransient(err) {
			break
		}
		r.logger.Warn("extraction failed, retrying", "source", doc.Source, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("extracting %s: %w", doc.Source, lastErr)
}

func isTransient(err error) bool {
	if errors.Is(err, exercise.ErrTransient) {
		return true
	}
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

func (r *Runner) logEvent(e store.Event) {
	if err := r.events.LogEvent(e); err != nil {
		r.logger.Warn("event not logged", "type", e.EventType, "source", e.Source, "error", err)
	}
}

func (r *Runner) progress(rep DocumentReport) {
	if r.onDocument != nil {
		r.onDocument(rep)
	}
}

// resultVersion changes whenever extraction output for the same text may
// differ, so stale cache entries are not reused.
const resultVersion = "1"

func documentKey(doc DocumentRef, pages []exercise.RawPage) string {
	parts := []string{resultVersion, doc.Source, strconv.Itoa(doc.Year), strconv.Itoa(doc.Day)}
	for _, p := range pages {
		parts = append(parts, strconv.Itoa(p.Page), p.Text)
	}
	return cache.Key(parts...)
}
