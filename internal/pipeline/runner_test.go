package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atena-edu/enem-helper/internal/exercise"
	"github.com/atena-edu/enem-helper/internal/pipeline"
	"github.com/atena-edu/enem-helper/internal/store"
)

// fakeExtractor serves pages from docs, failing with errs[source] for the
// first failures[source] attempts.
type fakeExtractor struct {
	mu       sync.Mutex
	calls    map[string]int
	errs     map[string]error
	failures map[string]int
	block    map[string]bool
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		calls:    make(map[string]int),
		errs:     make(map[string]error),
		failures: make(map[string]int),
		block:    make(map[string]bool),
	}
}

func (f *fakeExtractor) Extract(ctx context.Context, doc pipeline.DocumentRef) ([]exercise.RawPage, error) {
	f.mu.Lock()
	f.calls[doc.Source]++
	n := f.calls[doc.Source]
	err, limit, block := f.errs[doc.Source], f.failures[doc.Source], f.block[doc.Source]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil && (limit == 0 || n <= limit) {
		return nil, err
	}
	return []exercise.RawPage{{Source: doc.Source, Year: doc.Year, Page: 1, Text: doc.Text}}, nil
}

func (f *fakeExtractor) Calls(source string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[source]
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memoryCache) GetJSON(_ context.Context, key string, v any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, v)
}

func (c *memoryCache) SetJSON(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = b
	return nil
}

type failingStore struct {
	store.ExerciseStore
}

func (failingStore) ReplaceDocument(context.Context, string, []exercise.Exercise) error {
	return errors.New("disk full")
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func doc(source string) pipeline.DocumentRef {
	return pipeline.DocumentRef{Source: source, Year: 2024, Text: scenarioA}
}

func newRunner(ex pipeline.Extractor, cfg pipeline.RunnerConfig, opts ...pipeline.RunnerOption) *pipeline.Runner {
	opts = append([]pipeline.RunnerOption{pipeline.WithLogger(quiet)}, opts...)
	return pipeline.NewRunner(pipeline.New(pipeline.Config{Logger: quiet}), ex, cfg, opts...)
}

func TestRunner_BatchWithFailures(t *testing.T) {
	ex := newFakeExtractor()
	ex.errs["broken.pdf"] = errors.New("malformed xref table")
	ex.errs["flaky.pdf"] = fmt.Errorf("read: %w", exercise.ErrTransient)
	ex.failures["flaky.pdf"] = 1

	st := store.NewMemoryStore()
	events := store.NewMemoryEventLogger()
	var (
		mu      sync.Mutex
		reports []pipeline.DocumentReport
	)
	r := newRunner(ex, pipeline.RunnerConfig{Workers: 2, Retries: 1, Backoff: time.Millisecond},
		pipeline.WithStore(st),
		pipeline.WithEvents(events),
		pipeline.WithProgress(func(rep pipeline.DocumentReport) {
			mu.Lock()
			reports = append(reports, rep)
			mu.Unlock()
		}),
	)

	sum, err := r.Run(t.Context(), []pipeline.DocumentRef{doc("good.pdf"), doc("broken.pdf"), doc("flaky.pdf")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if sum.RunID == "" {
		t.Error("RunID is empty")
	}
	if sum.Documents != 3 || sum.DocumentsFailed != 1 || sum.Accepted != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Reasons[exercise.ReasonExtractionFailed] != 1 {
		t.Errorf("reasons = %v", sum.Reasons)
	}
	if ex.Calls("broken.pdf") != 1 {
		t.Errorf("permanent error retried: %d calls", ex.Calls("broken.pdf"))
	}
	if ex.Calls("flaky.pdf") != 2 {
		t.Errorf("transient error calls = %d, want 2", ex.Calls("flaky.pdf"))
	}

	stored, _ := st.ListExercises(t.Context(), store.Filter{})
	if len(stored) != 1 {
		// Both good documents carry the same question, so the ID collides.
		t.Errorf("stored %d exercises, want 1", len(stored))
	}
	if len(reports) != 3 {
		t.Errorf("got %d progress reports, want 3", len(reports))
	}

	types := map[string]int{}
	for _, e := range events.Events() {
		types[e.EventType]++
		if e.RunID != sum.RunID {
			t.Errorf("event run id = %q, want %q", e.RunID, sum.RunID)
		}
	}
	if types[store.EventDocumentProcessed] != 2 || types[store.EventDocumentFailed] != 1 {
		t.Errorf("event counts = %v", types)
	}
}

func TestRunner_RetriesExhausted(t *testing.T) {
	ex := newFakeExtractor()
	ex.errs["flaky.pdf"] = fmt.Errorf("read: %w", exercise.ErrTransient)

	r := newRunner(ex, pipeline.RunnerConfig{Workers: 1, Retries: 2, Backoff: time.Millisecond})
	sum, err := r.Run(t.Context(), []pipeline.DocumentRef{doc("flaky.pdf")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ex.Calls("flaky.pdf") != 3 {
		t.Errorf("calls = %d, want 3", ex.Calls("flaky.pdf"))
	}
	if sum.DocumentsFailed != 1 || sum.Reasons[exercise.ReasonExtractionFailed] != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunner_TimeoutIsRejection(t *testing.T) {
	ex := newFakeExtractor()
	ex.block["slow.pdf"] = true

	r := newRunner(ex, pipeline.RunnerConfig{Workers: 2, Timeout: 50 * time.Millisecond})
	sum, err := r.Run(t.Context(), []pipeline.DocumentRef{doc("slow.pdf"), doc("good.pdf")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Reasons[exercise.ReasonTimeout] != 1 {
		t.Errorf("reasons = %v, want one timeout", sum.Reasons)
	}
	if sum.Accepted != 1 {
		t.Errorf("slow document stalled the batch: %+v", sum)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newRunner(newFakeExtractor(), pipeline.RunnerConfig{Workers: 1})
	sum, err := r.Run(ctx, []pipeline.DocumentRef{doc("a.pdf"), doc("b.pdf")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if sum.Accepted != 0 {
		t.Errorf("cancelled batch accepted %d exercises", sum.Accepted)
	}
}

func TestRunner_CacheHit(t *testing.T) {
	c := &memoryCache{}
	var cached atomic.Int32
	r := newRunner(newFakeExtractor(), pipeline.RunnerConfig{Workers: 1},
		pipeline.WithCache(c),
		pipeline.WithProgress(func(rep pipeline.DocumentReport) {
			if rep.Cached {
				cached.Add(1)
			}
		}),
	)

	for i := 0; i < 2; i++ {
		sum, err := r.Run(t.Context(), []pipeline.DocumentRef{doc("good.pdf")})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if sum.Accepted != 1 {
			t.Errorf("run %d accepted %d, want 1", i, sum.Accepted)
		}
	}
	if cached.Load() != 1 {
		t.Errorf("cache hits = %d, want 1", cached.Load())
	}
}

func TestRunner_PersistFailure(t *testing.T) {
	r := newRunner(newFakeExtractor(), pipeline.RunnerConfig{Workers: 1}, pipeline.WithStore(failingStore{}))
	sum, err := r.Run(t.Context(), []pipeline.DocumentRef{doc("good.pdf")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.DocumentsFailed != 1 || sum.Reasons[exercise.ReasonPersistFailed] != 1 || sum.Accepted != 0 {
		t.Errorf("summary = %+v", sum)
	}
}
