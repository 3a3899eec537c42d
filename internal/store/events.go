package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types written by the batch runner.
const (
	EventDocumentProcessed = "document_processed"
	EventDocumentFailed    = "document_failed"
	EventQuestionRejected  = "question_rejected"
)

// Event records something that happened to a document during a batch run.
type Event struct {
	RunID     string         `json:"run_id"`
	Source    string         `json:"source"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (e *Event) prepare() error {
	switch {
	case e.EventType == "":
		return errors.New("event_type is required")
	case e.RunID == "":
		return errors.New("run_id is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// EventLogger records extraction events.
type EventLogger interface {
	LogEvent(event Event) error
}

// EventReader returns the events of one run in the order they were logged.
type EventReader interface {
	RunEvents(ctx context.Context, runID string) ([]Event, error)
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// MemoryEventLogger keeps events in memory, grouped by run.
type MemoryEventLogger struct {
	mu    sync.Mutex
	order []string
	runs  map[string][]Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{runs: make(map[string][]Event)}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	if err := event.prepare(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.runs[event.RunID]; !ok {
		l.order = append(l.order, event.RunID)
	}
	l.runs[event.RunID] = append(l.runs[event.RunID], event)
	return nil
}

// Events returns every logged event, runs in first-seen order.
func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, id := range l.order {
		out = append(out, l.runs[id]...)
	}
	return out
}

func (l *MemoryEventLogger) RunEvents(_ context.Context, runID string) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.runs[runID]...), nil
}

// PostgresEventLogger inserts events into the extraction_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return errors.New("event logger pool is nil")
	}
	if err := event.prepare(); err != nil {
		return err
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO extraction_events (run_id, source, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		event.RunID, event.Source, event.EventType, string(data), event.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged", "type", event.EventType, "run_id", event.RunID, "source", event.Source)
	return nil
}

func (l *PostgresEventLogger) RunEvents(ctx context.Context, runID string) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT run_id, source, event_type, data, created_at
		 FROM extraction_events WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e    Event
			data []byte
		)
		if err := rows.Scan(&e.RunID, &e.Source, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(data, &e.Data); err != nil {
			return nil, fmt.Errorf("decode event data: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
