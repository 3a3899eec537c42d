// Package store persists accepted exercises.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/atena-edu/enem-helper/internal/exercise"
)

const dbTimeout = 5 * time.Second

// ErrNotFound is returned when no exercise has the requested ID.
var ErrNotFound = errors.New("exercise not found")

// Filter narrows ListExercises. Zero fields match everything.
type Filter struct {
	Year     int
	Topic    exercise.Topic
	Area     exercise.SubjectArea
	Source   string
	MinScore int
	Limit    int
}

func (f Filter) match(ex exercise.Exercise) bool {
	switch {
	case f.Year != 0 && ex.Year != f.Year:
		return false
	case f.Topic != "" && ex.Topic != f.Topic:
		return false
	case f.Area != "" && ex.SubjectArea != f.Area:
		return false
	case f.Source != "" && ex.Source != f.Source:
		return false
	case ex.QualityScore < f.MinScore:
		return false
	}
	return true
}

// ExerciseStore persists exercises.
type ExerciseStore interface {
	// ReplaceDocument removes the exercises previously stored for source and
	// upserts exs by ID. Readers see either the old set or the new one.
	ReplaceDocument(ctx context.Context, source string, exs []exercise.Exercise) error
	GetExercise(ctx context.Context, id string) (exercise.Exercise, error)
	// ListExercises returns matching exercises ordered by year and question.
	ListExercises(ctx context.Context, f Filter) ([]exercise.Exercise, error)
}

// MemoryStore is an in-memory ExerciseStore.
type MemoryStore struct {
	exercises map[string]exercise.Exercise
	mu        sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		exercises: make(map[string]exercise.Exercise),
	}
}

func (s *MemoryStore) ReplaceDocument(_ context.Context, source string, exs []exercise.Exercise) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ex := range s.exercises {
		if ex.Source == source {
			delete(s.exercises, id)
		}
	}
	for _, ex := range exs {
		ex.Source = source
		s.exercises[ex.ID] = ex
	}
	return nil
}

func (s *MemoryStore) GetExercise(_ context.Context, id string) (exercise.Exercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, ok := s.exercises[id]
	if !ok {
		return exercise.Exercise{}, ErrNotFound
	}
	return ex, nil
}

func (s *MemoryStore) ListExercises(_ context.Context, f Filter) ([]exercise.Exercise, error) {
	s.mu.RLock()
	out := make([]exercise.Exercise, 0, len(s.exercises))
	for _, ex := range s.exercises {
		if f.match(ex) {
			out = append(out, ex)
		}
	}
	s.mu.RUnlock()

	sortExercises(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func sortExercises(exs []exercise.Exercise) {
	sort.Slice(exs, func(i, j int) bool {
		if exs[i].Year != exs[j].Year {
			return exs[i].Year < exs[j].Year
		}
		if exs[i].QuestionNumber != exs[j].QuestionNumber {
			return exs[i].QuestionNumber < exs[j].QuestionNumber
		}
		return exs[i].ID < exs[j].ID
	})
}
