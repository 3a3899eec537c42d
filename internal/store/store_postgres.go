package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atena-edu/enem-helper/internal/exercise"
)

// PostgresStore is a PostgreSQL-backed ExerciseStore. The schema is
// database.Schema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on an open pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

const upsertExercise = `
INSERT INTO exercises (id, year, day, question_number, statement, alternatives, topic,
	quality_score, subject_area, area_hint, hint_conflict, command, source, page, strategy, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
ON CONFLICT (id) DO UPDATE SET
	year = EXCLUDED.year,
	day = EXCLUDED.day,
	question_number = EXCLUDED.question_number,
	statement = EXCLUDED.statement,
	alternatives = EXCLUDED.alternatives,
	topic = EXCLUDED.topic,
	quality_score = EXCLUDED.quality_score,
	subject_area = EXCLUDED.subject_area,
	area_hint = EXCLUDED.area_hint,
	hint_conflict = EXCLUDED.hint_conflict,
	command = EXCLUDED.command,
	source = EXCLUDED.source,
	page = EXCLUDED.page,
	strategy = EXCLUDED.strategy,
	updated_at = now()`

const selectExercise = `
SELECT id, year, day, question_number, statement, alternatives, topic, quality_score,
	subject_area, area_hint, hint_conflict, command, source, page, strategy
FROM exercises`

func (s *PostgresStore) ReplaceDocument(ctx context.Context, source string, exs []exercise.Exercise) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM exercises WHERE source = $1`, source); err != nil {
		return fmt.Errorf("delete exercises of %s: %w", source, err)
	}

	batch := &pgx.Batch{}
	for _, ex := range exs {
		alts, err := json.Marshal(ex.Alternatives)
		if err != nil {
			return fmt.Errorf("marshal alternatives of %s: %w", ex.ID, err)
		}
		batch.Queue(upsertExercise,
			ex.ID, ex.Year, ex.Day, ex.QuestionNumber, ex.Statement, string(alts), string(ex.Topic),
			ex.QualityScore, string(ex.SubjectArea), string(ex.AreaHint), ex.HintConflict, ex.Command,
			source, ex.Page, ex.Strategy,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert exercises of %s: %w", source, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetExercise(ctx context.Context, id string) (exercise.Exercise, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	ex, err := scanExercise(s.pool.QueryRow(ctx, selectExercise+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return exercise.Exercise{}, ErrNotFound
	}
	if err != nil {
		return exercise.Exercise{}, fmt.Errorf("get exercise %s: %w", id, err)
	}
	return ex, nil
}

func (s *PostgresStore) ListExercises(ctx context.Context, f Filter) ([]exercise.Exercise, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	where, args := filterClause(f, func(n int) string { return fmt.Sprintf("$%d", n) })
	rows, err := s.pool.Query(ctx, selectExercise+where+` ORDER BY year, question_number, id`+limitClause(f), args...)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer rows.Close()

	var out []exercise.Exercise
	for rows.Next() {
		ex, err := scanExercise(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by pgx rows and database/sql rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExercise(row rowScanner) (exercise.Exercise, error) {
	var (
		ex          exercise.Exercise
		alts        []byte
		topic, area string
		hint        string
	)
	if err := row.Scan(
		&ex.ID, &ex.Year, &ex.Day, &ex.QuestionNumber, &ex.Statement, &alts, &topic,
		&ex.QualityScore, &area, &hint, &ex.HintConflict, &ex.Command, &ex.Source, &ex.Page, &ex.Strategy,
	); err != nil {
		return exercise.Exercise{}, err
	}
	if err := json.Unmarshal(alts, &ex.Alternatives); err != nil {
		return exercise.Exercise{}, fmt.Errorf("decode alternatives: %w", err)
	}
	ex.Topic = exercise.Topic(topic)
	ex.SubjectArea = exercise.SubjectArea(area)
	ex.AreaHint = exercise.SubjectArea(hint)
	return ex, nil
}

// filterClause builds a WHERE clause; placeholder renders the n-th bind
// parameter for the target database.
func filterClause(f Filter, placeholder func(n int) string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}
	if f.Year != 0 {
		add("year = %s", f.Year)
	}
	if f.Topic != "" {
		add("topic = %s", string(f.Topic))
	}
	if f.Area != "" {
		add("subject_area = %s", string(f.Area))
	}
	if f.Source != "" {
		add("source = %s", f.Source)
	}
	if f.MinScore > 0 {
		add("quality_score >= %s", f.MinScore)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func limitClause(f Filter) string {
	if f.Limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", f.Limit)
}
