package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/atena-edu/enem-helper/internal/exercise"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS exercises (
	id              TEXT PRIMARY KEY,
	year            INTEGER NOT NULL,
	day             INTEGER NOT NULL DEFAULT 0,
	question_number INTEGER NOT NULL,
	statement       TEXT NOT NULL,
	alternatives    TEXT NOT NULL,
	topic           TEXT NOT NULL,
	quality_score   INTEGER NOT NULL,
	subject_area    TEXT NOT NULL DEFAULT '',
	area_hint       TEXT NOT NULL DEFAULT '',
	hint_conflict   INTEGER NOT NULL DEFAULT 0,
	command         TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL,
	page            INTEGER NOT NULL DEFAULT 0,
	strategy        TEXT NOT NULL DEFAULT '',
	updated_at      TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS exercises_source_idx ON exercises (source);
CREATE INDEX IF NOT EXISTS exercises_year_topic_idx ON exercises (year, topic);
`

// SQLiteStore is a file-backed ExerciseStore for local batch runs.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One writer keeps ReplaceDocument transactions from tripping over
	// SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReplaceDocument(ctx context.Context, source string, exs []exercise.Exercise) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM exercises WHERE source = ?`, source); err != nil {
		return fmt.Errorf("delete exercises of %s: %w", source, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO exercises (id, year, day, question_number, statement, alternatives, topic,
	quality_score, subject_area, area_hint, hint_conflict, command, source, page, strategy, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (id) DO UPDATE SET
	year = excluded.year,
	day = excluded.day,
	question_number = excluded.question_number,
	statement = excluded.statement,
	alternatives = excluded.alternatives,
	topic = excluded.topic,
	quality_score = excluded.quality_score,
	subject_area = excluded.subject_area,
	area_hint = excluded.area_hint,
	hint_conflict = excluded.hint_conflict,
	command = excluded.command,
	source = excluded.source,
	page = excluded.page,
	strategy = excluded.strategy,
	updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, ex := range exs {
		alts, err := json.Marshal(ex.Alternatives)
		if err != nil {
			return fmt.Errorf("marshal alternatives of %s: %w", ex.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			ex.ID, ex.Year, ex.Day, ex.QuestionNumber, ex.Statement, string(alts), string(ex.Topic),
			ex.QualityScore, string(ex.SubjectArea), string(ex.AreaHint), ex.HintConflict, ex.Command,
			source, ex.Page, ex.Strategy,
		); err != nil {
			return fmt.Errorf("upsert exercise %s: %w", ex.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExercise(ctx context.Context, id string) (exercise.Exercise, error) {
	ex, err := scanExercise(s.db.QueryRowContext(ctx, selectExercise+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return exercise.Exercise{}, ErrNotFound
	}
	if err != nil {
		return exercise.Exercise{}, fmt.Errorf("get exercise %s: %w", id, err)
	}
	return ex, nil
}

func (s *SQLiteStore) ListExercises(ctx context.Context, f Filter) ([]exercise.Exercise, error) {
	where, args := filterClause(f, func(int) string { return "?" })
	rows, err := s.db.QueryContext(ctx, selectExercise+where+` ORDER BY year, question_number, id`+limitClause(f), args...)
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
