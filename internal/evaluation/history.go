package evaluation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02 15:04:05"

// History keeps every evaluation run in SQLite so answers can be compared
// across index rebuilds and model changes.
type History struct {
	db *sql.DB
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID          string
	StartedAt      time.Time
	EmbedderModel  string
	GeneratorModel string
	Questions      int
	Failed         int
}

// OpenHistory opens or creates the database at path.
func OpenHistory(ctx context.Context, path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NULL,
			embedder_model TEXT NOT NULL,
			generator_model TEXT NOT NULL,
			questions INTEGER NOT NULL,
			failed INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS answers (
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			position INTEGER NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			sources TEXT NOT NULL,
			error TEXT NULL,
			elapsed_ms INTEGER NOT NULL,
			PRIMARY KEY (run_id, position)
		);
		CREATE INDEX IF NOT EXISTS idx_answers_question ON answers (question);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &History{db: db}, nil
}

func (h *History) Close() error { return h.db.Close() }

// Record stores a finished run and its rows in one transaction.
func (h *History) Record(ctx context.Context, rep Report, embedderModel, generatorModel string) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, finished_at, embedder_model, generator_model, questions, failed)
		 VALUES (?, datetime(?), datetime(?), ?, ?, ?, ?)`,
		rep.RunID, rep.StartedAt.UTC().Format(timeLayout), rep.FinishedAt.UTC().Format(timeLayout),
		embedderModel, generatorModel, len(rep.Rows), rep.Failed(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rep.RunID, err)
	}
	for i, r := range rep.Rows {
		var errText sql.NullString
		if r.Error != "" {
			errText = sql.NullString{String: r.Error, Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO answers (run_id, position, question, answer, sources, error, elapsed_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rep.RunID, i, r.Question, r.Answer, strings.Join(r.Sources, "\n---\n"), errText, r.Elapsed.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert answer %d of run %s: %w", i, rep.RunID, err)
		}
	}
	return tx.Commit()
}

// Runs lists recorded runs, newest first.
func (h *History) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT run_id, started_at, embedder_model, generator_model, questions, failed
		 FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var started string
		if err := rows.Scan(&s.RunID, &started, &s.EmbedderModel, &s.GeneratorModel, &s.Questions, &s.Failed); err != nil {
			return nil, err
		}
		s.StartedAt = parseTime(started)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Answers returns the rows of one run in question order.
func (h *History) Answers(ctx context.Context, runID string) ([]Row, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT question, answer, sources, error, elapsed_ms
		 FROM answers WHERE run_id = ? ORDER BY position ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r       Row
			sources string
			errText sql.NullString
			ms      int64
		)
		if err := rows.Scan(&r.Question, &r.Answer, &sources, &errText, &ms); err != nil {
			return nil, err
		}
		if sources != "" {
			r.Sources = strings.Split(sources, "\n---\n")
		}
		r.Error = errText.String
		r.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Report rebuilds a recorded run with its rows.
func (h *History) Report(ctx context.Context, runID string) (Report, error) {
	var started, finished sql.NullString
	err := h.db.QueryRowContext(ctx,
		`SELECT started_at, finished_at FROM runs WHERE run_id = ?`, runID).Scan(&started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, fmt.Errorf("run %s not recorded", runID)
	}
	if err != nil {
		return Report{}, err
	}
	rows, err := h.Answers(ctx, runID)
	if err != nil {
		return Report{}, err
	}
	return Report{
		RunID:      runID,
		StartedAt:  parseTime(started.String),
		FinishedAt: parseTime(finished.String),
		Rows:       rows,
	}, nil
}

// parseTime accepts both the datetime() text form and RFC 3339, which the
// driver may return for TIMESTAMP columns.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
