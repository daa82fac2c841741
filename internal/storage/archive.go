// Package storage archives finished synthesis runs in SQLite. The
// archive is an audit record of outcomes, not session state: nothing is
// restored from it on restart.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/RRFRRF/Repo2TutorialAgent/internal/agent"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	task_id           TEXT PRIMARY KEY,
	repo_path         TEXT NOT NULL,
	status            TEXT NOT NULL,
	iterations        INTEGER NOT NULL,
	confidence        REAL NOT NULL,
	prompt_tokens     INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens      INTEGER NOT NULL,
	document          TEXT NOT NULL,
	finished_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
`

// ErrNotFound is returned when no run exists for a task ID.
var ErrNotFound = errors.New("run not found")

// RunRecord is one archived run.
type RunRecord struct {
	TaskID           string
	RepoPath         string
	Status           string
	Iterations       int
	Confidence       float64
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Document         string
	FinishedAt       time.Time
}

// Archive is a SQLite-backed store of finished runs.
type Archive struct {
	db *sql.DB
}

// Open creates or opens the archive database at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging archive database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Save implements agent.Saver: it records the terminal state of a run.
func (a *Archive) Save(ctx context.Context, taskID string, st *agent.State) error {
	query := `
		INSERT OR REPLACE INTO runs (
			task_id, repo_path, status, iterations, confidence,
			prompt_tokens, completion_tokens, total_tokens, document, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := a.db.ExecContext(ctx, query,
		taskID,
		st.RepoPath,
		string(st.Status),
		st.IterationCount,
		st.ConfidenceScore,
		st.Usage.TotalPromptTokens,
		st.Usage.TotalCompletionTokens,
		st.Usage.TotalTokens,
		st.CurrentDocument,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("archiving run %s: %w", taskID, err)
	}
	return nil
}

// Compile-time check that Archive satisfies the save step's interface.
var _ agent.Saver = (*Archive)(nil)

// GetRun fetches one archived run by task ID.
func (a *Archive) GetRun(ctx context.Context, taskID string) (*RunRecord, error) {
	query := `
		SELECT task_id, repo_path, status, iterations, confidence,
		       prompt_tokens, completion_tokens, total_tokens, document, finished_at
		FROM runs WHERE task_id = ?
	`
	var rec RunRecord
	err := a.db.QueryRowContext(ctx, query, taskID).Scan(
		&rec.TaskID, &rec.RepoPath, &rec.Status, &rec.Iterations, &rec.Confidence,
		&rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens, &rec.Document, &rec.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", taskID, err)
	}
	return &rec, nil
}

// ListRuns returns the most recently finished runs, newest first. The
// document column is omitted to keep listings cheap.
func (a *Archive) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT task_id, repo_path, status, iterations, confidence,
		       prompt_tokens, completion_tokens, total_tokens, finished_at
		FROM runs ORDER BY finished_at DESC LIMIT ?
	`
	rows, err := a.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.TaskID, &rec.RepoPath, &rec.Status, &rec.Iterations, &rec.Confidence,
			&rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens, &rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
