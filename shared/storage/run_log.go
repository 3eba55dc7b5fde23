package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// RunStatus is the final state of a pipeline run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// Run is one recorded pipeline invocation
type Run struct {
	ID         string
	Command    string
	Status     RunStatus
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Outcome is the recorded result of one video within a run
type Outcome struct {
	VideoID       string        `db:"video_id"`
	CacheKey      string        `db:"cache_key"`
	Status        string        `db:"status"`
	Comments      int           `db:"comments"`
	FailedBatches int           `db:"failed_batches"`
	Error         string        `db:"error"`
	Duration      time.Duration `db:"-"`
}

type runRow struct {
	ID         string         `db:"id"`
	Command    string         `db:"command"`
	Status     string         `db:"status"`
	Error      sql.NullString `db:"error"`
	StartedAt  string         `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
}

type outcomeRow struct {
	Outcome
	RunID      string `db:"run_id"`
	DurationMS int64  `db:"duration_ms"`
}

// RunLog keeps the history of pipeline runs in a SQLite database
type RunLog struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// OpenRunLog opens (or creates) the run log database at path
func OpenRunLog(path string, logger *zap.Logger) (*RunLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if err := initRunLogSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init run log schema: %w", err)
	}
	return &RunLog{db: db, logger: logger}, nil
}

func initRunLogSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT,
	started_at  TEXT NOT NULL,
	finished_at TEXT
);
CREATE TABLE IF NOT EXISTS video_outcomes (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	video_id       TEXT NOT NULL,
	cache_key      TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	comments       INTEGER NOT NULL DEFAULT 0,
	failed_batches INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, video_id)
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);`)
	return err
}

func (rl *RunLog) Close() error {
	return rl.db.Close()
}

// StartRun records a new run and returns its id
func (rl *RunLog) StartRun(ctx context.Context, command string) (string, error) {
	id := uuid.NewString()
	_, err := rl.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, status, started_at) VALUES (?, ?, ?, ?)`,
		id, command, string(RunRunning), formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to record run start: %w", err)
	}
	rl.logger.Debug("Run started", zap.String("run_id", id), zap.String("command", command))
	return id, nil
}

// RecordOutcome stores the outcome of one video, replacing an earlier one for the same run
func (rl *RunLog) RecordOutcome(ctx context.Context, runID string, o Outcome) error {
	row := outcomeRow{Outcome: o, RunID: runID, DurationMS: o.Duration.Milliseconds()}
	_, err := rl.db.NamedExecContext(ctx, `
INSERT OR REPLACE INTO video_outcomes
	(run_id, video_id, cache_key, status, comments, failed_batches, error, duration_ms)
VALUES
	(:run_id, :video_id, :cache_key, :status, :comments, :failed_batches, :error, :duration_ms)`, row)
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", o.VideoID, err)
	}
	return nil
}

// FinishRun sets the final status of a run
func (rl *RunLog) FinishRun(ctx context.Context, runID string, status RunStatus, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := rl.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), errText, formatTime(time.Now()), runID)
	if err != nil {
		return fmt.Errorf("failed to record run end: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first
func (rl *RunLog) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []runRow
	err := rl.db.SelectContext(ctx, &rows,
		`SELECT id, command, status, error, started_at, finished_at FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		run := Run{
			ID:        r.ID,
			Command:   r.Command,
			Status:    RunStatus(r.Status),
			Error:     r.Error.String,
			StartedAt: parseTime(r.StartedAt),
		}
		if r.FinishedAt.Valid {
			run.FinishedAt = parseTime(r.FinishedAt.String)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Outcomes returns the per-video outcomes of a run ordered by video id
func (rl *RunLog) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	var rows []outcomeRow
	err := rl.db.SelectContext(ctx, &rows,
		`SELECT run_id, video_id, cache_key, status, comments, failed_batches, error, duration_ms
		 FROM video_outcomes WHERE run_id = ? ORDER BY video_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes for %s: %w", runID, err)
	}

	outcomes := make([]Outcome, 0, len(rows))
	for _, r := range rows {
		o := r.Outcome
		o.Duration = time.Duration(r.DurationMS) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// fixed width so that stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
