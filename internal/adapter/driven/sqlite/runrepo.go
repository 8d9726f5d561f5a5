package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
	"github.com/ericfisherdev/chainupdate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RunStore = (*RunRepo)(nil)

// timeFormat is the layout of every timestamp column. It is fixed width so
// timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// RunRepo is the SQLite implementation of the RunStore port interface.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo backed by the given DB.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// CreateRun inserts a new run. The ID must be unique.
func (r *RunRepo) CreateRun(ctx context.Context, run model.RunRecord) error {
	const query = `
		INSERT INTO runs (
			id, upstream_run_id, workflow, repository, conclusion, pr_number,
			state, outcome, error, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	outcome := run.Outcome
	if outcome == "" {
		outcome = model.RunPending
	}
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		run.ID, run.UpstreamRunID, run.Workflow, run.Repository, string(run.Conclusion), run.PRNumber,
		string(run.State), string(outcome), run.Error, formatTime(startedAt),
	)
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRunState records the current pipeline state of a run.
func (r *RunRepo) UpdateRunState(ctx context.Context, id string, state model.PipelineState) error {
	const query = `UPDATE runs SET state = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(state), id)
	if err != nil {
		return fmt.Errorf("update state of run %s: %w", id, err)
	}
	return requireRow(result, id)
}

// FinishRun stamps the final outcome and finish time of a run and moves it to done.
func (r *RunRepo) FinishRun(ctx context.Context, id string, outcome model.RunOutcome, errMsg string) error {
	const query = `
		UPDATE runs SET state = ?, outcome = ?, error = ?, finished_at = ?
		WHERE id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		string(model.StateDone), string(outcome), errMsg, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return requireRow(result, id)
}

// GetRun retrieves a run with its job results.
// Returns nil, nil if the run does not exist.
func (r *RunRepo) GetRun(ctx context.Context, id string) (*model.RunRecord, error) {
	const query = `
		SELECT id, upstream_run_id, workflow, repository, conclusion, pr_number,
		       state, outcome, error, started_at, finished_at
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	run.Jobs, err = r.ListJobResults(ctx, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns up to limit runs, most recently started first.
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	const query = `
		SELECT id, upstream_run_id, workflow, repository, conclusion, pr_number,
		       state, outcome, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// SaveJobResult inserts or replaces the result of a job. Saving again does not
// reset whether its output has been consumed.
func (r *RunRepo) SaveJobResult(ctx context.Context, runID string, result model.JobResult) error {
	const query = `
		INSERT INTO job_results (
			run_id, job, outcome, pr_url, pr_number, head_sha, title, body, warnings
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, job) DO UPDATE SET
			outcome = excluded.outcome,
			pr_url = excluded.pr_url,
			pr_number = excluded.pr_number,
			head_sha = excluded.head_sha,
			title = excluded.title,
			body = excluded.body,
			warnings = excluded.warnings
	`

	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		runID, result.Job, string(result.Outcome), result.PRURL, result.PRNumber,
		result.HeadSHA, result.Title, result.Body, string(warningsJSON),
	)
	if err != nil {
		return fmt.Errorf("save result of job %s in run %s: %w", result.Job, runID, err)
	}
	return nil
}

// ListJobResults returns the job results of a run in the order they were first saved.
func (r *RunRepo) ListJobResults(ctx context.Context, runID string) ([]model.JobResult, error) {
	const query = `
		SELECT job, outcome, pr_url, pr_number, head_sha, title, body, warnings, consumed
		FROM job_results
		WHERE run_id = ?
		ORDER BY rowid
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query job results of run %s: %w", runID, err)
	}
	defer rows.Close()

	var results []model.JobResult
	for rows.Next() {
		var res model.JobResult
		var outcome, warningsJSON string
		var consumed int

		if err := rows.Scan(
			&res.Job, &outcome, &res.PRURL, &res.PRNumber, &res.HeadSHA,
			&res.Title, &res.Body, &warningsJSON, &consumed,
		); err != nil {
			return nil, fmt.Errorf("scan job result: %w", err)
		}

		res.Outcome = model.JobOutcome(outcome)
		res.Consumed = consumed != 0
		if err := json.Unmarshal([]byte(warningsJSON), &res.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job results: %w", err)
	}
	return results, nil
}

// ConsumeJobOutput marks a job's output consumed and returns it. The check and
// the update are one statement, so two readers can never both receive it.
func (r *RunRepo) ConsumeJobOutput(ctx context.Context, runID, job string) (*model.JobOutput, error) {
	const query = `
		UPDATE job_results SET consumed = 1
		WHERE run_id = ? AND job = ? AND consumed = 0
		RETURNING job, head_sha, pr_url, pr_number
	`

	var out model.JobOutput
	err := r.db.Writer.QueryRowContext(ctx, query, runID, job).
		Scan(&out.Job, &out.HeadSHA, &out.PRURL, &out.PRNumber)
	if err == nil {
		return &out, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consume output of job %s in run %s: %w", job, runID, err)
	}

	var exists int
	const existsQuery = `SELECT COUNT(*) FROM job_results WHERE run_id = ? AND job = ?`
	if err := r.db.Writer.QueryRowContext(ctx, existsQuery, runID, job).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check output of job %s in run %s: %w", job, runID, err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("job %s in run %s: %w", job, runID, model.ErrOutputConsumed)
	}
	return nil, fmt.Errorf("job %s in run %s has no recorded output", job, runID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*model.RunRecord, error) {
	var run model.RunRecord
	var conclusion, state, outcome, startedAt, finishedAt string

	err := s.Scan(
		&run.ID, &run.UpstreamRunID, &run.Workflow, &run.Repository, &conclusion, &run.PRNumber,
		&state, &outcome, &run.Error, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Conclusion = model.Conclusion(conclusion)
	run.State = model.PipelineState(state)
	run.Outcome = model.RunOutcome(outcome)

	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt != "" {
		run.FinishedAt, err = parseTime(finishedAt)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
	}

	return &run, nil
}

func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// parseTime accepts the stored layout and the formats SQLite's own datetime functions produce.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		timeFormat,
		time.RFC3339Nano,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
