package driven

import (
	"context"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// RunStore defines the driven port for the pipeline run ledger.
type RunStore interface {
	CreateRun(ctx context.Context, run model.RunRecord) error
	UpdateRunState(ctx context.Context, id string, state model.PipelineState) error
	FinishRun(ctx context.Context, id string, outcome model.RunOutcome, errMsg string) error
	// GetRun returns the run with its job results, or (nil, nil) if it does not exist.
	GetRun(ctx context.Context, id string) (*model.RunRecord, error)
	// ListRuns returns the most recent runs first, without job results.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)

	// SaveJobResult inserts or replaces the result of a job.
	SaveJobResult(ctx context.Context, runID string, result model.JobResult) error
	ListJobResults(ctx context.Context, runID string) ([]model.JobResult, error)
	// ConsumeJobOutput returns a job's output exactly once. Later calls return an
	// error wrapping model.ErrOutputConsumed.
	ConsumeJobOutput(ctx context.Context, runID, job string) (*model.JobOutput, error)
}
