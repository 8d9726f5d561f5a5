package model

import (
	"fmt"
	"time"
)

// PipelineState is a step of the ChainedUpdatePipeline state machine.
type PipelineState string

const (
	StateIdle              PipelineState = "idle"
	StateTriggered         PipelineState = "triggered"
	StateFetchingArtifacts PipelineState = "fetching_artifacts"
	StateMutating          PipelineState = "mutating"
	StatePublishing        PipelineState = "publishing"
	StateNotifying         PipelineState = "notifying"
	StateDone              PipelineState = "done"
)

// transitions lists the legal successors of each state. Every job starts at
// fetching_artifacts, so the later states loop back there for the next job.
var transitions = map[PipelineState][]PipelineState{
	StateIdle:              {StateTriggered},
	StateTriggered:         {StateFetchingArtifacts, StateDone},
	StateFetchingArtifacts: {StateMutating, StateFetchingArtifacts, StateDone},
	StateMutating:          {StatePublishing, StateDone},
	StatePublishing:        {StateNotifying, StateFetchingArtifacts, StateDone},
	StateNotifying:         {StateFetchingArtifacts, StateDone},
	StateDone:              {},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s PipelineState) CanTransitionTo(next PipelineState) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Transition returns next if it is a legal successor of s, or ErrInvalidTransition.
func (s PipelineState) Transition(next PipelineState) (PipelineState, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

// RunOutcome is the final result of a pipeline run.
type RunOutcome string

const (
	RunPending   RunOutcome = "pending"
	RunCompleted RunOutcome = "completed"
	RunSkipped   RunOutcome = "skipped"
	RunFailed    RunOutcome = "failed"
)

// JobOutcome is the final result of a single job.
type JobOutcome string

const (
	JobPublished       JobOutcome = "published"
	JobUnchanged       JobOutcome = "unchanged"
	JobNoChanges       JobOutcome = "no_changes"
	JobArtifactMissing JobOutcome = "artifact_missing"
	JobSkipped         JobOutcome = "skipped"
	JobFailed          JobOutcome = "failed"
)

// RunRecord is the persisted ledger entry of one pipeline execution.
type RunRecord struct {
	ID            string
	UpstreamRunID int64
	Workflow      string
	Repository    string
	Conclusion    Conclusion
	PRNumber      int
	State         PipelineState
	Outcome       RunOutcome
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Jobs          []JobResult
}

// JobResult is the persisted result of one job within a run.
type JobResult struct {
	Job      string
	Outcome  JobOutcome
	PRURL    string
	PRNumber int
	HeadSHA  string
	Title    string
	Body     string
	Warnings []string
	Consumed bool
}

// Output returns the value downstream jobs receive from this job.
func (r JobResult) Output() JobOutput {
	return JobOutput{Job: r.Job, HeadSHA: r.HeadSHA, PRURL: r.PRURL, PRNumber: r.PRNumber}
}

// JobOutput is the value threaded from a job to the job that needs it.
// HeadSHA is empty when the producing job published nothing.
type JobOutput struct {
	Job      string
	HeadSHA  string
	PRURL    string
	PRNumber int
}

// PipelineDefinition is the validated, declarative description of a pipeline.
type PipelineDefinition struct {
	UpstreamWorkflow string
	Author           CommitAuthor
	Jobs             []JobDefinition
}

// JobDefinition declares one job. String fields other than Name, Needs and
// CheckoutDir are text/template sources rendered per run.
type JobDefinition struct {
	Name          string
	Needs         string
	Repository    string
	Base          string
	CheckoutDir   string
	Artifact      string
	ArtifactPath  string
	Branch        string
	Title         string
	Body          string
	CommitMessage string
	Labels        []string
	Assignees     []string
	Paths         []string
	AutoMerge     MergeMethod
	// PullRequestOnly skips the job when the upstream run has no pull request.
	PullRequestOnly bool
	Edits           []FileEdit
	Notify          *NotifyDefinition
}

// NotifyDefinition declares the cross-reference comment posted after a job publishes.
// An empty Repository means the upstream run's repository.
type NotifyDefinition struct {
	Repository string
	Tag        string
	Message    string
}
