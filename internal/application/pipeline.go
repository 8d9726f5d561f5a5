package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
	"github.com/ericfisherdev/chainupdate/internal/domain/port/driven"
)

// Pipeline runs the jobs of a pipeline definition for one upstream workflow
// run, persisting every state transition and job result to the run ledger.
type Pipeline struct {
	def       *model.PipelineDefinition
	trigger   *TriggerListener
	fetcher   *ArtifactFetcher
	mutator   *RepositoryMutator
	publisher *PullRequestPublisher
	notifier  *CrossRepoNotifier
	checkouts driven.CheckoutProvider
	runs      driven.RunStore
	locks     *keyedLock
	newID     func() string
}

// PipelineDeps groups the collaborators of a Pipeline.
type PipelineDeps struct {
	Artifacts    driven.ArtifactStore
	PullRequests driven.PullRequestService
	Branches     driven.BranchWriter
	AutoMerger   driven.AutoMerger
	Comments     driven.CommentService
	Checkouts    driven.CheckoutProvider
	Commands     driven.CommandRunner
	Runs         driven.RunStore
}

// NewPipeline wires a Pipeline for def.
func NewPipeline(def *model.PipelineDefinition, deps PipelineDeps) *Pipeline {
	return &Pipeline{
		def:       def,
		trigger:   NewTriggerListener(def.UpstreamWorkflow),
		fetcher:   NewArtifactFetcher(deps.Artifacts),
		mutator:   NewRepositoryMutator(deps.Commands),
		publisher: NewPullRequestPublisher(deps.PullRequests, deps.Branches, deps.AutoMerger),
		notifier:  NewCrossRepoNotifier(deps.Comments),
		checkouts: deps.Checkouts,
		runs:      deps.Runs,
		locks:     newKeyedLock(),
		newID:     uuid.NewString,
	}
}

// Accept reports whether ev would start a run. See TriggerListener.Accept.
func (p *Pipeline) Accept(ev model.WorkflowRunEvent) error {
	return p.trigger.Accept(ev)
}

// run tracks the state machine of one execution.
type run struct {
	record *model.RunRecord
	state  model.PipelineState
}

// Run executes the pipeline for ev and returns the final ledger record.
//
// Events the trigger rejects end the run as skipped without touching any
// repository. A missing artifact or an empty diff ends the affected job with
// a no-op outcome and the next job continues. Any other error fails the run
// and is returned alongside the record.
func (p *Pipeline) Run(ctx context.Context, ev model.WorkflowRunEvent) (*model.RunRecord, error) {
	r := &run{
		record: &model.RunRecord{
			ID:            p.newID(),
			UpstreamRunID: ev.RunID,
			Workflow:      ev.WorkflowName,
			Repository:    ev.Repository,
			Conclusion:    ev.Conclusion,
			PRNumber:      ev.PRNumber,
			State:         model.StateTriggered,
			Outcome:       model.RunPending,
			StartedAt:     time.Now().UTC(),
		},
		state: model.StateIdle,
	}
	if _, err := r.state.Transition(model.StateTriggered); err != nil {
		return nil, err
	}
	r.state = model.StateTriggered
	if err := p.runs.CreateRun(ctx, *r.record); err != nil {
		return nil, err
	}

	logger := slog.With("run", r.record.ID, "upstream_run_id", ev.RunID, "pr", ev.PRNumber)

	if err := p.trigger.Accept(ev); err != nil {
		logger.Info("run skipped", "reason", err)
		return p.finish(ctx, r, model.RunSkipped, err.Error())
	}

	if ev.HasPullRequest() {
		unlock, err := p.locks.Lock(ctx, fmt.Sprintf("%s#%d", ev.Repository, ev.PRNumber))
		if err != nil {
			return p.fail(ctx, r, fmt.Errorf("waiting for concurrent run: %w", err))
		}
		defer unlock()
	}

	logger.Info("run started", "jobs", len(p.def.Jobs))
	for _, job := range p.def.Jobs {
		if err := p.advance(ctx, r, model.StateFetchingArtifacts); err != nil {
			return p.fail(ctx, r, err)
		}
		result, err := p.runJob(ctx, r, ev, job)
		if err != nil {
			if result != nil {
				result.Outcome = model.JobFailed
				if saveErr := p.runs.SaveJobResult(context.WithoutCancel(ctx), r.record.ID, *result); saveErr != nil {
					logger.Error("saving failed job result", "job", job.Name, "error", saveErr)
				}
				r.record.Jobs = append(r.record.Jobs, *result)
			}
			logger.Error("job failed", "job", job.Name, "error", err)
			return p.fail(ctx, r, fmt.Errorf("job %s: %w", job.Name, err))
		}
		logger.Info("job finished", "job", job.Name, "outcome", result.Outcome, "pr_url", result.PRURL)
	}

	return p.finish(ctx, r, model.RunCompleted, "")
}

// runJob executes one job. On error the returned result, when non-nil, holds
// what is known about the job so far.
func (p *Pipeline) runJob(ctx context.Context, r *run, ev model.WorkflowRunEvent, job model.JobDefinition) (*model.JobResult, error) {
	result := &model.JobResult{Job: job.Name}
	if job.PullRequestOnly && !ev.HasPullRequest() {
		slog.Info("job skipped, upstream run has no pull request", "job", job.Name)
		result.Outcome = model.JobSkipped
		return result, p.save(ctx, r, result)
	}
	data := newTemplateData(ev)

	if job.Needs != "" {
		out, err := p.runs.ConsumeJobOutput(ctx, r.record.ID, job.Needs)
		if err != nil {
			return result, fmt.Errorf("reading output of %s: %w", job.Needs, err)
		}
		data.Needs[job.Needs] = *out
	}

	rendered, err := renderJob(job, data)
	if err != nil {
		return result, err
	}
	result.Title = rendered.Title
	result.Body = rendered.Body
	if rendered.Guarded > 0 {
		slog.Info("edits skipped by guard", "job", job.Name, "count", rendered.Guarded)
	}

	ws, err := p.checkouts.Checkout(ctx, model.CheckoutRequest{
		Repository: rendered.Repository,
		Ref:        rendered.Base,
		Dir:        job.CheckoutDir,
	})
	if err != nil {
		return result, fmt.Errorf("checking out %s: %w", rendered.Repository, err)
	}
	defer func() {
		if err := ws.Close(); err != nil {
			slog.Warn("closing workspace", "repo", rendered.Repository, "error", err)
		}
	}()

	if rendered.Artifact != "" {
		_, err := p.fetcher.Fetch(ctx, ws, ev.Repository, ev.RunID, rendered.Artifact, rendered.ArtifactPath)
		if errors.Is(err, model.ErrArtifactNotFound) {
			result.Outcome = model.JobArtifactMissing
			return result, p.save(ctx, r, result)
		}
		if err != nil {
			return result, err
		}
	}

	if err := p.advance(ctx, r, model.StateMutating); err != nil {
		return result, err
	}
	report, err := p.mutator.Apply(ctx, ws, rendered.Edits)
	if report != nil {
		result.Warnings = append(result.Warnings, report.Warnings...)
	}
	if err != nil {
		return result, err
	}

	if err := p.advance(ctx, r, model.StatePublishing); err != nil {
		return result, err
	}
	published, err := p.publisher.Publish(ctx, ws, model.PullRequestSpec{
		Repository:    rendered.Repository,
		Title:         rendered.Title,
		Body:          rendered.Body,
		CommitMessage: rendered.CommitMessage,
		Author:        p.def.Author,
		Base:          rendered.Base,
		Head:          rendered.Branch,
		Labels:        rendered.Labels,
		Assignees:     rendered.Assignees,
		Paths:         rendered.Paths,
		AutoMerge:     job.AutoMerge,
	})
	if errors.Is(err, model.ErrNoChangesDetected) {
		result.Outcome = model.JobNoChanges
		return result, p.save(ctx, r, result)
	}
	if err != nil {
		return result, err
	}

	result.Outcome = model.JobPublished
	if published.Action == model.PublishUnchanged {
		result.Outcome = model.JobUnchanged
	}
	result.PRURL = published.URL
	result.PRNumber = published.Number
	result.HeadSHA = published.HeadSHA

	if job.Notify != nil {
		if err := p.notify(ctx, r, ev, job, data, result); err != nil {
			return result, err
		}
	}

	return result, p.save(ctx, r, result)
}

// notify posts the job's cross-reference comment on the originating PR.
// Failures other than fatal ones become warnings on the job.
func (p *Pipeline) notify(ctx context.Context, r *run, ev model.WorkflowRunEvent, job model.JobDefinition, data TemplateData, result *model.JobResult) error {
	if !ev.HasPullRequest() {
		slog.Info("no originating pull request to notify", "job", job.Name)
		return nil
	}
	if err := p.advance(ctx, r, model.StateNotifying); err != nil {
		return err
	}

	data.Self = result.Output()
	message, err := render("notify.message", job.Notify.Message, data)
	if err != nil {
		return err
	}
	repository := ev.Repository
	if job.Notify.Repository != "" {
		if repository, err = render("notify.repository", job.Notify.Repository, data); err != nil {
			return err
		}
	}

	_, err = p.notifier.Notify(ctx, model.CommentSpec{
		Repository: repository,
		PRNumber:   ev.PRNumber,
		Tag:        job.Notify.Tag,
		Message:    message,
	})
	if err != nil {
		if model.IsFatal(err) {
			return err
		}
		slog.Warn("notification failed", "job", job.Name, "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("notify %s#%d: %v", repository, ev.PRNumber, err))
	}
	return nil
}

func (p *Pipeline) save(ctx context.Context, r *run, result *model.JobResult) error {
	if err := p.runs.SaveJobResult(ctx, r.record.ID, *result); err != nil {
		return err
	}
	r.record.Jobs = append(r.record.Jobs, *result)
	return nil
}

// advance moves the state machine and persists the new state.
func (p *Pipeline) advance(ctx context.Context, r *run, next model.PipelineState) error {
	state, err := r.state.Transition(next)
	if err != nil {
		return err
	}
	if err := p.runs.UpdateRunState(ctx, r.record.ID, state); err != nil {
		return err
	}
	r.state = state
	r.record.State = state
	return nil
}

func (p *Pipeline) fail(ctx context.Context, r *run, err error) (*model.RunRecord, error) {
	record, finishErr := p.finish(ctx, r, model.RunFailed, err.Error())
	if finishErr != nil {
		return record, errors.Join(err, finishErr)
	}
	return record, err
}

// finish moves the run to done and records its outcome. The ledger write uses
// a context detached from cancellation so a cancelled run is still closed out.
func (p *Pipeline) finish(ctx context.Context, r *run, outcome model.RunOutcome, msg string) (*model.RunRecord, error) {
	if _, err := r.state.Transition(model.StateDone); err != nil {
		return r.record, err
	}
	ctx = context.WithoutCancel(ctx)
	if err := p.runs.FinishRun(ctx, r.record.ID, outcome, msg); err != nil {
		return r.record, err
	}
	r.state = model.StateDone
	r.record.State = model.StateDone
	r.record.Outcome = outcome
	r.record.Error = msg
	r.record.FinishedAt = time.Now().UTC()
	return r.record, nil
}
