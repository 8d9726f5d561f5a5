package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
	"github.com/ericfisherdev/chainupdate/internal/domain/port/driven"
)

// PullRequestPublisher turns the changes of a working tree into a pull
// request on a deterministic head branch, creating it once and updating it in
// place on later runs.
type PullRequestPublisher struct {
	prs      driven.PullRequestService
	branches driven.BranchWriter
	merger   driven.AutoMerger
}

// NewPullRequestPublisher creates a PullRequestPublisher. merger may be nil,
// in which case specs asking for auto-merge only get a warning.
func NewPullRequestPublisher(prs driven.PullRequestService, branches driven.BranchWriter, merger driven.AutoMerger) *PullRequestPublisher {
	return &PullRequestPublisher{prs: prs, branches: branches, merger: merger}
}

// Publish commits the changes of ws that match spec.Paths to spec.Head and
// makes sure one open pull request from spec.Head into spec.Base carries them.
//
// It returns an error wrapping model.ErrNoChangesDetected, and no URL, when
// nothing under the path filter differs from the base branch. When an open
// pull request already has exactly this content it is left alone and
// reported as model.PublishUnchanged.
func (p *PullRequestPublisher) Publish(ctx context.Context, ws driven.Workspace, spec model.PullRequestSpec) (*model.PublishResult, error) {
	all, err := ws.Changes()
	if err != nil {
		return nil, fmt.Errorf("computing changes: %w", err)
	}
	changes, err := filterChanges(all, spec.Paths)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("%s: %w under %v", spec.Repository, model.ErrNoChangesDetected, spec.Paths)
	}

	existing, err := p.prs.FindOpenPullRequest(ctx, spec.Repository, spec.Head, spec.Base)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Carries(spec.Repository, spec.Head, spec.Base) {
		slog.Warn("ignoring pull request that does not carry the head branch",
			"repo", spec.Repository, "number", existing.Number, "status", existing.Status, "branch", existing.Branch, "base", existing.BaseBranch)
		existing = nil
	}

	baseSHA, err := p.branches.BranchHead(ctx, spec.Repository, spec.Base)
	if err != nil {
		return nil, err
	}
	if baseSHA == "" {
		return nil, fmt.Errorf("base branch %s of %s does not exist", spec.Base, spec.Repository)
	}

	if existing == nil {
		return p.create(ctx, spec, baseSHA, changes)
	}
	return p.update(ctx, spec, existing, baseSHA, changes)
}

func (p *PullRequestPublisher) create(ctx context.Context, spec model.PullRequestSpec, baseSHA string, changes []model.FileChange) (*model.PublishResult, error) {
	commit, err := p.branches.CommitChanges(ctx, spec.Repository, model.CommitRequest{
		BaseSHA:   baseSHA,
		ParentSHA: baseSHA,
		Message:   spec.CommitMessage,
		Author:    spec.Author,
		Changes:   changes,
	})
	if err != nil {
		return nil, err
	}
	if !commit.Changed {
		return nil, fmt.Errorf("%s: %w against %s", spec.Repository, model.ErrNoChangesDetected, spec.Base)
	}

	// A branch left over from a closed PR is discarded.
	if err := p.branches.DeleteBranch(ctx, spec.Repository, spec.Head); err != nil {
		return nil, err
	}
	if err := p.branches.CreateBranch(ctx, spec.Repository, spec.Head, commit.SHA); err != nil {
		if !errors.Is(err, model.ErrPublishConflict) {
			return nil, err
		}
		slog.Warn("head branch created concurrently, overwriting", "repo", spec.Repository, "branch", spec.Head)
		if err := p.branches.ForceBranch(ctx, spec.Repository, spec.Head, commit.SHA); err != nil {
			return nil, err
		}
	}

	pr, err := p.prs.CreatePullRequest(ctx, spec)
	if err != nil {
		return nil, err
	}

	p.decorate(ctx, spec, pr)

	slog.Info("pull request created", "repo", spec.Repository, "number", pr.Number, "url", pr.URL, "head_sha", commit.SHA)
	return &model.PublishResult{URL: pr.URL, Number: pr.Number, HeadSHA: commit.SHA, Action: model.PublishCreated}, nil
}

func (p *PullRequestPublisher) update(ctx context.Context, spec model.PullRequestSpec, existing *model.PullRequest, baseSHA string, changes []model.FileChange) (*model.PublishResult, error) {
	headSHA := existing.HeadSHA
	if headSHA == "" {
		sha, err := p.branches.BranchHead(ctx, spec.Repository, spec.Head)
		if err != nil {
			return nil, err
		}
		headSHA = sha
	}

	commit, err := p.branches.CommitChanges(ctx, spec.Repository, model.CommitRequest{
		BaseSHA:   baseSHA,
		ParentSHA: headSHA,
		Message:   spec.CommitMessage,
		Author:    spec.Author,
		Changes:   changes,
	})
	if err != nil {
		return nil, err
	}

	textChanged := existing.Title != spec.Title || existing.Body != spec.Body
	if !commit.Changed && !textChanged {
		slog.Info("pull request already up to date", "repo", spec.Repository, "number", existing.Number)
		return &model.PublishResult{URL: existing.URL, Number: existing.Number, HeadSHA: headSHA, Action: model.PublishUnchanged}, nil
	}

	if commit.Changed {
		// Last writer wins: the branch is moved even if another run pushed meanwhile.
		if err := p.branches.ForceBranch(ctx, spec.Repository, spec.Head, commit.SHA); err != nil {
			return nil, err
		}
	}

	pr := existing
	if textChanged {
		if pr, err = p.prs.UpdatePullRequest(ctx, spec.Repository, existing.Number, spec); err != nil {
			return nil, err
		}
		if pr.URL == "" {
			pr.URL = existing.URL
		}
		if pr.NodeID == "" {
			pr.NodeID = existing.NodeID
		}
	}

	p.decorate(ctx, spec, pr)

	slog.Info("pull request updated", "repo", spec.Repository, "number", existing.Number, "head_sha", commit.SHA)
	return &model.PublishResult{URL: existing.URL, Number: existing.Number, HeadSHA: commit.SHA, Action: model.PublishUpdated}, nil
}

// decorate applies labels, assignees and auto-merge. They are metadata, so
// failures are logged and never fail the publish.
func (p *PullRequestPublisher) decorate(ctx context.Context, spec model.PullRequestSpec, pr *model.PullRequest) {
	if missing := pr.MissingLabels(spec.Labels); len(missing) > 0 {
		if err := p.prs.AddLabels(ctx, spec.Repository, pr.Number, missing); err != nil {
			slog.Warn("adding labels failed", "repo", spec.Repository, "number", pr.Number, "error", err)
		}
	}
	if err := p.prs.AddAssignees(ctx, spec.Repository, pr.Number, spec.Assignees); err != nil {
		slog.Warn("adding assignees failed", "repo", spec.Repository, "number", pr.Number, "error", err)
	}

	if spec.AutoMerge == "" {
		return
	}
	if p.merger == nil {
		slog.Warn("auto-merge requested but not supported", "repo", spec.Repository, "number", pr.Number)
		return
	}
	if err := p.merger.EnableAutoMerge(ctx, spec.Repository, pr.NodeID, spec.AutoMerge); err != nil {
		slog.Warn("enabling auto-merge failed", "repo", spec.Repository, "number", pr.Number, "error", err)
	}
}

// filterChanges keeps the changes whose path matches any of the doublestar
// patterns. No patterns keeps everything.
func filterChanges(changes []model.FileChange, patterns []string) ([]model.FileChange, error) {
	if len(patterns) == 0 {
		return changes, nil
	}
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid path pattern %q", pattern)
		}
	}

	var kept []model.FileChange
	for _, ch := range changes {
		for _, pattern := range patterns {
			if doublestar.MatchUnvalidated(pattern, ch.Path) {
				kept = append(kept, ch)
				break
			}
		}
	}
	return kept, nil
}
