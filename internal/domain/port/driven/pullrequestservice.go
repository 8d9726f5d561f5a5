package driven

import (
	"context"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// PullRequestService defines the driven port for pull request operations.
type PullRequestService interface {
	// FindOpenPullRequest returns the open PR from head into base, or nil if there is none.
	FindOpenPullRequest(ctx context.Context, repoFullName, head, base string) (*model.PullRequest, error)
	CreatePullRequest(ctx context.Context, spec model.PullRequestSpec) (*model.PullRequest, error)
	// UpdatePullRequest rewrites the title and body of an existing PR.
	UpdatePullRequest(ctx context.Context, repoFullName string, number int, spec model.PullRequestSpec) (*model.PullRequest, error)

	// Labels and assignees are best-effort metadata.

	AddLabels(ctx context.Context, repoFullName string, number int, labels []string) error
	AddAssignees(ctx context.Context, repoFullName string, number int, assignees []string) error
}

// BranchWriter defines the driven port for writing commits and branches
// without a local git client.
type BranchWriter interface {
	// BranchHead returns the commit SHA at the tip of branch, or "" if the branch does not exist.
	BranchHead(ctx context.Context, repoFullName, branch string) (string, error)
	// DeleteBranch removes branch. A missing branch is not an error.
	DeleteBranch(ctx context.Context, repoFullName, branch string) error
	// CommitChanges applies req.Changes to the tree of req.BaseSHA and commits the
	// result on top of req.ParentSHA, unless the tree equals the parent's tree.
	CommitChanges(ctx context.Context, repoFullName string, req model.CommitRequest) (*model.CommitResult, error)
	// CreateBranch creates branch at sha. It returns an error wrapping
	// model.ErrPublishConflict when the branch already exists.
	CreateBranch(ctx context.Context, repoFullName, branch, sha string) error
	// ForceBranch moves branch to sha regardless of its current position.
	ForceBranch(ctx context.Context, repoFullName, branch, sha string) error
}

// AutoMerger turns on GitHub's auto-merge for a pull request so it merges as
// soon as its required checks pass.
type AutoMerger interface {
	EnableAutoMerge(ctx context.Context, repoFullName, nodeID string, method model.MergeMethod) error
}
