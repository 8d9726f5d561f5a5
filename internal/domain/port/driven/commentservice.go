package driven

import (
	"context"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// CommentService defines the driven port for PR-level (issue) comments.
type CommentService interface {
	ListIssueComments(ctx context.Context, repoFullName string, prNumber int) ([]model.IssueComment, error)
	CreateIssueComment(ctx context.Context, repoFullName string, prNumber int, body string) (*model.IssueComment, error)
	EditIssueComment(ctx context.Context, repoFullName string, commentID int64, body string) (*model.IssueComment, error)
}
