package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
	"github.com/ericfisherdev/chainupdate/internal/domain/port/driven"
)

// CrossRepoNotifier keeps exactly one comment per tag on a pull request.
type CrossRepoNotifier struct {
	comments driven.CommentService
}

// NewCrossRepoNotifier creates a CrossRepoNotifier backed by comments.
func NewCrossRepoNotifier(comments driven.CommentService) *CrossRepoNotifier {
	return &CrossRepoNotifier{comments: comments}
}

// Notify edits the first comment on the pull request that carries the tag's
// marker, or creates one. An existing comment whose body already matches is
// returned without an edit.
func (n *CrossRepoNotifier) Notify(ctx context.Context, spec model.CommentSpec) (*model.IssueComment, error) {
	if spec.PRNumber <= 0 {
		return nil, fmt.Errorf("notify %s: no pull request number", spec.Repository)
	}

	existing, err := n.comments.ListIssueComments(ctx, spec.Repository, spec.PRNumber)
	if err != nil {
		return nil, err
	}

	body := spec.Body()
	for i := range existing {
		c := existing[i]
		if !model.HasMarker(c.Body, spec.Tag) {
			continue
		}
		if c.Body == body {
			slog.Debug("comment already current", "repo", spec.Repository, "pr", spec.PRNumber, "tag", spec.Tag)
			return &c, nil
		}
		updated, err := n.comments.EditIssueComment(ctx, spec.Repository, c.ID, body)
		if err != nil {
			return nil, err
		}
		slog.Info("comment updated", "repo", spec.Repository, "pr", spec.PRNumber, "tag", spec.Tag, "comment_id", c.ID)
		return updated, nil
	}

	created, err := n.comments.CreateIssueComment(ctx, spec.Repository, spec.PRNumber, body)
	if err != nil {
		return nil, err
	}
	slog.Info("comment created", "repo", spec.Repository, "pr", spec.PRNumber, "tag", spec.Tag, "comment_id", created.ID)
	return created, nil
}
