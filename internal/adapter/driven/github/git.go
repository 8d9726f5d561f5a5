package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// BranchHead returns the commit SHA at the tip of branch, or "" if it does not exist.
func (c *Client) BranchHead(ctx context.Context, repoFullName, branch string) (string, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return "", err
	}

	ref, resp, err := c.gh.Git.GetRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		if statusCode(resp) == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("reading branch %s of %s: %w", branch, repoFullName, classify(err, resp))
	}
	return ref.GetObject().GetSHA(), nil
}

// DeleteBranch removes branch. A branch that does not exist is not an error.
func (c *Client) DeleteBranch(ctx context.Context, repoFullName, branch string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	resp, err := c.gh.Git.DeleteRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		// GitHub answers 422 "Reference does not exist" for missing branches.
		if s := statusCode(resp); s == http.StatusNotFound || s == http.StatusUnprocessableEntity {
			return nil
		}
		return fmt.Errorf("deleting branch %s of %s: %w", branch, repoFullName, classify(err, resp))
	}
	return nil
}

// CreateBranch creates branch at sha.
func (c *Client) CreateBranch(ctx context.Context, repoFullName, branch, sha string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	_, resp, err := c.gh.Git.CreateRef(ctx, owner, repo, gh.CreateRef{Ref: "refs/heads/" + branch, SHA: sha})
	if err != nil {
		if statusCode(resp) == http.StatusUnprocessableEntity {
			return fmt.Errorf("creating branch %s of %s: %w: %w", branch, repoFullName, model.ErrPublishConflict, err)
		}
		return fmt.Errorf("creating branch %s of %s: %w", branch, repoFullName, classify(err, resp))
	}
	return nil
}

// ForceBranch moves branch to sha, discarding whatever it pointed at.
func (c *Client) ForceBranch(ctx context.Context, repoFullName, branch, sha string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	_, resp, err := c.gh.Git.UpdateRef(ctx, owner, repo, "heads/"+branch, gh.UpdateRef{SHA: sha, Force: gh.Ptr(true)})
	if err != nil {
		return fmt.Errorf("moving branch %s of %s to %s: %w", branch, repoFullName, sha, classify(err, resp))
	}
	return nil
}

// CommitChanges builds a tree from the tree of req.BaseSHA plus req.Changes
// and commits it on top of req.ParentSHA. When the tree equals the parent's
// tree no commit is created and the parent SHA is returned with Changed=false.
func (c *Client) CommitChanges(ctx context.Context, repoFullName string, req model.CommitRequest) (*model.CommitResult, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	baseTree, err := c.commitTree(ctx, owner, repo, req.BaseSHA)
	if err != nil {
		return nil, err
	}
	parentTree := baseTree
	if req.ParentSHA != req.BaseSHA {
		if parentTree, err = c.commitTree(ctx, owner, repo, req.ParentSHA); err != nil {
			return nil, err
		}
	}

	treeSHA := baseTree
	if len(req.Changes) > 0 {
		entries, err := c.treeEntries(ctx, owner, repo, req.Changes)
		if err != nil {
			return nil, err
		}
		tree, resp, err := c.gh.Git.CreateTree(ctx, owner, repo, baseTree, entries)
		if err != nil {
			return nil, fmt.Errorf("creating tree in %s: %w", repoFullName, classify(err, resp))
		}
		treeSHA = tree.GetSHA()
	}

	if treeSHA == parentTree {
		return &model.CommitResult{SHA: req.ParentSHA, TreeSHA: treeSHA, Changed: false}, nil
	}

	commit := gh.Commit{
		Message: gh.Ptr(req.Message),
		Tree:    &gh.Tree{SHA: gh.Ptr(treeSHA)},
		Parents: []*gh.Commit{{SHA: gh.Ptr(req.ParentSHA)}},
	}
	if req.Author.Name != "" {
		commit.Author = &gh.CommitAuthor{Name: gh.Ptr(req.Author.Name), Email: gh.Ptr(req.Author.Email)}
	}

	created, resp, err := c.gh.Git.CreateCommit(ctx, owner, repo, commit, nil)
	if err != nil {
		return nil, fmt.Errorf("creating commit in %s: %w", repoFullName, classify(err, resp))
	}

	return &model.CommitResult{SHA: created.GetSHA(), TreeSHA: treeSHA, Changed: true}, nil
}

func (c *Client) commitTree(ctx context.Context, owner, repo, sha string) (string, error) {
	commit, resp, err := c.gh.Git.GetCommit(ctx, owner, repo, sha)
	if err != nil {
		return "", fmt.Errorf("reading commit %s of %s/%s: %w", sha, owner, repo, classify(err, resp))
	}
	return commit.GetTree().GetSHA(), nil
}

// treeEntries uploads changed file contents as blobs. Deleted files become
// entries with neither SHA nor content, which go-github encodes as "sha": null.
func (c *Client) treeEntries(ctx context.Context, owner, repo string, changes []model.FileChange) ([]*gh.TreeEntry, error) {
	entries := make([]*gh.TreeEntry, 0, len(changes))
	for _, ch := range changes {
		mode := ch.Mode
		if mode == "" {
			mode = model.FileModeRegular
		}
		entry := &gh.TreeEntry{
			Path: gh.Ptr(ch.Path),
			Mode: gh.Ptr(mode),
			Type: gh.Ptr("blob"),
		}

		if !ch.Deleted {
			blob, resp, err := c.gh.Git.CreateBlob(ctx, owner, repo, gh.Blob{
				Content:  gh.Ptr(base64.StdEncoding.EncodeToString(ch.Content)),
				Encoding: gh.Ptr("base64"),
			})
			if err != nil {
				return nil, fmt.Errorf("uploading blob for %s: %w", ch.Path, classify(err, resp))
			}
			entry.SHA = blob.SHA
		}

		entries = append(entries, entry)
	}
	return entries, nil
}
