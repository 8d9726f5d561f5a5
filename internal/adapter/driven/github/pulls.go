package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// FindOpenPullRequest returns the open pull request from head into base, or nil
// when there is none. head is a branch of repoFullName itself.
func (c *Client) FindOpenPullRequest(ctx context.Context, repoFullName, head, base string) (*model.PullRequest, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.PullRequestListOptions{
		State:       "open",
		Head:        owner + ":" + head,
		Base:        base,
		ListOptions: gh.ListOptions{PerPage: 10},
	}

	prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, fmt.Errorf("listing open pull requests for %s (%s -> %s): %w", repoFullName, head, base, classify(err, resp))
	}

	logRateLimit(resp, repoFullName+"/pulls", 0, len(prs))

	for _, pr := range prs {
		mapped := mapPullRequest(pr, repoFullName)
		if mapped.Carries(repoFullName, head, base) {
			return &mapped, nil
		}
	}
	return nil, nil
}

// CreatePullRequest opens a pull request for spec. The head branch must already exist.
func (c *Client) CreatePullRequest(ctx context.Context, spec model.PullRequestSpec) (*model.PullRequest, error) {
	owner, repo, err := splitRepo(spec.Repository)
	if err != nil {
		return nil, err
	}

	pr, resp, err := c.gh.PullRequests.Create(ctx, owner, repo, &gh.NewPullRequest{
		Title:               gh.Ptr(spec.Title),
		Head:                gh.Ptr(spec.Head),
		Base:                gh.Ptr(spec.Base),
		Body:                gh.Ptr(spec.Body),
		MaintainerCanModify: gh.Ptr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request %s (%s -> %s): %w", spec.Repository, spec.Head, spec.Base, classify(err, resp))
	}

	mapped := mapPullRequest(pr, spec.Repository)
	return &mapped, nil
}

// UpdatePullRequest rewrites the title and body of an existing pull request.
func (c *Client) UpdatePullRequest(ctx context.Context, repoFullName string, number int, spec model.PullRequestSpec) (*model.PullRequest, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	pr, resp, err := c.gh.PullRequests.Edit(ctx, owner, repo, number, &gh.PullRequest{
		Title: gh.Ptr(spec.Title),
		Body:  gh.Ptr(spec.Body),
	})
	if err != nil {
		return nil, fmt.Errorf("updating pull request %s#%d: %w", repoFullName, number, classify(err, resp))
	}

	mapped := mapPullRequest(pr, repoFullName)
	return &mapped, nil
}

// AddLabels adds labels to a pull request. Existing labels are kept.
func (c *Client) AddLabels(ctx context.Context, repoFullName string, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	_, resp, err := c.gh.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels)
	if err != nil {
		return fmt.Errorf("labelling %s#%d: %w", repoFullName, number, classify(err, resp))
	}
	return nil
}

// AddAssignees assigns users to a pull request.
func (c *Client) AddAssignees(ctx context.Context, repoFullName string, number int, assignees []string) error {
	if len(assignees) == 0 {
		return nil
	}
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	_, resp, err := c.gh.Issues.AddAssignees(ctx, owner, repo, number, assignees)
	if err != nil {
		return fmt.Errorf("assigning %s#%d: %w", repoFullName, number, classify(err, resp))
	}
	return nil
}

// mapPullRequest converts a go-github PullRequest to a domain model PullRequest.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapPullRequest(pr *gh.PullRequest, repoFullName string) model.PullRequest {
	status := model.PRStatusOpen
	if !pr.GetMergedAt().IsZero() {
		status = model.PRStatusMerged
	} else if pr.GetState() == "closed" {
		status = model.PRStatusClosed
	}

	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	return model.PullRequest{
		Number:       pr.GetNumber(),
		NodeID:       pr.GetNodeID(),
		RepoFullName: repoFullName,
		Title:        pr.GetTitle(),
		Body:         pr.GetBody(),
		Status:       status,
		URL:          pr.GetHTMLURL(),
		Branch:       pr.GetHead().GetRef(),
		BaseBranch:   pr.GetBase().GetRef(),
		HeadSHA:      pr.GetHead().GetSHA(),
		Labels:       labels,
	}
}
