package model

import "strings"

// PRStatus represents the state of a pull request.
type PRStatus string

const (
	PRStatusOpen   PRStatus = "open"
	PRStatusClosed PRStatus = "closed"
	PRStatusMerged PRStatus = "merged"
)

// PullRequest is the subset of a GitHub pull request the publisher needs.
type PullRequest struct {
	Number       int
	NodeID       string // GraphQL node ID, needed for auto-merge.
	RepoFullName string
	Title        string
	Body         string
	Status       PRStatus
	URL          string
	Branch       string
	BaseBranch   string
	HeadSHA      string
	Labels       []string
}

// Carries reports whether pr is an open pull request of repo from head into base.
func (pr PullRequest) Carries(repo, head, base string) bool {
	return pr.Status == PRStatusOpen && pr.RepoFullName == repo && pr.Branch == head && pr.BaseBranch == base
}

// MissingLabels returns the labels in want that pr does not carry yet.
// GitHub label names compare case-insensitively.
func (pr PullRequest) MissingLabels(want []string) []string {
	var missing []string
	for _, w := range want {
		found := false
		for _, have := range pr.Labels {
			if strings.EqualFold(have, w) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, w)
		}
	}
	return missing
}

// PullRequestSpec is everything needed to create or update an automation PR.
// Head is derived from the originating PR number so repeated runs reuse one branch.
type PullRequestSpec struct {
	Repository    string
	Title         string
	Body          string
	CommitMessage string
	Author        CommitAuthor
	Base          string
	Head          string
	Labels        []string
	Assignees     []string
	Paths         []string // Glob filter over changed paths; empty means every path.
	AutoMerge     MergeMethod
}

// MergeMethod selects how GitHub merges a pull request once auto-merge fires.
// The empty value leaves auto-merge disabled.
type MergeMethod string

const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

// Valid reports whether m is empty or a merge method GitHub accepts.
func (m MergeMethod) Valid() bool {
	switch m {
	case "", MergeMethodMerge, MergeMethodSquash, MergeMethodRebase:
		return true
	}
	return false
}

// PublishAction records what the publisher did with a PullRequestSpec.
type PublishAction string

const (
	PublishCreated   PublishAction = "created"
	PublishUpdated   PublishAction = "updated"
	PublishUnchanged PublishAction = "unchanged"
)

// PublishResult is returned by a successful publish.
type PublishResult struct {
	URL     string
	Number  int
	HeadSHA string
	Action  PublishAction
}
