package application

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
	"github.com/ericfisherdev/chainupdate/internal/domain/port/driven"
)

// --- workspace ---

// memWorkspace is an in-memory working tree that diffs against its initial files.
type memWorkspace struct {
	repo    string
	ref     string
	files   map[string]string
	modes   map[string]uint32
	initial map[string]string
	closed  bool
}

func newMemWorkspace(repo, ref string, files map[string]string) *memWorkspace {
	ws := &memWorkspace{
		repo:    repo,
		ref:     ref,
		files:   map[string]string{},
		modes:   map[string]uint32{},
		initial: map[string]string{},
	}
	for k, v := range files {
		ws.files[k] = v
		ws.initial[k] = v
	}
	return ws
}

func (w *memWorkspace) Root() string       { return "/work/" + w.repo }
func (w *memWorkspace) Repository() string { return w.repo }
func (w *memWorkspace) Ref() string        { return w.ref }

func (w *memWorkspace) ReadFile(p string) ([]byte, error) {
	v, ok := w.files[p]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, fs.ErrNotExist)
	}
	return []byte(v), nil
}

func (w *memWorkspace) WriteFile(p string, data []byte, mode uint32) error {
	if strings.HasPrefix(path.Clean(p), "..") {
		return errors.New("path escapes the workspace")
	}
	w.files[p] = string(data)
	if mode != 0 {
		w.modes[p] = mode
	}
	return nil
}

func (w *memWorkspace) Changes() ([]model.FileChange, error) {
	var changes []model.FileChange
	for p, v := range w.files {
		if old, ok := w.initial[p]; ok && old == v {
			continue
		}
		changes = append(changes, model.FileChange{Path: p, Content: []byte(v), Mode: model.FileModeRegular})
	}
	for p := range w.initial {
		if _, ok := w.files[p]; !ok {
			changes = append(changes, model.FileChange{Path: p, Deleted: true})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func (w *memWorkspace) Close() error {
	w.closed = true
	return nil
}

// fakeCheckouts hands out memWorkspaces seeded from the fake GitHub's base branches.
type fakeCheckouts struct {
	gh       *fakeGitHub
	opened   []*memWorkspace
	requests []model.CheckoutRequest
	err      error
}

func (f *fakeCheckouts) Checkout(_ context.Context, req model.CheckoutRequest) (driven.Workspace, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	ws := newMemWorkspace(req.Repository, req.Ref, f.gh.branchFiles(req.Repository, req.Ref))
	f.opened = append(f.opened, ws)
	return ws, nil
}

// --- artifacts ---

type fakeArtifacts struct {
	artifacts map[string]*model.Artifact // keyed by name
	err       error
	calls     int
}

func (f *fakeArtifacts) DownloadArtifact(_ context.Context, _ string, runID int64, name string) (*model.Artifact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("artifact %q of run %d: %w", name, runID, model.ErrArtifactNotFound)
	}
	return a, nil
}

// --- command runner ---

type fakeRunner struct {
	calls [][]string
	dirs  []string
	fn    func(argv []string) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, dir string, argv []string) ([]byte, error) {
	f.calls = append(f.calls, argv)
	f.dirs = append(f.dirs, dir)
	if f.fn != nil {
		return f.fn(argv)
	}
	return nil, nil
}

// --- GitHub ---

// fakeGitHub is an in-memory GitHub holding commits as full file maps, so
// tree equality behaves like the real Git data API.
type fakeGitHub struct {
	mu       sync.Mutex
	commits  map[string]map[string]string // sha -> files
	branches map[string]string            // repo:branch -> sha
	prs      []*model.PullRequest
	comments map[string][]model.IssueComment // repo#pr -> comments
	nextID   int

	createdPRs     int
	createdCommits int
	edits          int
	labels         map[int][]string
	labelCalls     int
	assignees      map[int][]string
	autoMerged     map[string]model.MergeMethod

	failLabels  error
	failFind    error
	failComment error
	// createBranchConflict makes the first CreateBranch report a conflict.
	createBranchConflict bool
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		commits:    map[string]map[string]string{},
		branches:   map[string]string{},
		comments:   map[string][]model.IssueComment{},
		labels:     map[int][]string{},
		assignees:  map[int][]string{},
		autoMerged: map[string]model.MergeMethod{},
	}
}

// seedBranch creates branch in repo holding files.
func (g *fakeGitHub) seedBranch(repo, branch string, files map[string]string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	sha := g.newSHA()
	g.commits[sha] = files
	g.branches[repo+":"+branch] = sha
	return sha
}

func (g *fakeGitHub) branchFiles(repo, branch string) map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := map[string]string{}
	for k, v := range g.commits[g.branches[repo+":"+branch]] {
		out[k] = v
	}
	return out
}

func (g *fakeGitHub) newSHA() string {
	g.nextID++
	return fmt.Sprintf("sha%03d", g.nextID)
}

func treeHash(files map[string]string) string {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s\x00%s\x00", k, files[k])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (g *fakeGitHub) openPRs(repo string) []*model.PullRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*model.PullRequest
	for _, pr := range g.prs {
		if pr.RepoFullName == repo && pr.Status == model.PRStatusOpen {
			out = append(out, pr)
		}
	}
	return out
}

func (g *fakeGitHub) FindOpenPullRequest(_ context.Context, repo, head, base string) (*model.PullRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFind != nil {
		return nil, g.failFind
	}
	for _, pr := range g.prs {
		if pr.RepoFullName == repo && pr.Branch == head && pr.BaseBranch == base && pr.Status == model.PRStatusOpen {
			cp := *pr
			cp.HeadSHA = g.branches[repo+":"+head]
			cp.Labels = append([]string(nil), g.labels[pr.Number]...)
			return &cp, nil
		}
	}
	return nil, nil
}

func (g *fakeGitHub) CreatePullRequest(_ context.Context, spec model.PullRequestSpec) (*model.PullRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdPRs++
	number := 100 + len(g.prs)
	pr := &model.PullRequest{
		Number:       number,
		NodeID:       fmt.Sprintf("PR_%d", number),
		RepoFullName: spec.Repository,
		Title:        spec.Title,
		Body:         spec.Body,
		Status:       model.PRStatusOpen,
		URL:          fmt.Sprintf("https://github.com/%s/pull/%d", spec.Repository, number),
		Branch:       spec.Head,
		BaseBranch:   spec.Base,
		HeadSHA:      g.branches[spec.Repository+":"+spec.Head],
	}
	g.prs = append(g.prs, pr)
	cp := *pr
	return &cp, nil
}

func (g *fakeGitHub) UpdatePullRequest(_ context.Context, repo string, number int, spec model.PullRequestSpec) (*model.PullRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, pr := range g.prs {
		if pr.RepoFullName == repo && pr.Number == number {
			g.edits++
			pr.Title = spec.Title
			pr.Body = spec.Body
			cp := *pr
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("pull request %s#%d not found", repo, number)
}

func (g *fakeGitHub) AddLabels(_ context.Context, _ string, number int, labels []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.labelCalls++
	if g.failLabels != nil {
		return g.failLabels
	}
	g.labels[number] = append(g.labels[number], labels...)
	return nil
}

func (g *fakeGitHub) AddAssignees(_ context.Context, _ string, number int, assignees []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.assignees[number] = append(g.assignees[number], assignees...)
	return nil
}

func (g *fakeGitHub) EnableAutoMerge(_ context.Context, _ string, nodeID string, method model.MergeMethod) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.autoMerged[nodeID] = method
	return nil
}

func (g *fakeGitHub) BranchHead(_ context.Context, repo, branch string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.branches[repo+":"+branch], nil
}

func (g *fakeGitHub) DeleteBranch(_ context.Context, repo, branch string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.branches, repo+":"+branch)
	return nil
}

func (g *fakeGitHub) CreateBranch(_ context.Context, repo, branch, sha string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createBranchConflict {
		g.createBranchConflict = false
		g.branches[repo+":"+branch] = "racing-sha"
		return fmt.Errorf("creating branch %s: %w", branch, model.ErrPublishConflict)
	}
	if _, ok := g.branches[repo+":"+branch]; ok {
		return fmt.Errorf("creating branch %s: %w", branch, model.ErrPublishConflict)
	}
	g.branches[repo+":"+branch] = sha
	return nil
}

func (g *fakeGitHub) ForceBranch(_ context.Context, repo, branch, sha string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.branches[repo+":"+branch] = sha
	return nil
}

func (g *fakeGitHub) CommitChanges(_ context.Context, _ string, req model.CommitRequest) (*model.CommitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	base, ok := g.commits[req.BaseSHA]
	if !ok {
		return nil, fmt.Errorf("unknown base commit %s", req.BaseSHA)
	}
	tree := map[string]string{}
	for k, v := range base {
		tree[k] = v
	}
	for _, ch := range req.Changes {
		if ch.Deleted {
			delete(tree, ch.Path)
			continue
		}
		tree[ch.Path] = string(ch.Content)
	}

	if treeHash(tree) == treeHash(g.commits[req.ParentSHA]) {
		return &model.CommitResult{SHA: req.ParentSHA, TreeSHA: treeHash(tree), Changed: false}, nil
	}

	g.createdCommits++
	sha := g.newSHA()
	g.commits[sha] = tree
	return &model.CommitResult{SHA: sha, TreeSHA: treeHash(tree), Changed: true}, nil
}

func (g *fakeGitHub) ListIssueComments(_ context.Context, repo string, pr int) ([]model.IssueComment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.IssueComment(nil), g.comments[fmt.Sprintf("%s#%d", repo, pr)]...), nil
}

func (g *fakeGitHub) CreateIssueComment(_ context.Context, repo string, pr int, body string) (*model.IssueComment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failComment != nil {
		return nil, g.failComment
	}
	g.nextID++
	c := model.IssueComment{ID: int64(g.nextID), Body: body}
	key := fmt.Sprintf("%s#%d", repo, pr)
	g.comments[key] = append(g.comments[key], c)
	return &c, nil
}

func (g *fakeGitHub) EditIssueComment(_ context.Context, repo string, id int64, body string) (*model.IssueComment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edits++
	for key, list := range g.comments {
		if !strings.HasPrefix(key, repo+"#") {
			continue
		}
		for i := range list {
			if list[i].ID == id {
				list[i].Body = body
				c := list[i]
				return &c, nil
			}
		}
	}
	return nil, fmt.Errorf("comment %d not found", id)
}

func (g *fakeGitHub) commentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, list := range g.comments {
		n += len(list)
	}
	return n
}

// --- run store ---

type fakeRunStore struct {
	mu      sync.Mutex
	runs    map[string]*model.RunRecord
	states  map[string][]model.PipelineState
	results map[string][]model.JobResult
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		runs:    map[string]*model.RunRecord{},
		states:  map[string][]model.PipelineState{},
		results: map[string][]model.JobResult{},
	}
}

func (s *fakeRunStore) CreateRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s exists", run.ID)
	}
	s.runs[run.ID] = &run
	s.states[run.ID] = []model.PipelineState{run.State}
	return nil
}

func (s *fakeRunStore) UpdateRunState(_ context.Context, id string, state model.PipelineState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id].State = state
	s.states[id] = append(s.states[id], state)
	return nil
}

func (s *fakeRunStore) FinishRun(_ context.Context, id string, outcome model.RunOutcome, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id].State = model.StateDone
	s.runs[id].Outcome = outcome
	s.runs[id].Error = errMsg
	s.states[id] = append(s.states[id], model.StateDone)
	return nil
}

func (s *fakeRunStore) GetRun(_ context.Context, id string) (*model.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	cp.Jobs = append([]model.JobResult(nil), s.results[id]...)
	return &cp, nil
}

func (s *fakeRunStore) ListRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RunRecord
	for _, r := range s.runs {
		out = append(out, *r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeRunStore) SaveJobResult(_ context.Context, runID string, result model.JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.results[runID] {
		if r.Job == result.Job {
			result.Consumed = r.Consumed
			s.results[runID][i] = result
			return nil
		}
	}
	s.results[runID] = append(s.results[runID], result)
	return nil
}

func (s *fakeRunStore) ListJobResults(_ context.Context, runID string) ([]model.JobResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.JobResult(nil), s.results[runID]...), nil
}

func (s *fakeRunStore) ConsumeJobOutput(_ context.Context, runID, job string) (*model.JobOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.results[runID] {
		if r.Job != job {
			continue
		}
		if r.Consumed {
			return nil, fmt.Errorf("job %s: %w", job, model.ErrOutputConsumed)
		}
		s.results[runID][i].Consumed = true
		out := r.Output()
		return &out, nil
	}
	return nil, fmt.Errorf("job %s has no recorded output", job)
}
