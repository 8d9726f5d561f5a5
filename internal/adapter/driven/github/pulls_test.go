package github_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// prJSON is a helper struct for building GitHub API pull request responses.
type prJSON struct {
	Number  int       `json:"number"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	State   string    `json:"state"`
	HTMLURL string    `json:"html_url"`
	Head    refJSON   `json:"head"`
	Base    refJSON   `json:"base"`
	Labels  []lblJSON `json:"labels"`
}

type refJSON struct {
	Ref string `json:"ref"`
	SHA string `json:"sha,omitempty"`
}

type lblJSON struct {
	Name string `json:"name"`
}

func TestFindOpenPullRequest_Found(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/pymor/docker/pulls", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		assert.Equal(t, "pymor:update-requirements-7", r.URL.Query().Get("head"))
		assert.Equal(t, "main", r.URL.Query().Get("base"))

		writeJSON(t, w, http.StatusOK, []prJSON{{
			Number:  12,
			Title:   "Update requirements for pymor PR 7",
			State:   "open",
			HTMLURL: "https://github.com/pymor/docker/pull/12",
			Head:    refJSON{Ref: "update-requirements-7", SHA: "abc123"},
			Base:    refJSON{Ref: "main"},
			Labels:  []lblJSON{{Name: "automerge"}},
		}})
	})
	client, _ := newTestClient(t, handler)

	pr, err := client.FindOpenPullRequest(context.Background(), "pymor/docker", "update-requirements-7", "main")

	require.NoError(t, err)
	require.NotNil(t, pr)
	assert.Equal(t, 12, pr.Number)
	assert.Equal(t, "pymor/docker", pr.RepoFullName)
	assert.Equal(t, model.PRStatusOpen, pr.Status)
	assert.Equal(t, "https://github.com/pymor/docker/pull/12", pr.URL)
	assert.Equal(t, "update-requirements-7", pr.Branch)
	assert.Equal(t, "main", pr.BaseBranch)
	assert.Equal(t, "abc123", pr.HeadSHA)
	assert.Equal(t, []string{"automerge"}, pr.Labels)
}

func TestFindOpenPullRequest_None(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, []prJSON{})
	})
	client, _ := newTestClient(t, handler)

	pr, err := client.FindOpenPullRequest(context.Background(), "pymor/docker", "update-requirements-7", "main")

	require.NoError(t, err)
	assert.Nil(t, pr)
}

func TestFindOpenPullRequest_SkipsOtherBranches(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, []prJSON{
			{Number: 11, State: "open", Head: refJSON{Ref: "update-requirements-70"}, Base: refJSON{Ref: "main"}},
			{Number: 12, State: "closed", Head: refJSON{Ref: "update-requirements-7"}, Base: refJSON{Ref: "main"}},
			{Number: 13, State: "open", Head: refJSON{Ref: "update-requirements-7"}, Base: refJSON{Ref: "release"}},
		})
	})
	client, _ := newTestClient(t, handler)

	pr, err := client.FindOpenPullRequest(context.Background(), "pymor/docker", "update-requirements-7", "main")

	require.NoError(t, err)
	assert.Nil(t, pr)
}

func TestFindOpenPullRequest_Forbidden(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, map[string]string{"message": "Resource not accessible by integration"})
	})
	client, _ := newTestClient(t, handler)

	_, err := client.FindOpenPullRequest(context.Background(), "pymor/docker", "h", "main")

	assert.ErrorIs(t, err, model.ErrAuthorization)
}

func TestFindOpenPullRequest_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadGateway, map[string]string{"message": "bad gateway"})
	})
	client, _ := newTestClient(t, handler)

	_, err := client.FindOpenPullRequest(context.Background(), "pymor/docker", "h", "main")

	assert.ErrorIs(t, err, model.ErrServiceUnavailable)
}

func TestCreatePullRequest(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/pymor/docker/pulls", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Update requirements for pymor PR 7", body["title"])
		assert.Equal(t, "update-requirements-7", body["head"])
		assert.Equal(t, "main", body["base"])
		assert.Equal(t, "body text", body["body"])
		assert.Equal(t, true, body["maintainer_can_modify"])

		writeJSON(t, w, http.StatusCreated, prJSON{
			Number:  13,
			Title:   "Update requirements for pymor PR 7",
			State:   "open",
			HTMLURL: "https://github.com/pymor/docker/pull/13",
			Head:    refJSON{Ref: "update-requirements-7", SHA: "def456"},
			Base:    refJSON{Ref: "main"},
		})
	})
	client, _ := newTestClient(t, handler)

	pr, err := client.CreatePullRequest(context.Background(), model.PullRequestSpec{
		Repository: "pymor/docker",
		Title:      "Update requirements for pymor PR 7",
		Body:       "body text",
		Base:       "main",
		Head:       "update-requirements-7",
	})

	require.NoError(t, err)
	assert.Equal(t, 13, pr.Number)
	assert.Equal(t, "def456", pr.HeadSHA)
}

func TestUpdatePullRequest(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/repos/pymor/docker/pulls/13", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "new title", body["title"])
		assert.Equal(t, "new body", body["body"])

		writeJSON(t, w, http.StatusOK, prJSON{Number: 13, Title: "new title", Body: "new body", State: "open"})
	})
	client, _ := newTestClient(t, handler)

	pr, err := client.UpdatePullRequest(context.Background(), "pymor/docker", 13, model.PullRequestSpec{Title: "new title", Body: "new body"})

	require.NoError(t, err)
	assert.Equal(t, "new title", pr.Title)
	assert.Equal(t, "new body", pr.Body)
}

func TestAddLabelsAndAssignees(t *testing.T) {
	var labelled, assigned bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/pymor/docker/issues/13/labels", func(w http.ResponseWriter, r *http.Request) {
		var labels []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&labels))
		assert.Equal(t, []string{"automerge"}, labels)
		labelled = true
		writeJSON(t, w, http.StatusOK, []lblJSON{{Name: "automerge"}})
	})
	mux.HandleFunc("POST /repos/pymor/docker/issues/13/assignees", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Assignees []string `json:"assignees"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"alice"}, body.Assignees)
		assigned = true
		writeJSON(t, w, http.StatusCreated, map[string]any{"number": 13})
	})
	client, _ := newTestClient(t, mux)

	require.NoError(t, client.AddLabels(context.Background(), "pymor/docker", 13, []string{"automerge"}))
	require.NoError(t, client.AddAssignees(context.Background(), "pymor/docker", 13, []string{"alice"}))
	require.NoError(t, client.AddLabels(context.Background(), "pymor/docker", 13, nil), "empty label set is a no-op")

	assert.True(t, labelled)
	assert.True(t, assigned)
}
