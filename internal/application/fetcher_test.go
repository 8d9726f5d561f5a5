package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

func TestArtifactFetcher_WritesBundleUnderDest(t *testing.T) {
	store := &fakeArtifacts{artifacts: map[string]*model.Artifact{
		"requirements": {Name: "requirements", RunID: 42, Bundle: model.FileBundle{Files: []model.BundleFile{
			{Path: "requirements.txt", Content: []byte("numpy==2.0.0\n")},
			{Path: "ci/requirements-ci.txt", Content: []byte("pytest\n"), Mode: 0o100644},
		}}},
	}}
	ws := newMemWorkspace("pymor/docker", "main", nil)

	bundle, err := NewArtifactFetcher(store).Fetch(context.Background(), ws, "pymor/pymor", 42, "requirements", "constraints")

	require.NoError(t, err)
	assert.Equal(t, []string{"requirements.txt", "ci/requirements-ci.txt"}, bundle.Paths())
	assert.Equal(t, "numpy==2.0.0\n", ws.files["constraints/requirements.txt"])
	assert.Equal(t, "pytest\n", ws.files["constraints/ci/requirements-ci.txt"])
	assert.Equal(t, uint32(0o644), ws.modes["constraints/ci/requirements-ci.txt"])
}

func TestArtifactFetcher_RootDest(t *testing.T) {
	store := &fakeArtifacts{artifacts: map[string]*model.Artifact{
		"env": {Bundle: model.FileBundle{Files: []model.BundleFile{{Path: ".env", Content: []byte("A=1\n")}}}},
	}}
	ws := newMemWorkspace("pymor/pymor", "main", nil)

	_, err := NewArtifactFetcher(store).Fetch(context.Background(), ws, "pymor/pymor", 42, "env", "")

	require.NoError(t, err)
	assert.Equal(t, "A=1\n", ws.files[".env"])
}

func TestArtifactFetcher_NotFound(t *testing.T) {
	ws := newMemWorkspace("pymor/docker", "main", nil)

	_, err := NewArtifactFetcher(&fakeArtifacts{}).Fetch(context.Background(), ws, "pymor/pymor", 42, "requirements", "constraints")

	assert.ErrorIs(t, err, model.ErrArtifactNotFound)
	assert.Empty(t, ws.files)
}
