package application

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
	"github.com/ericfisherdev/chainupdate/internal/domain/port/driven"
)

// ArtifactFetcher downloads the artifact of a specific workflow run and lays
// its files out in a working tree.
type ArtifactFetcher struct {
	store driven.ArtifactStore
}

// NewArtifactFetcher creates an ArtifactFetcher backed by store.
func NewArtifactFetcher(store driven.ArtifactStore) *ArtifactFetcher {
	return &ArtifactFetcher{store: store}
}

// Fetch downloads artifact name of runID in repository and writes every file
// of its bundle under dest, a slash-separated directory relative to the
// workspace root ("" for the root itself). It returns an error wrapping
// model.ErrArtifactNotFound when the run has no such artifact.
func (f *ArtifactFetcher) Fetch(ctx context.Context, ws driven.Workspace, repository string, runID int64, name, dest string) (*model.FileBundle, error) {
	artifact, err := f.store.DownloadArtifact(ctx, repository, runID, name)
	if err != nil {
		return nil, err
	}

	for _, file := range artifact.Bundle.Files {
		target := file.Path
		if dest != "" {
			target = path.Join(dest, file.Path)
		}
		if err := ws.WriteFile(target, file.Content, file.Mode&0o777); err != nil {
			return nil, fmt.Errorf("writing artifact %s file %s: %w", name, file.Path, err)
		}
	}

	slog.Info("artifact fetched",
		"artifact", name,
		"run_id", runID,
		"files", len(artifact.Bundle.Files),
		"dest", dest,
	)
	return &artifact.Bundle, nil
}
