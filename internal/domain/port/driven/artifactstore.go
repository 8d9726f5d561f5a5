package driven

import (
	"context"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// ArtifactStore defines the driven port for retrieving workflow run artifacts.
type ArtifactStore interface {
	// DownloadArtifact returns the named artifact of a specific run. It returns
	// an error wrapping model.ErrArtifactNotFound when the run has no such
	// artifact or the artifact has expired.
	DownloadArtifact(ctx context.Context, repoFullName string, runID int64, name string) (*model.Artifact, error)
}
