package driven

import (
	"context"
	"io"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// Workspace is a writable working tree of one repository. Paths are
// slash-separated and relative to the repository root.
type Workspace interface {
	Root() string
	Repository() string
	Ref() string
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, mode uint32) error
	// Changes reports every file added, modified or deleted since checkout, sorted by path.
	Changes() ([]model.FileChange, error)
	// Close releases the working tree. Temporary checkouts are removed.
	Close() error
}

// CheckoutProvider supplies working trees.
type CheckoutProvider interface {
	Checkout(ctx context.Context, req model.CheckoutRequest) (Workspace, error)
}

// ArchiveSource streams a gzipped tarball of a repository at a ref.
type ArchiveSource interface {
	DownloadTarball(ctx context.Context, repoFullName, ref string) (io.ReadCloser, error)
}

// CommandRunner runs an external command in a directory and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, dir string, argv []string) ([]byte, error)
}
