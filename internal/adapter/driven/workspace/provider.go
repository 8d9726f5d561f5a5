package workspace

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
	"github.com/ericfisherdev/chainupdate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CheckoutProvider = (*Provider)(nil)

// maxExtractedBytes bounds the total size of an extracted repository archive.
const maxExtractedBytes = 2 << 30

// Provider hands out working trees: existing local checkouts when a request
// names a directory, otherwise fresh extractions of the repository tarball.
type Provider struct {
	archives driven.ArchiveSource
	workDir  string
}

// NewProvider creates a Provider that extracts archives under workDir.
func NewProvider(archives driven.ArchiveSource, workDir string) *Provider {
	return &Provider{archives: archives, workDir: workDir}
}

// Checkout returns a working tree for req.
func (p *Provider) Checkout(ctx context.Context, req model.CheckoutRequest) (driven.Workspace, error) {
	if req.Dir != "" {
		info, err := os.Stat(req.Dir)
		if err != nil {
			return nil, fmt.Errorf("local checkout of %s: %w", req.Repository, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("local checkout of %s: %s is not a directory", req.Repository, req.Dir)
		}
		return OpenDir(req.Dir, req.Repository, req.Ref, false)
	}

	if p.archives == nil {
		return nil, fmt.Errorf("checkout of %s: no archive source configured", req.Repository)
	}

	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	dir, err := os.MkdirTemp(p.workDir, "chainupdate-*")
	if err != nil {
		return nil, fmt.Errorf("creating checkout dir: %w", err)
	}

	if err := p.extract(ctx, req, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	ws, err := OpenDir(dir, req.Repository, req.Ref, true)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	slog.Debug("checked out repository archive", "repo", req.Repository, "ref", req.Ref, "dir", dir)
	return ws, nil
}

func (p *Provider) extract(ctx context.Context, req model.CheckoutRequest, dest string) error {
	body, err := p.archives.DownloadTarball(ctx, req.Repository, req.Ref)
	if err != nil {
		return fmt.Errorf("downloading %s@%s: %w", req.Repository, req.Ref, err)
	}
	defer func() { _ = body.Close() }()

	if err := ExtractTarball(body, dest); err != nil {
		return fmt.Errorf("extracting %s@%s: %w", req.Repository, req.Ref, err)
	}
	return nil
}

// ExtractTarball unpacks a gzipped tar stream into dest. GitHub archives wrap
// the tree in a single "<owner>-<repo>-<sha>/" directory, which is stripped.
// Entries that would land outside dest are rejected.
func ExtractTarball(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	var written int64
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		rel, ok := stripTopDir(hdr.Name)
		if !ok {
			continue
		}
		clean, err := cleanRelative(rel)
		if err != nil {
			return fmt.Errorf("unsafe archive entry %q: %w", hdr.Name, err)
		}
		target := filepath.Join(dest, filepath.FromSlash(clean))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", clean, err)
			}
		case tar.TypeReg:
			if written += hdr.Size; written > maxExtractedBytes {
				return fmt.Errorf("archive exceeds %d bytes", int64(maxExtractedBytes))
			}
			if err := writeEntry(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("extracting %s: %w", clean, err)
			}
		default:
			// Symlinks and special files are skipped.
		}
	}
}

func writeEntry(r io.Reader, target string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm&0o111 != 0 {
		perm = 0o755
	} else {
		perm = 0o644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// stripTopDir drops the first path component. It reports false for the
// top-level directory itself and for the pax global header.
func stripTopDir(name string) (string, bool) {
	name = strings.TrimPrefix(name, "./")
	_, rest, found := strings.Cut(name, "/")
	if !found || rest == "" {
		return "", false
	}
	return rest, true
}
