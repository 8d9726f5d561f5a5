// Package workspace implements working trees on the local filesystem.
package workspace

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
	"github.com/ericfisherdev/chainupdate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Workspace = (*Dir)(nil)

// fileState is the snapshot of one file taken at checkout.
type fileState struct {
	sum        [sha256.Size]byte
	executable bool
}

// Dir is a working tree rooted at a local directory. It snapshots every file
// when opened and diffs against that snapshot in Changes.
type Dir struct {
	root       string
	repository string
	ref        string
	temporary  bool
	snapshot   map[string]fileState
}

// OpenDir snapshots the tree at root. When temporary is true, Close removes root.
func OpenDir(root, repository, ref string, temporary bool) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root %s: %w", root, err)
	}

	snapshot, err := scan(abs)
	if err != nil {
		return nil, err
	}

	return &Dir{
		root:       abs,
		repository: repository,
		ref:        ref,
		temporary:  temporary,
		snapshot:   snapshot,
	}, nil
}

func (d *Dir) Root() string       { return d.root }
func (d *Dir) Repository() string { return d.repository }
func (d *Dir) Ref() string        { return d.ref }

// ReadFile reads a file relative to the workspace root.
func (d *Dir) ReadFile(rel string) ([]byte, error) {
	full, err := d.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// WriteFile writes a file relative to the workspace root, creating parent
// directories. A zero mode keeps the mode of an existing file, or 0644.
func (d *Dir) WriteFile(rel string, data []byte, mode uint32) error {
	full, err := d.resolve(rel)
	if err != nil {
		return err
	}

	perm := fs.FileMode(mode).Perm()
	if perm == 0 {
		perm = 0o644
		if info, err := os.Stat(full); err == nil {
			perm = info.Mode().Perm()
		}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(full, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	// WriteFile only applies perm on creation.
	if err := os.Chmod(full, perm); err != nil {
		return fmt.Errorf("setting mode of %s: %w", rel, err)
	}
	return nil
}

// Changes reports every file added, modified or deleted since the snapshot,
// sorted by path. A change of the executable bit alone counts as a modification.
func (d *Dir) Changes() ([]model.FileChange, error) {
	current, err := scan(d.root)
	if err != nil {
		return nil, err
	}

	var changes []model.FileChange
	for rel, now := range current {
		before, existed := d.snapshot[rel]
		if existed && before == now {
			continue
		}
		content, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("reading changed file %s: %w", rel, err)
		}
		mode := model.FileModeRegular
		if now.executable {
			mode = model.FileModeExecutable
		}
		changes = append(changes, model.FileChange{Path: rel, Content: content, Mode: mode})
	}
	for rel := range d.snapshot {
		if _, ok := current[rel]; !ok {
			changes = append(changes, model.FileChange{Path: rel, Deleted: true})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

// Close removes temporary working trees. Local checkouts are left in place.
func (d *Dir) Close() error {
	if !d.temporary {
		return nil
	}
	if err := os.RemoveAll(d.root); err != nil {
		return fmt.Errorf("removing workspace %s: %w", d.root, err)
	}
	return nil
}

// resolve maps a slash-separated relative path to an absolute path inside the root.
func (d *Dir) resolve(rel string) (string, error) {
	clean, err := cleanRelative(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

var errUnsafePath = errors.New("path escapes the workspace")

// cleanRelative normalises rel and rejects absolute paths and parent traversal.
func cleanRelative(rel string) (string, error) {
	rel = strings.ReplaceAll(rel, "\\", "/")
	if rel == "" || path.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q", errUnsafePath, rel)
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", errUnsafePath, rel)
	}
	return clean, nil
}

// scan hashes every regular file under root. The .git directory and symlinks are skipped.
func scan(root string) (map[string]fileState, error) {
	states := make(map[string]fileState)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		states[filepath.ToSlash(rel)] = fileState{
			sum:        sha256.Sum256(data),
			executable: info.Mode().Perm()&0o111 != 0,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning workspace %s: %w", root, err)
	}
	return states, nil
}
