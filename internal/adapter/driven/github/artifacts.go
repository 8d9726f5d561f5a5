package github

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	gh "github.com/google/go-github/v82/github"
	"github.com/klauspost/compress/zip"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// maxArtifactBytes caps the size of a downloaded artifact archive and the
// total size of its decompressed entries.
const maxArtifactBytes = 512 << 20

// DownloadArtifact returns the named artifact produced by the given run. Only
// that run's artifacts are considered; expired artifacts count as missing.
func (c *Client) DownloadArtifact(ctx context.Context, repoFullName string, runID int64, name string) (*model.Artifact, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	artifacts, err := c.listRunArtifacts(ctx, owner, repo, runID)
	if err != nil {
		return nil, err
	}

	var found *gh.Artifact
	for _, a := range artifacts {
		if a.GetName() == name && !a.GetExpired() {
			found = a
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("artifact %q of %s run %d: %w", name, repoFullName, runID, model.ErrArtifactNotFound)
	}

	u, resp, err := c.gh.Actions.DownloadArtifact(ctx, owner, repo, found.GetID(), 3)
	if err != nil {
		if statusCode(resp) == http.StatusNotFound || statusCode(resp) == http.StatusGone {
			return nil, fmt.Errorf("artifact %q of %s run %d: %w", name, repoFullName, runID, model.ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("resolving download of artifact %q: %w", name, classify(err, resp))
	}

	data, err := c.fetch(ctx, u.String(), maxArtifactBytes)
	if err != nil {
		return nil, fmt.Errorf("downloading artifact %q: %w", name, err)
	}

	bundle, err := unzipBundle(data, maxArtifactBytes)
	if err != nil {
		return nil, fmt.Errorf("extracting artifact %q: %w", name, err)
	}

	return &model.Artifact{
		ID:     found.GetID(),
		Name:   found.GetName(),
		RunID:  runID,
		Bundle: bundle,
	}, nil
}

// listRunArtifacts returns all artifacts of a run, consulting the LRU cache first.
// A completed run's artifact list does not change, so entries never go stale.
func (c *Client) listRunArtifacts(ctx context.Context, owner, repo string, runID int64) ([]*gh.Artifact, error) {
	key := fmt.Sprintf("%s/%s#%d", owner, repo, runID)
	if cached, ok := c.artifacts.Get(key); ok {
		return cached, nil
	}

	opts := &gh.ListOptions{PerPage: 100}
	var all []*gh.Artifact

	for {
		list, resp, err := c.gh.Actions.ListWorkflowRunArtifacts(ctx, owner, repo, runID, opts)
		if err != nil {
			if statusCode(resp) == http.StatusNotFound {
				return nil, fmt.Errorf("run %d of %s/%s: %w", runID, owner, repo, model.ErrArtifactNotFound)
			}
			return nil, fmt.Errorf("listing artifacts for %s/%s run %d (page %d): %w", owner, repo, runID, opts.Page, classify(err, resp))
		}

		logRateLimit(resp, key+"/artifacts", opts.Page, len(list.Artifacts))
		all = append(all, list.Artifacts...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.artifacts.Add(key, all)
	return all, nil
}

// fetch downloads a pre-signed URL into memory, refusing bodies over limit bytes.
func (c *Client) fetch(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}

// get issues an unauthenticated GET and checks for a 200 response.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrServiceUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %w", model.ErrServiceUnavailable, err)
		}
		return nil, err
	}
	return resp, nil
}

// unzipBundle reads every regular file of a zip archive into a FileBundle.
// Entries with absolute paths or parent-directory components are rejected, as
// are archives whose entries decompress to more than limit bytes in total.
func unzipBundle(data []byte, limit int64) (model.FileBundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return model.FileBundle{}, fmt.Errorf("opening zip: %w", err)
	}

	var (
		bundle model.FileBundle
		total  int64
	)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		name, err := cleanArchivePath(f.Name)
		if err != nil {
			return model.FileBundle{}, err
		}

		rc, err := f.Open()
		if err != nil {
			return model.FileBundle{}, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, limit-total+1))
		_ = rc.Close()
		if err != nil {
			return model.FileBundle{}, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		if total += int64(len(content)); total > limit {
			return model.FileBundle{}, fmt.Errorf("artifact exceeds %d bytes decompressed at %s", limit, f.Name)
		}

		mode := uint32(f.Mode().Perm())
		if mode == 0 {
			mode = 0o644
		}
		bundle.Files = append(bundle.Files, model.BundleFile{Path: name, Content: content, Mode: mode})
	}

	return bundle, nil
}

// cleanArchivePath normalises an archive entry name and rejects names that
// would escape the extraction root.
func cleanArchivePath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	cleaned := path.Clean(name)
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." {
		return "", fmt.Errorf("unsafe archive entry %q", name)
	}
	return cleaned, nil
}
