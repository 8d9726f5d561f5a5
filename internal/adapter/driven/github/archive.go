package github

import (
	"context"
	"fmt"
	"io"

	gh "github.com/google/go-github/v82/github"
)

// DownloadTarball streams the gzipped tarball of repoFullName at ref. The
// caller must close the returned reader.
func (c *Client) DownloadTarball(ctx context.Context, repoFullName, ref string) (io.ReadCloser, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	u, resp, err := c.gh.Repositories.GetArchiveLink(ctx, owner, repo, gh.Tarball, &gh.RepositoryContentGetOptions{Ref: ref}, 3)
	if err != nil {
		return nil, fmt.Errorf("resolving tarball of %s@%s: %w", repoFullName, ref, classify(err, resp))
	}

	dl, err := c.get(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("downloading tarball of %s@%s: %w", repoFullName, ref, err)
	}
	return dl.Body, nil
}
