// Package github implements the GitHub-facing driven ports using the go-github library.
package github

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
	"github.com/ericfisherdev/chainupdate/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.ArtifactStore      = (*Client)(nil)
	_ driven.PullRequestService = (*Client)(nil)
	_ driven.BranchWriter       = (*Client)(nil)
	_ driven.CommentService     = (*Client)(nil)
	_ driven.ArchiveSource      = (*Client)(nil)
	_ driven.AutoMerger         = (*Client)(nil)
)

const defaultGraphQLURL = "https://api.github.com/graphql"

// artifactCacheSize bounds the number of workflow runs whose artifact listings are kept.
const artifactCacheSize = 128

// Client implements the GitHub driven ports using the go-github library.
type Client struct {
	gh *gh.Client
	// download fetches pre-signed artifact and archive URLs. It must not carry
	// the API token, which would leak to the blob storage host.
	download  *http.Client
	artifacts *lru.Cache[string, []*gh.Artifact]

	token       string
	graphqlURL  string
	graphqlHTTP *http.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with token auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	c := newClient(client, &http.Client{Timeout: 5 * time.Minute})
	c.token = token
	c.graphqlURL = defaultGraphQLURL
	return c
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	client := gh.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	c := newClient(client, httpClient)
	c.token = token
	c.graphqlURL = u.String() + "graphql"
	c.graphqlHTTP = httpClient
	return c, nil
}

func newClient(client *gh.Client, download *http.Client) *Client {
	cache, err := lru.New[string, []*gh.Artifact](artifactCacheSize)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Client{gh: client, download: download, artifacts: cache, graphqlHTTP: graphqlHTTPClient}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// classify tags err with the domain sentinel matching the HTTP status, so the
// pipeline can tell fatal failures from recoverable ones.
func classify(err error, resp *gh.Response) error {
	if err == nil {
		return nil
	}

	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return fmt.Errorf("%w: %w", model.ErrServiceUnavailable, err)
	}

	status := statusCode(resp)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", model.ErrAuthorization, err)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", model.ErrServiceUnavailable, err)
	}
	return err
}

func statusCode(resp *gh.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
