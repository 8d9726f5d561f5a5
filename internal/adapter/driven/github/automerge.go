package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// graphqlHTTPClient is the HTTP client used for GraphQL requests.
// It enforces a 30-second timeout as a safety net alongside context cancellation.
var graphqlHTTPClient = &http.Client{Timeout: 30 * time.Second}

const enableAutoMergeMutation = `mutation($id: ID!, $method: PullRequestMergeMethod!) {
	enablePullRequestAutoMerge(input: {pullRequestId: $id, mergeMethod: $method}) {
		pullRequest { number }
	}
}`

// graphqlRequest is the JSON body sent to the GitHub GraphQL API.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// graphqlMutationResponse represents the minimal response shape for GraphQL mutations.
// Only errors are inspected.
type graphqlMutationResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// EnableAutoMerge enables auto-merge on a pull request via the GraphQL API,
// which is the only API that exposes it. nodeID is the PR's GraphQL node ID.
// Enabling it on a PR that already has auto-merge on is not an error.
func (c *Client) EnableAutoMerge(ctx context.Context, repoFullName, nodeID string, method model.MergeMethod) error {
	if c.token == "" {
		return errors.New("enabling auto-merge requires a GitHub token")
	}
	if nodeID == "" {
		return fmt.Errorf("enabling auto-merge on %s: missing pull request node ID", repoFullName)
	}

	reqBody := graphqlRequest{
		Query: enableAutoMergeMutation,
		Variables: map[string]any{
			"id":     nodeID,
			"method": strings.ToUpper(string(method)),
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling auto-merge mutation: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("creating auto-merge request: %w", err)
	}
	httpReq.Header.Set("Authorization", fmt.Sprintf("bearer %s", c.token))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.graphqlHTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("auto-merge mutation for %s: %w", repoFullName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("auto-merge mutation for %s: %w: HTTP %d", repoFullName, model.ErrAuthorization, resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("auto-merge mutation for %s: %w: HTTP %d", repoFullName, model.ErrServiceUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("auto-merge mutation for %s: HTTP %d", repoFullName, resp.StatusCode)
	}

	var gqlResp graphqlMutationResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return fmt.Errorf("decoding auto-merge response for %s: %w", repoFullName, err)
	}

	if len(gqlResp.Errors) > 0 {
		msg := gqlResp.Errors[0].Message
		if strings.Contains(strings.ToLower(msg), "already enabled") {
			return nil
		}
		return fmt.Errorf("auto-merge mutation for %s: %s", repoFullName, msg)
	}

	return nil
}
