package github

import (
	"context"
	"fmt"
)

// Authenticated verifies the client's token and returns the login it belongs to.
// The server calls it once at startup so a bad token fails fast.
func (c *Client) Authenticated(ctx context.Context) (string, error) {
	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", classify(err, resp))
	}
	return user.GetLogin(), nil
}
