package model

import (
	"fmt"
	"strings"
	"time"
)

// IssueComment represents a PR-level general comment (from the GitHub Issues API).
type IssueComment struct {
	ID        int64
	Author    string
	Body      string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CommentSpec is a tagged comment to upsert on a pull request.
type CommentSpec struct {
	Repository string
	PRNumber   int
	Tag        string
	Message    string
}

// CommentMarker returns the hidden HTML marker that identifies comments for tag.
func CommentMarker(tag string) string {
	return fmt.Sprintf("<!-- chainupdate:%s -->", tag)
}

// Body renders the full comment body: the marker on its own line followed by the message.
func (s CommentSpec) Body() string {
	return CommentMarker(s.Tag) + "\n" + s.Message
}

// HasMarker reports whether body carries the marker for tag.
func HasMarker(body, tag string) bool {
	return strings.Contains(body, CommentMarker(tag))
}
