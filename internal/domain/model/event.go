package model

// Conclusion is the final result GitHub reports for a completed workflow run.
type Conclusion string

const (
	ConclusionSuccess   Conclusion = "success"
	ConclusionFailure   Conclusion = "failure"
	ConclusionCancelled Conclusion = "cancelled"
	ConclusionSkipped   Conclusion = "skipped"
	ConclusionTimedOut  Conclusion = "timed_out"
	ConclusionNeutral   Conclusion = "neutral"
)

// WorkflowRunActionCompleted is the webhook action sent when a run finishes.
const WorkflowRunActionCompleted = "completed"

// WorkflowRunEvent is the completion notice of an upstream workflow run.
// Events read from a file written by the CI runner may leave Action empty.
type WorkflowRunEvent struct {
	Action       string
	RunID        int64
	WorkflowName string
	Repository   string // "owner/repo" that owns the run and its artifacts.
	HeadBranch   string
	HeadSHA      string
	Conclusion   Conclusion
	PRNumber     int    // Originating pull request; zero when the run was not triggered by a PR.
	PRAuthor     string // Login of the originating PR's author, or the triggering actor.
	DeliveryID   string
}

// HasPullRequest reports whether the run was triggered on behalf of a pull request.
func (e WorkflowRunEvent) HasPullRequest() bool {
	return e.PRNumber > 0
}
