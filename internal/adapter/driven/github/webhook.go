package github

import (
	"errors"
	"fmt"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// EventWorkflowRun is the X-GitHub-Event value of workflow run deliveries.
const EventWorkflowRun = "workflow_run"

// ErrUnsupportedEvent is returned for event types other than workflow_run.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// ParseWorkflowRunEvent decodes a workflow_run payload, as delivered by a
// webhook or written to GITHUB_EVENT_PATH by a runner, into the domain event.
func ParseWorkflowRunEvent(eventType string, payload []byte) (*model.WorkflowRunEvent, error) {
	if eventType != EventWorkflowRun {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, eventType)
	}

	parsed, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("parsing %s payload: %w", eventType, err)
	}

	ev, ok := parsed.(*gh.WorkflowRunEvent)
	if !ok || ev.WorkflowRun == nil {
		return nil, fmt.Errorf("parsing %s payload: missing workflow_run", eventType)
	}

	run := ev.WorkflowRun
	out := &model.WorkflowRunEvent{
		Action:       ev.GetAction(),
		RunID:        run.GetID(),
		WorkflowName: run.GetName(),
		Repository:   run.GetRepository().GetFullName(),
		HeadBranch:   run.GetHeadBranch(),
		HeadSHA:      run.GetHeadSHA(),
		Conclusion:   model.Conclusion(run.GetConclusion()),
		PRAuthor:     run.GetTriggeringActor().GetLogin(),
	}
	if out.Repository == "" {
		out.Repository = ev.GetRepo().GetFullName()
	}
	if out.WorkflowName == "" {
		out.WorkflowName = ev.GetWorkflow().GetName()
	}
	if out.PRAuthor == "" {
		out.PRAuthor = run.GetActor().GetLogin()
	}
	if len(run.PullRequests) > 0 {
		out.PRNumber = run.PullRequests[0].GetNumber()
	}

	return out, nil
}
