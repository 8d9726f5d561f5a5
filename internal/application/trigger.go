// Package application contains the use-case orchestration services of a chained update.
package application

import (
	"fmt"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// TriggerListener filters workflow run events down to successful completions
// of the upstream workflow.
type TriggerListener struct {
	workflow string
}

// NewTriggerListener creates a TriggerListener following the named workflow.
func NewTriggerListener(workflow string) *TriggerListener {
	return &TriggerListener{workflow: workflow}
}

// Accept returns nil when ev should start a pipeline run. It returns an error
// wrapping model.ErrWorkflowMismatch for events of other workflows or actions,
// and model.ErrUpstreamNotSuccessful when the upstream run did not succeed.
// Events read from a file may carry no action; they count as completed.
func (l *TriggerListener) Accept(ev model.WorkflowRunEvent) error {
	if ev.Action != "" && ev.Action != model.WorkflowRunActionCompleted {
		return fmt.Errorf("%w: action %q", model.ErrWorkflowMismatch, ev.Action)
	}
	if ev.WorkflowName != l.workflow {
		return fmt.Errorf("%w: workflow %q", model.ErrWorkflowMismatch, ev.WorkflowName)
	}
	if ev.Conclusion != model.ConclusionSuccess {
		return fmt.Errorf("%w: run %d concluded %q", model.ErrUpstreamNotSuccessful, ev.RunID, ev.Conclusion)
	}
	return nil
}
