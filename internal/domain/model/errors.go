package model

import "errors"

// Sentinel errors shared by services and adapters. Callers match with errors.Is.
var (
	// ErrUpstreamNotSuccessful means the upstream run did not conclude with success.
	// The pipeline skips all jobs; this is not an operator-visible failure.
	ErrUpstreamNotSuccessful = errors.New("upstream workflow run not successful")

	// ErrWorkflowMismatch means the event came from a workflow the pipeline does not follow.
	ErrWorkflowMismatch = errors.New("event is not from the upstream workflow")

	// ErrArtifactNotFound means the run has no (unexpired) artifact with the requested name.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrNoChangesDetected means there is nothing to publish under the path filter.
	ErrNoChangesDetected = errors.New("no changes detected")

	// ErrPublishConflict means another run touched the head branch concurrently.
	ErrPublishConflict = errors.New("publish conflict")

	// ErrAuthorization means GitHub rejected the credentials. Fatal for the run.
	ErrAuthorization = errors.New("authorization failure")

	// ErrServiceUnavailable means GitHub returned a server error. Fatal for the run.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrSubstitutionUnmatched means a required substitution matched no line.
	ErrSubstitutionUnmatched = errors.New("substitution matched no line")

	// ErrOutputConsumed means a job output was already read by its dependent job.
	ErrOutputConsumed = errors.New("job output already consumed")

	// ErrInvalidTransition means the pipeline state machine was driven out of order.
	ErrInvalidTransition = errors.New("invalid pipeline state transition")
)

// IsFatal reports whether err must fail the whole run rather than collapse into a no-op outcome.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthorization) || errors.Is(err, ErrServiceUnavailable)
}
