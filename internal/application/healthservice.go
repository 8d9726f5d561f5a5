package application

import (
	"context"
)

// Pinger is implemented by stores that can verify their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueStats is implemented by the dispatcher.
type QueueStats interface {
	Queued() int
	Active() int
}

// HealthStatus is the service health view served by the HTTP API.
type HealthStatus struct {
	Status   string `json:"status"`
	Ledger   string `json:"ledger"`
	Queued   int    `json:"queued"`
	Active   int    `json:"active"`
	Workflow string `json:"workflow"`
}

// HealthService reports whether the ledger is reachable and how busy the
// dispatcher is. It depends only on small interfaces.
type HealthService struct {
	ledger   Pinger
	queue    QueueStats
	workflow string
}

// NewHealthService creates a new HealthService. queue may be nil when runs
// are executed synchronously.
func NewHealthService(ledger Pinger, queue QueueStats, workflow string) *HealthService {
	return &HealthService{ledger: ledger, queue: queue, workflow: workflow}
}

// Check assembles the current health view. Status is "ok" unless the ledger
// fails its ping, in which case it is "degraded".
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{Status: "ok", Ledger: "ok", Workflow: s.workflow}

	if s.ledger != nil {
		if err := s.ledger.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Ledger = err.Error()
		}
	}
	if s.queue != nil {
		status.Queued = s.queue.Queued()
		status.Active = s.queue.Active()
	}
	return status
}
