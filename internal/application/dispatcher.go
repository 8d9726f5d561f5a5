package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// ErrQueueFull is returned by Submit when the run queue has no free slot.
var ErrQueueFull = errors.New("run queue is full")

// PipelineRunner executes one pipeline run.
type PipelineRunner interface {
	Run(ctx context.Context, ev model.WorkflowRunEvent) (*model.RunRecord, error)
}

// Dispatcher feeds accepted events to a fixed pool of workers through a
// bounded queue, so webhook deliveries return before the run finishes.
type Dispatcher struct {
	runner  PipelineRunner
	queue   chan model.WorkflowRunEvent
	workers int
	active  atomic.Int64
}

// NewDispatcher creates a Dispatcher with the given worker count and queue size.
func NewDispatcher(runner PipelineRunner, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Dispatcher{
		runner:  runner,
		queue:   make(chan model.WorkflowRunEvent, queueSize),
		workers: workers,
	}
}

// Submit enqueues ev without blocking.
func (d *Dispatcher) Submit(ev model.WorkflowRunEvent) error {
	select {
	case d.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start runs the workers and blocks until ctx is canceled and every worker
// has returned. Queued events that were not started are dropped.
func (d *Dispatcher) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx, i)
		}()
	}
	wg.Wait()

	if n := len(d.queue); n > 0 {
		slog.Warn("dispatcher stopped with queued runs", "dropped", n)
	}
	slog.Info("dispatcher stopped")
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.active.Add(1)
			record, err := d.runner.Run(ctx, ev)
			d.active.Add(-1)
			if err != nil {
				slog.Error("pipeline run failed", "worker", id, "upstream_run_id", ev.RunID, "error", err)
				continue
			}
			slog.Info("pipeline run finished", "worker", id, "run", record.ID, "outcome", record.Outcome)
		}
	}
}

// Queued returns the number of events waiting for a worker.
func (d *Dispatcher) Queued() int {
	return len(d.queue)
}

// Active returns the number of runs currently executing.
func (d *Dispatcher) Active() int {
	return int(d.active.Load())
}
