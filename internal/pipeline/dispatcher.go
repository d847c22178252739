package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"carescribe/internal/logging"
	"carescribe/internal/services"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = fmt.Errorf("%w: job queue is full", services.ErrBusy)
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = fmt.Errorf("%w: dispatcher is stopped", services.ErrBusy)
)

// JobRunner runs one job to completion.
type JobRunner interface {
	Run(ctx context.Context, job Job) (Result, error)
}

// Stats is a snapshot of dispatcher activity.
type Stats struct {
	Workers       int   `json:"workers"`
	QueueCapacity int   `json:"queue_capacity"`
	Queued        int   `json:"queued"`
	Active        int64 `json:"active"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
}

// Dispatcher feeds submitted jobs to a fixed number of workers.
type Dispatcher struct {
	runner  JobRunner
	workers int
	queue   chan Job
	logger  *slog.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewDispatcher builds a dispatcher with the given worker count and queue
// capacity. Values below one are raised to one.
func NewDispatcher(runner JobRunner, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	workers = max(workers, 1)
	queueSize = max(queueSize, 1)
	return &Dispatcher{
		runner:  runner,
		workers: workers,
		queue:   make(chan Job, queueSize),
		logger:  logging.NewComponentLogger(logger, "dispatcher"),
	}
}

// Start launches the workers. Jobs run under ctx until Stop gives up
// waiting for them.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	for i := range d.workers {
		d.wg.Go(func() {
			d.work(runCtx, i)
		})
	}
	d.logger.Info("dispatcher started",
		logging.Int("workers", d.workers),
		logging.Int("queue_capacity", cap(d.queue)),
	)
}

// Submit queues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- job:
		d.logger.Debug("job queued", logging.String(logging.FieldJobID, job.ID), logging.Int("queued", len(d.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new jobs and waits for queued and running jobs. When ctx
// ends first the remaining jobs are cancelled, which still releases their
// workspaces, and Stop waits for that to finish.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()
	if !started {
		return
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("dispatcher stop timed out, cancelling jobs",
			logging.Int64("active", d.active.Load()),
			logging.Int("queued", len(d.queue)),
		)
		d.cancel()
		<-done
	}
	d.cancel()
	d.logger.Info("dispatcher stopped",
		logging.Int64("completed", d.completed.Load()),
		logging.Int64("failed", d.failed.Load()),
	)
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Workers:       d.workers,
		QueueCapacity: cap(d.queue),
		Queued:        len(d.queue),
		Active:        d.active.Load(),
		Completed:     d.completed.Load(),
		Failed:        d.failed.Load(),
	}
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	for job := range d.queue {
		d.active.Add(1)
		_, err := d.runner.Run(ctx, job)
		d.active.Add(-1)
		if err != nil {
			d.failed.Add(1)
			d.logger.Debug("worker finished failed job",
				logging.Int("worker", worker),
				logging.String(logging.FieldJobID, job.ID),
			)
			continue
		}
		d.completed.Add(1)
	}
}
