package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"carescribe/internal/logging"
	"carescribe/internal/services"
)

type blockingRunner struct {
	release chan struct{}
	started chan string
	ran     atomic.Int32
	fail    bool
}

func (b *blockingRunner) Run(ctx context.Context, job Job) (Result, error) {
	if b.started != nil {
		b.started <- job.ID
	}
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			b.ran.Add(1)
			return Result{Job: job}, ctx.Err()
		}
	}
	b.ran.Add(1)
	if b.fail {
		return Result{Job: job}, errors.New("boom")
	}
	return Result{Job: job}, nil
}

func TestDispatcherRejectsWhenQueueFull(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{}), started: make(chan string, 4)}
	d := NewDispatcher(runner, 1, 1, logging.NewNop())
	d.Start(context.Background())

	if err := d.Submit(Job{ID: "a"}); err != nil {
		t.Fatalf("submit a: %v", err)
	}
	<-runner.started
	if err := d.Submit(Job{ID: "b"}); err != nil {
		t.Fatalf("submit b: %v", err)
	}
	err := d.Submit(Job{ID: "c"})
	if !errors.Is(err, ErrQueueFull) || !errors.Is(err, services.ErrBusy) {
		t.Fatalf("expected queue full, got %v", err)
	}

	stats := d.Stats()
	if stats.Active != 1 || stats.Queued != 1 || stats.QueueCapacity != 1 || stats.Workers != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	close(runner.release)
	d.Stop(context.Background())
	if runner.ran.Load() != 2 {
		t.Fatalf("expected queued job drained, ran %d", runner.ran.Load())
	}
	if got := d.Stats().Completed; got != 2 {
		t.Fatalf("expected 2 completed, got %d", got)
	}
	if err := d.Submit(Job{ID: "d"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after Stop, got %v", err)
	}
}

func TestDispatcherRunsJobsConcurrently(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{}), started: make(chan string, 3)}
	d := NewDispatcher(runner, 3, 3, logging.NewNop())
	d.Start(context.Background())
	for _, id := range []string{"a", "b", "c"} {
		if err := d.Submit(Job{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	seen := make(map[string]bool)
	for range 3 {
		select {
		case id := <-runner.started:
			seen[id] = true
		case <-time.After(5 * time.Second):
			t.Fatal("workers did not pick up jobs")
		}
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct jobs in flight, got %v", seen)
	}
	close(runner.release)
	d.Stop(context.Background())
}

func TestDispatcherStopCancelsAfterDeadline(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{}), started: make(chan string, 1)}
	d := NewDispatcher(runner, 1, 2, logging.NewNop())
	d.Start(context.Background())
	if err := d.Submit(Job{ID: "stuck"}); err != nil {
		t.Fatal(err)
	}
	<-runner.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Stop(ctx)
	if runner.ran.Load() != 1 {
		t.Fatal("expected cancelled job to return")
	}
	if d.Stats().Failed != 1 {
		t.Fatalf("expected cancelled job counted as failed, got %+v", d.Stats())
	}
}

func TestDispatcherCountsFailures(t *testing.T) {
	runner := &blockingRunner{fail: true}
	d := NewDispatcher(runner, 2, 4, logging.NewNop())
	d.Start(context.Background())
	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			if err := d.Submit(Job{ID: "x"}); err != nil {
				t.Errorf("submit: %v", err)
			}
		})
	}
	wg.Wait()
	d.Stop(context.Background())
	if got := d.Stats().Failed; got != 4 {
		t.Fatalf("expected 4 failures, got %d", got)
	}
}
