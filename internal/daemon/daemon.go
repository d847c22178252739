package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"carescribe/internal/config"
	"carescribe/internal/logging"
	"carescribe/internal/pipeline"
	"carescribe/internal/reprocess"
	"carescribe/internal/workspace"
)

// DefaultDrainTimeout bounds how long Stop waits for queued and running jobs.
const DefaultDrainTimeout = 2 * time.Minute

// Dispatcher is the job queue driven by the daemon.
type Dispatcher interface {
	Start(ctx context.Context)
	Stop(ctx context.Context)
	Stats() pipeline.Stats
}

// HTTPServer is the front end started by the daemon.
type HTTPServer interface {
	Start(ctx context.Context) error
	Shutdown()
	Addr() string
}

// Reprocessor runs background reprocess sweeps.
type Reprocessor interface {
	Registry() *reprocess.Registry
	Wait()
}

// Components are the long-running parts owned by the daemon.
type Components struct {
	Dispatcher  Dispatcher
	Server      HTTPServer
	Reprocessor Reprocessor
}

// Status summarizes daemon state.
type Status struct {
	Running      bool               `json:"running"`
	Address      string             `json:"address,omitempty"`
	Dispatcher   pipeline.Stats     `json:"dispatcher"`
	Reprocess    reprocess.Snapshot `json:"reprocess"`
	LockFilePath string             `json:"lock_file_path"`
}

// Daemon owns the single-instance lock and the server lifecycle.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	parts  Components

	lockPath     string
	lock         *flock.Flock
	drainTimeout time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon. Dispatcher and Server are required.
func New(cfg *config.Config, parts Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || parts.Dispatcher == nil || parts.Server == nil {
		return nil, errors.New("daemon requires config, dispatcher, and server")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockFilePath()
	return &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		parts:        parts,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
		drainTimeout: DefaultDrainTimeout,
	}, nil
}

// SetDrainTimeout overrides how long Stop waits for in-flight jobs.
func (d *Daemon) SetDrainTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.drainTimeout = timeout
	}
}

// Start acquires the lock, clears stale workspaces, and starts the workers
// and the HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another carescribe instance is already running")
	}

	d.sweepWorkspaces(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	d.parts.Dispatcher.Start(runCtx)
	if err := d.parts.Server.Start(runCtx); err != nil {
		cancel()
		d.parts.Dispatcher.Stop(context.Background())
		_ = d.lock.Unlock()
		return fmt.Errorf("start http server: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("carescribe daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.parts.Server.Addr()),
	)
	return nil
}

// Stop shuts the HTTP server, drains the job queue, waits for background
// reprocess runs, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.parts.Server.Shutdown()
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), d.drainTimeout)
	d.parts.Dispatcher.Stop(drainCtx)
	cancelDrain()
	if d.parts.Reprocessor != nil {
		d.parts.Reprocessor.Wait()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("carescribe daemon stopped")
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		Dispatcher:   d.parts.Dispatcher.Stats(),
		LockFilePath: d.lockPath,
	}
	if status.Running {
		status.Address = d.parts.Server.Addr()
	}
	if d.parts.Reprocessor != nil {
		status.Reprocess = d.parts.Reprocessor.Registry().Snapshot()
	}
	return status
}

func (d *Daemon) sweepWorkspaces(ctx context.Context) {
	result := workspace.CleanStale(ctx, d.cfg.Paths.WorkDir, d.cfg.StaleWorkspaceAge(), d.logger)
	if len(result.Removed) == 0 && len(result.Errors) == 0 {
		return
	}
	d.logger.Info("stale workspace sweep finished",
		logging.String(logging.FieldEventType, "workspace_sweep"),
		logging.Int("removed", len(result.Removed)),
		logging.Int("failed", len(result.Errors)),
	)
}
