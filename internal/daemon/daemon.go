package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/preflight"
	"lectern/internal/queue"
	"lectern/internal/workflow"
)

// ErrPreflight marks a start refused because readiness checks failed.
var ErrPreflight = errors.New("preflight checks failed")

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	checks   func(ctx context.Context) []preflight.Result
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Options carries the optional collaborators of a daemon.
type Options struct {
	// Ingestion backs the control API. Nil disables the API server.
	Ingestion IngestionService
	// Preflight runs readiness checks before start and for /health.
	Preflight func(ctx context.Context) []preflight.Result
	Logger    *slog.Logger
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	APIAddress   string
	QueueDBPath  string
	LockFilePath string
	Jobs         queue.HealthSummary
	Workflow     workflow.StatusSummary
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, wf *workflow.Manager, opts Options) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		workflow: wf,
		checks:   opts.Preflight,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	if opts.Ingestion != nil {
		d.api = newAPIServer(cfg, d, opts.Ingestion, logger)
	}
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, then launches the
// workflow manager and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lectern daemon instance is already running")
	}

	if err := d.preflight(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	attrs := []logging.Attr{logging.String("lock", d.lockPath)}
	if jobs, err := d.store.Health(ctx); err == nil {
		attrs = append(attrs,
			logging.Int("jobs_pending", jobs.Pending+jobs.Waiting),
			logging.Int("jobs_failed", jobs.Failed),
		)
	}
	d.logger.Info("lectern daemon started", logging.Args(attrs...)...)
	return nil
}

func (d *Daemon) preflight(ctx context.Context) error {
	if d.checks == nil {
		return nil
	}
	failed := preflight.Failed(d.checks(ctx))
	if len(failed) == 0 {
		return nil
	}
	details := make([]string, 0, len(failed))
	for _, result := range failed {
		details = append(details, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the configuration and restart the daemon"),
		)
	}
	return fmt.Errorf("%w: %s", ErrPreflight, strings.Join(details, "; "))
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("lectern daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		APIAddress:   d.api.address(),
		QueueDBPath:  d.cfg.QueueDBPath(),
		LockFilePath: d.lockPath,
		Workflow:     d.workflow.Status(ctx),
	}
	jobs, err := d.store.Health(ctx)
	if err != nil {
		d.logger.Warn("failed to read job health", logging.Error(err))
	}
	status.Jobs = jobs
	return status
}
