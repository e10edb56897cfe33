package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"lectern/internal/logging"
	"lectern/internal/queue"
)

// Start requeues jobs left PROCESSING by a previous run and launches the
// workers and the stale-heartbeat reclaimer.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("workflow handlers not configured")
	}
	m.mu.Unlock()

	requeued, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		return fmt.Errorf("requeue interrupted jobs: %w", err)
	}
	if len(requeued) > 0 {
		m.logger.Info("requeued interrupted jobs",
			logging.Int("count", len(requeued)),
			logging.String(logging.FieldEventType, "jobs_requeued"),
		)
	}

	m.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	done := make(chan struct{})
	m.done = done
	workers := m.workers
	m.mu.Unlock()

	group, groupCtx := errgroup.WithContext(runCtx)
	for i := range workers {
		logger := m.logger.With(logging.Int("worker", i))
		group.Go(func() error {
			m.runWorker(groupCtx, logger)
			return nil
		})
	}
	group.Go(func() error {
		m.runReclaimer(groupCtx)
		return nil
	})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	m.logger.Info("workflow started", logging.Int("workers", workers))
	return nil
}

// Stop terminates background processing and waits for the workers to exit.
// Jobs interrupted by Stop stay PROCESSING and are requeued by the next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Info("workflow stopped")
}

// Wake makes idle workers poll the queue immediately.
func (m *Manager) Wake() {
	m.mu.Lock()
	close(m.wakeCh)
	m.wakeCh = make(chan struct{})
	m.mu.Unlock()
}

func (m *Manager) wakeChannel() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.wakeCh
}

func (m *Manager) runWorker(ctx context.Context, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		// Read the wake channel before polling so a Wake issued while this
		// worker is claiming is not lost.
		wake := m.wakeChannel()

		if _, err := m.store.PromoteReady(ctx); err != nil {
			m.handleQueueError(ctx, logger, "promote ready jobs", err)
			continue
		}
		job, err := m.store.ClaimNext(ctx)
		if err != nil {
			m.handleQueueError(ctx, logger, "claim next job", err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx, wake)
			continue
		}

		m.processJob(ctx, logger, job)
	}
}

func (m *Manager) runReclaimer(ctx context.Context) {
	interval := m.heartbeat.interval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := m.heartbeat.ReclaimStaleJobs(ctx, m.logger)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Warn("reclaim stale processing failed; stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
				continue
			}
			if reclaimed > 0 {
				m.Wake()
			}
		}
	}
}

func (m *Manager) handleQueueError(ctx context.Context, logger *slog.Logger, op string, err error) {
	if ctx.Err() != nil {
		return
	}
	m.setLastError(err)
	logger.Error("queue operation failed",
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.retryInterval):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context, wake <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-wake:
	case <-time.After(m.pollInterval):
	}
}

// jobContext returns the book's shared context, creating it on first use.
func (m *Manager) jobContext(ctx context.Context, bookID string) (context.Context, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.books[bookID]
	if !ok {
		bookCtx, cancel := context.WithCancel(ctx)
		run = &bookRun{ctx: bookCtx, cancel: cancel}
		m.books[bookID] = run
	}
	run.refs++
	return run.ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		run.refs--
		if run.refs == 0 && m.books[bookID] == run {
			run.cancel()
			delete(m.books, bookID)
		}
	}
}

// CancelBook cancels every in-flight job of bookID. Jobs claimed afterwards
// get a fresh context.
func (m *Manager) CancelBook(bookID string) {
	m.mu.Lock()
	run, ok := m.books[bookID]
	if ok {
		delete(m.books, bookID)
	}
	m.mu.Unlock()
	if ok {
		run.cancel()
		m.logger.Info("cancelled in-flight jobs",
			logging.String(logging.FieldBookID, bookID),
			logging.String(logging.FieldEventType, "book_cancelled"),
		)
	}
}

var errNoHandler = errors.New("no handler registered for job type")

func missingHandler(job *queue.Job) error {
	return fmt.Errorf("%w: %s", errNoHandler, job.Type)
}
