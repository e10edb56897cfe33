package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/queue"
	"lectern/internal/stage"
)

// ActiveJob describes a job a worker is currently running.
type ActiveJob struct {
	ID        string
	BookID    string
	Type      queue.JobType
	StartedAt time.Time
}

func (m *Manager) processJob(ctx context.Context, workerLogger *slog.Logger, job *queue.Job) {
	bookCtx, release := m.jobContext(ctx, job.BookID)
	defer release()

	requestID := uuid.NewString()
	jobCtx := withJobContext(bookCtx, job, requestID)
	logger := logging.WithContext(jobCtx, workerLogger)

	handler, ok := m.handlerFor(job.Type)
	if !ok {
		m.handleJobFailure(ctx, logger, job, missingHandler(job))
		return
	}

	m.trackActive(job, true)
	defer m.trackActive(job, false)

	started := time.Now()
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("dependencies", len(job.Dependencies)),
	)

	execErr := m.executeWithHeartbeat(jobCtx, handler, job)
	if execErr != nil {
		if jobCtx.Err() != nil || errors.Is(execErr, context.Canceled) {
			// Shutdown or book cancellation: leave the job for requeue or
			// deletion instead of recording a failure.
			logger.Info("job interrupted",
				logging.String(logging.FieldEventType, "job_cancelled"),
				logging.Bool("shutdown", ctx.Err() != nil),
			)
			return
		}
		m.handleJobFailure(ctx, logger, job, execErr)
		return
	}

	if err := m.store.Complete(ctx, job.ID, ""); err != nil {
		m.setLastError(err)
		logger.Error("failed to persist job completion", logging.Error(err))
		return
	}
	if err := m.applyCompletion(ctx, job); err != nil {
		m.setLastError(err)
		logger.Error("failed to update ingestion progress", logging.Error(err))
	}
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Duration("job_duration", time.Since(started)),
	)
	m.setLastJob(job)
	m.Wake()
}

// applyCompletion advances the ingestion row for job types that report
// book-level progress.
func (m *Manager) applyCompletion(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobSectionConcat:
		return m.store.IncrementCompletedSections(ctx, job.BookID)
	case queue.JobBookMeta:
		if err := m.store.CompleteIngestion(ctx, job.BookID); err != nil {
			return err
		}
		m.logger.Info("ingestion completed",
			logging.String(logging.FieldBookID, job.BookID),
			logging.String(logging.FieldEventType, "ingestion_complete"),
		)
		m.notifyCompleted(ctx, job.BookID)
	}
	return nil
}

func (m *Manager) notifyCompleted(ctx context.Context, bookID string) {
	payload := notifications.Payload{"bookID": bookID}
	if ingestion, err := m.store.GetIngestion(ctx, bookID); err == nil {
		payload["sections"] = ingestion.TotalSections
	}
	if book, found, err := m.store.GetBlockMetadata(ctx, bookID, queue.BookBlockID); err == nil && found {
		payload["durationMs"] = book.DurationMs
	}
	if err := m.notifier.Publish(ctx, notifications.EventIngestionCompleted, payload); err != nil {
		m.logger.Warn("ingestion notification failed",
			logging.String(logging.FieldBookID, bookID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	execErr := handler.Execute(ctx, job)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) trackActive(job *queue.Job, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if running {
		m.active[job.ID] = ActiveJob{ID: job.ID, BookID: job.BookID, Type: job.Type, StartedAt: time.Now().UTC()}
		return
	}
	delete(m.active, job.ID)
}
