package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/queue"
	"lectern/internal/services"
)

// handleJobFailure records the failure on the job and the book's ingestion
// and cancels the book's other in-flight jobs.
func (m *Manager) handleJobFailure(ctx context.Context, logger *slog.Logger, job *queue.Job, jobErr error) {
	message := classifyJobFailure(job, jobErr)

	details := services.Details(jobErr)
	attrs := []logging.Attr{
		logging.String("error_message", message),
		logging.Alert("job_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorOperation, details.Operation),
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(jobErr))
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "job_failure"))
	logger.Error("job failed", logging.Args(attrs...)...)

	if err := m.store.Fail(ctx, job.ID, message); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not record job failure")
		} else {
			logger.Error("failed to persist job failure", logging.Error(err))
		}
	}
	if err := m.store.FailIngestion(ctx, job.BookID, fmt.Sprintf("%s %s: %s", job.Type, job.ID, message)); err != nil {
		logger.Error("failed to mark ingestion failed", logging.Error(err))
	}
	m.CancelBook(job.BookID)
	if err := m.notifier.Publish(ctx, notifications.EventIngestionFailed, notifications.Payload{
		"bookID":  job.BookID,
		"jobType": string(job.Type),
		"error":   message,
	}); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
	m.setLastError(jobErr)
	m.setLastJob(job)
}

func classifyJobFailure(job *queue.Job, jobErr error) string {
	if jobErr == nil {
		return fmt.Sprintf("%s failed without error detail", job.Type)
	}
	message := strings.TrimSpace(jobErr.Error())
	if message == "" {
		message = fmt.Sprintf("%s failed", job.Type)
	}
	return message
}
