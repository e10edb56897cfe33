package workflow

import (
	"context"

	"lectern/internal/queue"
	"lectern/internal/services"
)

func withJobContext(ctx context.Context, job *queue.Job, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if job != nil {
		ctx = services.WithBookID(ctx, job.BookID)
		ctx = services.WithJobID(ctx, job.ID)
		ctx = services.WithStage(ctx, string(job.Type))
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}
