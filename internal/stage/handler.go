package stage

import (
	"context"

	"lectern/internal/queue"
)

// Handler describes the contract the workflow manager needs from each job
// type's handler.
type Handler interface {
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}
