package stage

import (
	"lectern/internal/queue"
	"lectern/internal/services"
)

// DecodePayload decodes the job payload as T. On failure it returns a
// services.ErrValidation suitable for Execute methods.
func DecodePayload[T queue.Payload](job *queue.Job) (T, error) {
	payload, err := queue.PayloadAs[T](job)
	if err != nil {
		var zero T
		return zero, services.Wrap(
			services.ErrValidation, "stage", "decode payload",
			"Job payload missing or invalid; reset the book ingestion", err)
	}
	return payload, nil
}
