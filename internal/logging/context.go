package logging

import (
	"context"
	"log/slog"

	"lectern/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldBookID identifies the book being ingested.
	FieldBookID = "book_id"
	// FieldJobID identifies a job row.
	FieldJobID = "job_id"
	// FieldJobType is the job type (TEXT_TO_AUDIO, SECTION_CONCAT, ...).
	FieldJobType = "job_type"
	// FieldStage is the handler name, usually equal to the job type.
	FieldStage = "stage"
	// FieldSectionOrder is the navigation order of a section.
	FieldSectionOrder = "section_order"
	// FieldVoiceID is the narration voice.
	FieldVoiceID = "voice_id"
	// FieldProvider is the speech provider name.
	FieldProvider = "provider"
	// FieldEventType is a stable machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldErrorKind carries services.ErrorKind.
	FieldErrorKind = "error_kind"
	// FieldErrorOperation carries the failing operation from services.Wrap.
	FieldErrorOperation = "error_operation"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.BookIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldBookID, id))
	}
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
