package logging

import (
	"context"
	"log/slog"

	"sloppy/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldItemID is the standardized structured logging key for content item identifiers.
	FieldItemID = "item_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldJobID is the standardized structured logging key for job identifiers.
	FieldJobID = "job_id"
	// FieldChannelID is the standardized structured logging key for notification channels.
	FieldChannelID = "channel_id"
	// FieldSubscriberID is the standardized structured logging key for observer connections.
	FieldSubscriberID = "subscriber_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering (e.g. job_failed).
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextField struct {
	key     string
	extract func(context.Context) (string, bool)
}

var contextFields = []contextField{
	{FieldItemID, services.ItemIDFromContext},
	{FieldStage, services.StageFromContext},
	{FieldJobID, services.JobIDFromContext},
	{FieldCorrelationID, services.RequestIDFromContext},
}

// ContextFields returns the item, stage, job and request identifiers carried
// by ctx as slog attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, field := range contextFields {
		if value, ok := field.extract(ctx); ok {
			fields = append(fields, slog.String(field.key, value))
		}
	}
	return fields
}

// WithContext returns logger with the identifiers from ctx attached.
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
