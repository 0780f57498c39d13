package events

import (
	"context"
	"log/slog"
)

// SlogRecorder implements Recorder by writing events to the process log.
// It is the fallback when no database-backed recorder is configured;
// Query always returns an empty result.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder creates a log-only event recorder. A nil logger uses
// slog.Default.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogRecorder{logger: logger}
}

// Record writes the event to the log.
func (r *SlogRecorder) Record(ctx context.Context, event Event) error {
	r.logger.InfoContext(ctx, "session event",
		"type", string(event.Type),
		"session_id", event.SessionID,
		"account_id", event.AccountID,
		"reason", event.Reason,
		"elapsed_minutes", event.ElapsedMinutes,
	)
	return nil
}

// Query returns no events; the log recorder keeps no history.
func (*SlogRecorder) Query(_ context.Context, _ Filter) ([]Event, error) {
	return nil, nil
}

// Close releases resources.
func (*SlogRecorder) Close() error {
	return nil
}

// Verify interface compliance.
var _ Recorder = (*SlogRecorder)(nil)
