// Package events provides the operational event log for the platform.
// The timer engine records session lifecycle transitions, overrun
// warnings, and credit-enforcement stops here; nothing reads the log to
// make control-flow decisions.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type categorizes session events.
type Type string

const (
	// TypeSessionTracked is emitted when the engine begins timing a session.
	TypeSessionTracked Type = "session_tracked"

	// TypeSessionRecovered is emitted when tracking is reconstructed from
	// a persisted active session after a restart.
	TypeSessionRecovered Type = "session_recovered"

	// TypeSessionStopped is emitted when a session is stopped by its
	// owner or ends normally.
	TypeSessionStopped Type = "session_stopped"

	// TypeSessionAutoStopped is emitted when credit enforcement
	// terminates a session.
	TypeSessionAutoStopped Type = "session_auto_stopped"

	// TypeOverrunWarning is emitted when a session exceeds its estimated
	// duration threshold.
	TypeOverrunWarning Type = "overrun_warning"
)

// Event records one operational occurrence for a session.
type Event struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Type           Type      `json:"type"`
	SessionID      string    `json:"session_id"`
	AccountID      string    `json:"account_id"`
	Reason         string    `json:"reason,omitempty"`
	ElapsedMinutes int       `json:"elapsed_minutes"`
	Balance        int       `json:"balance"`
}

// New creates an event with a generated ID and the current time.
func New(t Type, sessionID, accountID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      t,
		SessionID: sessionID,
		AccountID: accountID,
	}
}

// Recorder defines the interface for event persistence.
type Recorder interface {
	// Record persists an event.
	Record(ctx context.Context, event Event) error

	// Query retrieves events matching the filter, newest first.
	Query(ctx context.Context, filter Filter) ([]Event, error)

	// Close releases resources.
	Close() error
}

// Filter defines criteria for querying events.
type Filter struct {
	StartTime *time.Time
	EndTime   *time.Time
	SessionID string
	AccountID string
	Type      Type
	Limit     int
	Offset    int
}
