// Package session provides interview session records for the platform.
// It defines the Store interface for session persistence and the Session
// type that represents one timed interview-practice interaction.
package session

import (
	"context"
	"time"
)

// Status is the lifecycle state of a session record.
type Status string

const (
	// StatusCreated is a session that has been scheduled but not started.
	StatusCreated Status = "created"

	// StatusActive is a session that is currently running and being timed.
	StatusActive Status = "active"

	// StatusCompleted is a session that has finished, whether it ended
	// normally, was stopped by its owner, or was auto-stopped.
	StatusCompleted Status = "completed"
)

// Session represents one interview-practice session.
type Session struct {
	// ID is the unique session identifier.
	ID string

	// AccountID identifies the account that owns the session.
	AccountID string

	// Status is the current lifecycle state.
	Status Status

	// InterviewType is the practice format, e.g. "behavioral" or
	// "system_design".
	InterviewType string

	// Topic is the free-form subject the candidate is practicing.
	Topic string

	// EstimatedMinutes is the expected session length.
	EstimatedMinutes int

	// DurationMinutes is the persisted elapsed time, updated at minute
	// granularity while the session runs.
	DurationMinutes int

	// StartedAt is when the session went active. Nil until then.
	StartedAt *time.Time

	// Notes is an append-only annotation log, including auto-stop reasons.
	Notes string

	// CreatedAt is when the record was created.
	CreatedAt time.Time

	// UpdatedAt is the most recent mutation timestamp.
	UpdatedAt time.Time
}

// Store defines the interface for session persistence.
//
// UpdateDuration and Complete only affect records whose status is
// currently active; a write that loses a race against an external status
// change affects zero rows and returns nil.
type Store interface {
	// Create persists a new session in the created state.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by ID. Returns nil, nil if not found.
	Get(ctx context.Context, id string) (*Session, error)

	// Activate transitions a created session to active and stamps its
	// start time. Returns false for records not in the created state,
	// so a caller losing a concurrent start can tell it did not win.
	Activate(ctx context.Context, id string, startedAt time.Time) (bool, error)

	// FindActive returns every active session with a non-null start time.
	FindActive(ctx context.Context) ([]ActiveSession, error)

	// UpdateDuration writes a minute-granularity duration checkpoint.
	UpdateDuration(ctx context.Context, id string, minutes int) error

	// Complete marks a session completed with its final duration and
	// appends note to the session's notes without overwriting them.
	Complete(ctx context.Context, id string, minutes int, note string) error

	// ListByAccount returns the most recent sessions owned by an account.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*Session, error)

	// Close releases resources.
	Close() error
}

// ActiveSession is the projection of an active record that the timer
// engine recovers tracking state from after a restart.
type ActiveSession struct {
	ID               string
	AccountID        string
	StartedAt        time.Time
	DurationMinutes  int
	EstimatedMinutes int
}
