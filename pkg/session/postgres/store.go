// Package postgres provides PostgreSQL storage for interview sessions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mockstage/interview-platform/pkg/session"
)

// Store implements session.Store using PostgreSQL.
//
// Duration checkpoints and completion writes are guarded by
// status = 'active' so a write that loses a race against an external
// status change affects zero rows instead of clobbering the record.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL session store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create persists a new session in the created state.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	query := `
		INSERT INTO interview_sessions
		(id, account_id, status, interview_type, topic, estimated_minutes, duration_minutes, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	status := sess.Status
	if status == "" {
		status = session.StatusCreated
	}
	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.AccountID, status, sess.InterviewType, sess.Topic,
		sess.EstimatedMinutes, sess.DurationMinutes, sess.Notes, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. Returns nil, nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	query := `
		SELECT id, account_id, status, interview_type, topic, estimated_minutes,
		       duration_minutes, started_at, notes, created_at, updated_at
		FROM interview_sessions
		WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, id)

	var sess session.Session
	var startedAt sql.NullTime
	err := row.Scan(
		&sess.ID, &sess.AccountID, &sess.Status, &sess.InterviewType, &sess.Topic,
		&sess.EstimatedMinutes, &sess.DurationMinutes, &startedAt, &sess.Notes,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	if startedAt.Valid {
		sess.StartedAt = &startedAt.Time
	}
	return &sess, nil
}

// Activate transitions a created session to active and stamps its start time.
// The status guard makes the transition atomic; rows affected tells the
// caller whether it won.
func (s *Store) Activate(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	query := `
		UPDATE interview_sessions
		SET status = 'active', started_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'created'
	`
	res, err := s.db.ExecContext(ctx, query, id, startedAt)
	if err != nil {
		return false, fmt.Errorf("activating session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking activation: %w", err)
	}
	return affected > 0, nil
}

// FindActive returns every active session with a non-null start time.
func (s *Store) FindActive(ctx context.Context) ([]session.ActiveSession, error) {
	query := `
		SELECT id, account_id, started_at, duration_minutes, estimated_minutes
		FROM interview_sessions
		WHERE status = 'active' AND started_at IS NOT NULL
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying active sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var active []session.ActiveSession
	for rows.Next() {
		var a session.ActiveSession
		if err := rows.Scan(&a.ID, &a.AccountID, &a.StartedAt, &a.DurationMinutes, &a.EstimatedMinutes); err != nil {
			return nil, fmt.Errorf("scanning active session: %w", err)
		}
		active = append(active, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating active sessions: %w", err)
	}
	return active, nil
}

// UpdateDuration writes a minute-granularity duration checkpoint.
func (s *Store) UpdateDuration(ctx context.Context, id string, minutes int) error {
	query := `
		UPDATE interview_sessions
		SET duration_minutes = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`
	_, err := s.db.ExecContext(ctx, query, id, minutes)
	if err != nil {
		return fmt.Errorf("updating session duration: %w", err)
	}
	return nil
}

// Complete marks an active session completed with its final duration and
// appends note to the record's notes.
func (s *Store) Complete(ctx context.Context, id string, minutes int, note string) error {
	query := `
		UPDATE interview_sessions
		SET status = 'completed',
		    duration_minutes = $2,
		    notes = CASE WHEN notes = '' THEN $3 ELSE notes || E'\n' || $3 END,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`
	_, err := s.db.ExecContext(ctx, query, id, minutes, note)
	if err != nil {
		return fmt.Errorf("completing session: %w", err)
	}
	return nil
}

// ListByAccount returns the most recent sessions owned by an account.
func (s *Store) ListByAccount(ctx context.Context, accountID string, limit int) ([]*session.Session, error) {
	query := `
		SELECT id, account_id, status, interview_type, topic, estimated_minutes,
		       duration_minutes, started_at, notes, created_at, updated_at
		FROM interview_sessions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*session.Session
	for rows.Next() {
		var sess session.Session
		var startedAt sql.NullTime
		err := rows.Scan(
			&sess.ID, &sess.AccountID, &sess.Status, &sess.InterviewType, &sess.Topic,
			&sess.EstimatedMinutes, &sess.DurationMinutes, &startedAt, &sess.Notes,
			&sess.CreatedAt, &sess.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		if startedAt.Valid {
			sess.StartedAt = &startedAt.Time
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

// Close releases resources. The underlying *sql.DB is owned by the caller.
func (*Store) Close() error {
	return nil
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
