// Package timer implements the session timer and credit-enforcement
// engine. It tracks elapsed time for running interview sessions
// independently of any client connection, checkpoints progress to the
// session store at minute granularity, and terminates sessions whose
// owning account has run out of credits.
package timer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mockstage/interview-platform/pkg/events"
	"github.com/mockstage/interview-platform/pkg/ledger"
	"github.com/mockstage/interview-platform/pkg/session"
)

// Sentinel errors returned by the lifecycle operations.
var (
	// ErrNotFound is returned when a session is not tracked or its
	// record does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrAccessDenied is returned when a stop is requested by an account
	// that does not own the session.
	ErrAccessDenied = errors.New("session belongs to another account")

	// ErrNotActive is returned when a stop is requested for a session
	// whose persisted status is no longer active.
	ErrNotActive = errors.New("session is not active")
)

const (
	defaultTickInterval        = 30 * time.Second
	defaultCreditCheckInterval = 5 * time.Minute
	defaultOverrunFactor       = 1.5
	defaultIOTimeout           = 10 * time.Second

	// overrunGraceMinutes pads the enlarged estimate after a warning so
	// the same session does not re-warn on the next tick.
	overrunGraceMinutes = 30
)

// Config configures the engine.
type Config struct {
	// TickInterval is the reconciliation loop period.
	TickInterval time.Duration

	// CreditCheckInterval is how often each session's balance is re-read.
	CreditCheckInterval time.Duration

	// OverrunFactor is the multiple of the estimated duration past which
	// an overrun warning fires.
	OverrunFactor float64

	// IOTimeout bounds each store or ledger call made by the loop so one
	// slow session cannot stall the tick for the others.
	IOTimeout time.Duration

	// Clock supplies wall-clock time. Nil uses the system clock.
	Clock Clock
}

func (c *Config) applyDefaults() {
	if c.TickInterval == 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.CreditCheckInterval == 0 {
		c.CreditCheckInterval = defaultCreditCheckInterval
	}
	if c.OverrunFactor == 0 {
		c.OverrunFactor = defaultOverrunFactor
	}
	if c.IOTimeout == 0 {
		c.IOTimeout = defaultIOTimeout
	}
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
}

// entry is the in-memory tracking state for one active session. All
// fields are guarded by the engine mutex.
type entry struct {
	sessionID        string
	accountID        string
	startTime        time.Time
	lastCheckpoint   int // highest whole minute already flushed
	estimatedMinutes int
	lastCreditCheck  time.Time
	lastKnownBalance int
}

// Snapshot is a read-only view of one tracked session.
type Snapshot struct {
	SessionID        string    `json:"session_id"`
	AccountID        string    `json:"account_id"`
	StartTime        time.Time `json:"start_time"`
	ElapsedSeconds   int       `json:"elapsed_seconds"`
	ElapsedMinutes   int       `json:"elapsed_minutes"`
	EstimatedMinutes int       `json:"estimated_minutes"`
	LastCheckpoint   int       `json:"last_checkpoint_minute"`
	LastKnownBalance int       `json:"last_known_balance"`
}

// StopResult is the final elapsed measurement for a stopped session.
type StopResult struct {
	SessionID      string    `json:"session_id"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	ElapsedMinutes int       `json:"elapsed_minutes"`
	StoppedAt      time.Time `json:"stopped_at"`
}

// Stats summarizes the registry for operational dashboards.
type Stats struct {
	TrackedSessions  int    `json:"tracked_sessions"`
	TotalMinutes     int    `json:"total_minutes"`
	LongestSessionID string `json:"longest_session_id,omitempty"`
	LongestMinutes   int    `json:"longest_minutes"`
}

// Engine is the session timer and credit-enforcement engine. It owns
// the in-memory registry of tracked sessions; the session store and
// ledger are externally owned and only touched through narrow,
// status-guarded writes.
type Engine struct {
	mu      sync.Mutex
	entries map[string]*entry

	sessions session.Store
	credits  ledger.Ledger
	recorder events.Recorder
	clock    Clock
	cfg      Config

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an engine. A nil recorder falls back to logging events.
func New(sessions session.Store, credits ledger.Ledger, recorder events.Recorder, cfg Config) *Engine {
	cfg.applyDefaults()
	if recorder == nil {
		recorder = events.NewSlogRecorder(nil)
	}
	return &Engine{
		entries:  make(map[string]*entry),
		sessions: sessions,
		credits:  credits,
		recorder: recorder,
		clock:    cfg.Clock,
		cfg:      cfg,
	}
}

// Start recovers tracking state for persisted active sessions, runs one
// immediate reconciliation pass, and launches the periodic loop.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.recover(ctx); err != nil {
		return fmt.Errorf("recovering active sessions: %w", err)
	}

	// Recovered sessions should not sit stale for a full interval.
	e.reconcile(ctx)

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)

		ticker := time.NewTicker(e.cfg.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				e.reconcile(loopCtx)
			}
		}
	}()

	slog.Info("timer engine started",
		"tick_interval", e.cfg.TickInterval,
		"credit_check_interval", e.cfg.CreditCheckInterval)
	return nil
}

// Shutdown stops the reconciliation loop, flushes every tracked
// session's best-known elapsed minutes to the session store, and clears
// the registry. Data loss on shutdown is bounded to sub-minute precision.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
		<-e.done
		e.cancel = nil
	}

	now := e.clock.Now()

	e.mu.Lock()
	remaining := make([]*entry, 0, len(e.entries))
	for _, ent := range e.entries {
		remaining = append(remaining, ent)
	}
	e.entries = make(map[string]*entry)
	e.mu.Unlock()

	var errs []error
	for _, ent := range remaining {
		minutes := int(now.Sub(ent.startTime) / time.Minute)
		if err := e.sessions.UpdateDuration(ctx, ent.sessionID, minutes); err != nil {
			errs = append(errs, fmt.Errorf("flushing session %s: %w", ent.sessionID, err))
		}
	}

	slog.Info("timer engine stopped", "flushed_sessions", len(remaining))
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// TrackSession begins timing a session and returns the authoritative
// start instant. Starting is idempotent: if the session is already
// tracked, the existing start time is returned and nothing changes.
func (e *Engine) TrackSession(sessionID, accountID string, startedAt time.Time, estimatedMinutes int) time.Time {
	now := e.clock.Now()
	if startedAt.IsZero() {
		startedAt = now
	}

	e.mu.Lock()
	if existing, ok := e.entries[sessionID]; ok {
		e.mu.Unlock()
		slog.Warn("session already tracked, ignoring duplicate start",
			"session_id", sessionID, "account_id", accountID)
		return existing.startTime
	}
	e.entries[sessionID] = &entry{
		sessionID:        sessionID,
		accountID:        accountID,
		startTime:        startedAt,
		estimatedMinutes: estimatedMinutes,
		lastCreditCheck:  now,
	}
	e.mu.Unlock()

	ev := events.New(events.TypeSessionTracked, sessionID, accountID)
	e.record(context.Background(), ev)
	slog.Info("tracking session", "session_id", sessionID,
		"account_id", accountID, "estimated_minutes", estimatedMinutes)
	return startedAt
}

// StopSession stops a session on behalf of its owner. Ownership and the
// persisted active status are re-read at call time, not cached.
func (e *Engine) StopSession(ctx context.Context, sessionID, accountID, reason string) (*StopResult, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	if sess.AccountID != accountID {
		return nil, ErrAccessDenied
	}
	if sess.Status != session.StatusActive {
		return nil, ErrNotActive
	}

	return e.finalize(ctx, sessionID, reason, "Session stopped")
}

// EndSession stops a session on behalf of the platform itself, e.g.
// when the interview concludes normally. No ownership check is applied.
func (e *Engine) EndSession(ctx context.Context, sessionID, reason string) (*StopResult, error) {
	return e.finalize(ctx, sessionID, reason, "Session ended")
}

// finalize removes the session from the registry and completes the
// persisted record. Registry removal is the serialization point: when a
// manual stop races credit enforcement, whichever caller observes the
// entry present wins and the other gets ErrNotFound.
func (e *Engine) finalize(ctx context.Context, sessionID, reason, notePrefix string) (*StopResult, error) {
	now := e.clock.Now()

	e.mu.Lock()
	ent, ok := e.entries[sessionID]
	if ok {
		delete(e.entries, sessionID)
	}
	e.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}

	elapsed := now.Sub(ent.startTime)
	res := &StopResult{
		SessionID:      sessionID,
		ElapsedSeconds: int(elapsed / time.Second),
		ElapsedMinutes: int(elapsed / time.Minute),
		StoppedAt:      now,
	}

	note := fmt.Sprintf("[%s] %s: %s", now.UTC().Format(time.RFC3339), notePrefix, reason)
	if err := e.sessions.Complete(ctx, sessionID, res.ElapsedMinutes, note); err != nil {
		return nil, fmt.Errorf("completing session: %w", err)
	}

	ev := events.New(events.TypeSessionStopped, sessionID, ent.accountID)
	ev.Reason = reason
	ev.ElapsedMinutes = res.ElapsedMinutes
	e.record(ctx, ev)

	slog.Info("session stopped", "session_id", sessionID,
		"reason", reason, "elapsed_minutes", res.ElapsedMinutes)
	return res, nil
}

// Status returns a snapshot of one tracked session. The second return
// is false when the session is not tracked.
func (e *Engine) Status(sessionID string) (Snapshot, bool) {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshotLocked(ent, now), true
}

// List returns snapshots for every tracked session.
func (e *Engine) List() []Snapshot {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Snapshot, 0, len(e.entries))
	for _, ent := range e.entries {
		out = append(out, e.snapshotLocked(ent, now))
	}
	return out
}

// ActiveCount returns the number of sessions currently being timed.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// Stats summarizes the registry for operational dashboards.
func (e *Engine) Stats() Stats {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	st := Stats{TrackedSessions: len(e.entries)}
	for _, ent := range e.entries {
		minutes := int(now.Sub(ent.startTime) / time.Minute)
		st.TotalMinutes += minutes
		if st.LongestSessionID == "" || minutes > st.LongestMinutes {
			st.LongestMinutes = minutes
			st.LongestSessionID = ent.sessionID
		}
	}
	return st
}

func (*Engine) snapshotLocked(ent *entry, now time.Time) Snapshot {
	elapsed := now.Sub(ent.startTime)
	return Snapshot{
		SessionID:        ent.sessionID,
		AccountID:        ent.accountID,
		StartTime:        ent.startTime,
		ElapsedSeconds:   int(elapsed / time.Second),
		ElapsedMinutes:   int(elapsed / time.Minute),
		EstimatedMinutes: ent.estimatedMinutes,
		LastCheckpoint:   ent.lastCheckpoint,
		LastKnownBalance: ent.lastKnownBalance,
	}
}

// recover rebuilds the registry from persisted active sessions. The
// checkpoint is seeded from the already-persisted duration, so recovery
// never re-flushes progress it did not make and never double-counts.
func (e *Engine) recover(ctx context.Context) error {
	active, err := e.sessions.FindActive(ctx)
	if err != nil {
		return err
	}

	now := e.clock.Now()

	e.mu.Lock()
	for _, a := range active {
		if _, ok := e.entries[a.ID]; ok {
			continue
		}
		e.entries[a.ID] = &entry{
			sessionID:        a.ID,
			accountID:        a.AccountID,
			startTime:        a.StartedAt,
			lastCheckpoint:   a.DurationMinutes,
			estimatedMinutes: a.EstimatedMinutes,
			lastCreditCheck:  now,
		}
	}
	e.mu.Unlock()

	for _, a := range active {
		ev := events.New(events.TypeSessionRecovered, a.ID, a.AccountID)
		ev.ElapsedMinutes = int(now.Sub(a.StartedAt) / time.Minute)
		e.record(ctx, ev)
	}

	if len(active) > 0 {
		slog.Info("recovered active sessions", "count", len(active))
	}
	return nil
}

// reconcile runs one pass over the registry. An error for one entry
// drops that entry and is logged; it never aborts the pass for the rest.
func (e *Engine) reconcile(ctx context.Context) {
	e.mu.Lock()
	tracked := make([]*entry, 0, len(e.entries))
	for _, ent := range e.entries {
		tracked = append(tracked, ent)
	}
	e.mu.Unlock()

	for _, ent := range tracked {
		if err := e.reconcileEntry(ctx, ent); err != nil {
			slog.Error("reconcile failed, dropping session from registry",
				"session_id", ent.sessionID, "error", err)
			e.mu.Lock()
			delete(e.entries, ent.sessionID)
			e.mu.Unlock()
		}
	}
}

// reconcileEntry performs the per-tick steps for one session, in order:
// checkpoint flush, credit check, overrun check.
func (e *Engine) reconcileEntry(ctx context.Context, ent *entry) error {
	now := e.clock.Now()

	e.mu.Lock()
	if _, ok := e.entries[ent.sessionID]; !ok {
		// Stopped between the registry snapshot and this step.
		e.mu.Unlock()
		return nil
	}
	elapsedMinutes := int(now.Sub(ent.startTime) / time.Minute)
	needCheckpoint := elapsedMinutes > ent.lastCheckpoint
	needCreditCheck := now.Sub(ent.lastCreditCheck) >= e.cfg.CreditCheckInterval
	if needCreditCheck {
		// Advanced before the lookup so a failing ledger does not get
		// hammered every tick.
		ent.lastCreditCheck = now
	}
	overrun := ent.estimatedMinutes > 0 &&
		float64(elapsedMinutes) >= float64(ent.estimatedMinutes)*e.cfg.OverrunFactor
	e.mu.Unlock()

	if needCheckpoint {
		if err := e.flushCheckpoint(ctx, ent, elapsedMinutes); err != nil {
			return err
		}
	}

	if needCreditCheck {
		stopped, err := e.enforceCredits(ctx, ent)
		if err != nil {
			return err
		}
		if stopped {
			return nil
		}
	}

	if overrun {
		e.warnOverrun(ctx, ent, elapsedMinutes)
	}
	return nil
}

// flushCheckpoint persists the new whole-minute duration. Checkpoints
// only ever advance.
func (e *Engine) flushCheckpoint(ctx context.Context, ent *entry, minutes int) error {
	ioCtx, cancel := context.WithTimeout(ctx, e.cfg.IOTimeout)
	defer cancel()

	if err := e.sessions.UpdateDuration(ioCtx, ent.sessionID, minutes); err != nil {
		return fmt.Errorf("flushing checkpoint: %w", err)
	}

	e.mu.Lock()
	if minutes > ent.lastCheckpoint {
		ent.lastCheckpoint = minutes
	}
	e.mu.Unlock()

	slog.Debug("checkpoint flushed", "session_id", ent.sessionID, "minutes", minutes)
	return nil
}

// enforceCredits re-reads the authoritative balance and terminates the
// session when it is strictly negative or the account cannot be found.
// A balance of exactly zero is tolerated: the credit required to start
// was already deducted when the session began.
func (e *Engine) enforceCredits(ctx context.Context, ent *entry) (bool, error) {
	ioCtx, cancel := context.WithTimeout(ctx, e.cfg.IOTimeout)
	defer cancel()

	balance, err := e.credits.GetBalance(ioCtx, ent.accountID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		e.autoStop(ctx, ent, "Account not found", 0)
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking balance: %w", err)
	}

	e.mu.Lock()
	ent.lastKnownBalance = balance
	e.mu.Unlock()

	if balance < 0 {
		e.autoStop(ctx, ent, fmt.Sprintf("Insufficient credits: %d", balance), balance)
		return true, nil
	}
	return false, nil
}

// autoStop drives credit-enforcement termination through the same
// registry-removal path as a manual stop, with a distinct note.
func (e *Engine) autoStop(ctx context.Context, ent *entry, reason string, balance int) {
	now := e.clock.Now()

	e.mu.Lock()
	_, ok := e.entries[ent.sessionID]
	if ok {
		delete(e.entries, ent.sessionID)
	}
	e.mu.Unlock()

	if !ok {
		// Lost the race against a manual stop; nothing left to do.
		return
	}

	minutes := int(now.Sub(ent.startTime) / time.Minute)
	note := fmt.Sprintf("[%s] Session auto-stopped: %s", now.UTC().Format(time.RFC3339), reason)

	ioCtx, cancel := context.WithTimeout(ctx, e.cfg.IOTimeout)
	defer cancel()
	if err := e.sessions.Complete(ioCtx, ent.sessionID, minutes, note); err != nil {
		slog.Error("completing auto-stopped session failed",
			"session_id", ent.sessionID, "error", err)
	}

	ev := events.New(events.TypeSessionAutoStopped, ent.sessionID, ent.accountID)
	ev.Reason = reason
	ev.ElapsedMinutes = minutes
	ev.Balance = balance
	e.record(ctx, ev)

	slog.Warn("session auto-stopped", "session_id", ent.sessionID,
		"account_id", ent.accountID, "reason", reason)
}

// warnOverrun emits a non-terminating warning and enlarges the estimate
// so the same session does not re-warn every tick.
func (e *Engine) warnOverrun(ctx context.Context, ent *entry, elapsedMinutes int) {
	e.mu.Lock()
	if _, ok := e.entries[ent.sessionID]; !ok {
		e.mu.Unlock()
		return
	}
	oldEstimate := ent.estimatedMinutes
	newEstimate := 2 * oldEstimate
	if elapsedMinutes+overrunGraceMinutes > newEstimate {
		newEstimate = elapsedMinutes + overrunGraceMinutes
	}
	ent.estimatedMinutes = newEstimate
	e.mu.Unlock()

	ev := events.New(events.TypeOverrunWarning, ent.sessionID, ent.accountID)
	ev.Reason = fmt.Sprintf("elapsed %dm exceeds estimate %dm", elapsedMinutes, oldEstimate)
	ev.ElapsedMinutes = elapsedMinutes
	e.record(ctx, ev)

	slog.Warn("session overrunning estimate", "session_id", ent.sessionID,
		"elapsed_minutes", elapsedMinutes, "estimated_minutes", oldEstimate,
		"new_estimate", newEstimate)
}

// record persists an event best-effort; the event log is observational
// and never blocks engine decisions.
func (e *Engine) record(ctx context.Context, ev events.Event) {
	if err := e.recorder.Record(ctx, ev); err != nil {
		slog.Warn("recording session event failed",
			"type", string(ev.Type), "session_id", ev.SessionID, "error", err)
	}
}
