// Package health provides readiness state tracking and HTTP health
// check handlers for the interview platform.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Readiness state machine.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Pinger checks connectivity to a backing dependency.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// TimerCounter exposes the number of sessions currently being timed.
type TimerCounter interface {
	ActiveCount() int
}

// Checker tracks the readiness state of the platform and the health of
// its dependencies. It is safe for concurrent use.
type Checker struct {
	state  atomic.Int32
	db     Pinger       // optional
	timers TimerCounter // optional
}

// NewChecker creates a Checker in the Starting state. db and timers may
// be nil; their checks are skipped.
func NewChecker(db Pinger, timers TimerCounter) *Checker {
	return &Checker{db: db, timers: timers}
}

// SetReady transitions to the Ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the Draining state. A draining platform
// stops admitting new sessions but keeps flushing running timers.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady returns true when the state is Ready.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

type healthResponse struct {
	Status       string `json:"status"`
	Database     string `json:"database,omitempty"`
	ActiveTimers *int   `json:"active_timers,omitempty"`
}

// LivenessHandler returns an http.HandlerFunc that always responds 200 OK.
// Use this for K8s livenessProbe (/healthz).
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// ReadinessHandler returns an http.HandlerFunc that responds 200 when
// the platform is ready and its database is reachable, 503 otherwise.
// Use this for K8s readinessProbe (/readyz).
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: c.State()}
		code := http.StatusOK

		if !c.IsReady() {
			code = http.StatusServiceUnavailable
		}

		if c.db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := c.db.PingContext(ctx); err != nil {
				resp.Database = "unreachable"
				code = http.StatusServiceUnavailable
			} else {
				resp.Database = "ok"
			}
		}

		if c.timers != nil {
			n := c.timers.ActiveCount()
			resp.ActiveTimers = &n
		}

		writeJSON(w, code, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, v healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
