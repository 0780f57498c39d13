package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mockstage/interview-platform/pkg/auth"
	"github.com/mockstage/interview-platform/pkg/events"
	"github.com/mockstage/interview-platform/pkg/ledger"
	"github.com/mockstage/interview-platform/pkg/session"
	"github.com/mockstage/interview-platform/pkg/timer"
)

// Handler serves the /api/v1 routes.
type Handler struct {
	mux      *http.ServeMux
	sessions session.Store
	credits  ledger.Ledger
	engine   *timer.Engine
	recorder events.Recorder
	cost     int // credits debited at session start
	logger   *slog.Logger
}

// NewHandler wires the API routes.
func NewHandler(sessions session.Store, credits ledger.Ledger, engine *timer.Engine, recorder events.Recorder, sessionStartCost int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		mux:      http.NewServeMux(),
		sessions: sessions,
		credits:  credits,
		engine:   engine,
		recorder: recorder,
		cost:     sessionStartCost,
		logger:   logger,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("POST /api/v1/accounts", h.createAccount)
	h.mux.HandleFunc("GET /api/v1/accounts/{id}/balance", h.getBalance)
	h.mux.HandleFunc("POST /api/v1/accounts/{id}/credits", h.addCredits)
	h.mux.HandleFunc("GET /api/v1/accounts/{id}/sessions", h.listAccountSessions)

	h.mux.HandleFunc("POST /api/v1/sessions", h.createSession)
	h.mux.HandleFunc("GET /api/v1/sessions/{id}", h.getSession)
	h.mux.HandleFunc("POST /api/v1/sessions/{id}/start", h.startSession)
	h.mux.HandleFunc("POST /api/v1/sessions/{id}/stop", h.stopSession)
	h.mux.HandleFunc("POST /api/v1/sessions/{id}/end", h.endSession)
	h.mux.HandleFunc("GET /api/v1/sessions/{id}/timer", h.getTimer)

	h.mux.HandleFunc("GET /api/v1/timers", h.listTimers)
	h.mux.HandleFunc("GET /api/v1/timers/stats", h.timerStats)

	h.mux.HandleFunc("GET /api/v1/events", h.listEvents)
}

type createAccountRequest struct {
	Email          string `json:"email"`
	InitialBalance int    `json:"initial_balance"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.InitialBalance < 0 {
		writeError(w, http.StatusBadRequest, "initial_balance must not be negative")
		return
	}

	a := &ledger.Account{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Balance:   req.InitialBalance,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.credits.CreateAccount(r.Context(), a); err != nil {
		h.logger.Error("creating account", "error", err)
		writeError(w, http.StatusInternalServerError, "creating account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      a.ID,
		"email":   a.Email,
		"balance": a.Balance,
	})
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")

	balance, err := h.credits.GetBalance(r.Context(), accountID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		h.logger.Error("querying balance", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "querying balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"balance":    balance,
	})
}

type addCreditsRequest struct {
	Amount      int    `json:"amount"`
	Description string `json:"description"`
}

func (h *Handler) addCredits(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")

	var req addCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Description == "" {
		req.Description = "Credit purchase"
	}

	balance, err := h.credits.Credit(r.Context(), accountID, req.Amount, req.Description)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account not found")
		return
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	case err != nil:
		h.logger.Error("crediting account", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "crediting account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"balance":    balance,
	})
}

func (h *Handler) listAccountSessions(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	sessions, err := h.sessions.ListByAccount(r.Context(), accountID, limit)
	if err != nil {
		h.logger.Error("listing sessions", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "listing sessions")
		return
	}

	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionJSON(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

type createSessionRequest struct {
	AccountID        string `json:"account_id"`
	InterviewType    string `json:"interview_type"`
	Topic            string `json:"topic"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == "" {
		// Fall back to the authenticated caller.
		if user := auth.GetUser(r.Context()); user != nil {
			req.AccountID = user.Subject
		}
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	if req.EstimatedMinutes < 0 {
		writeError(w, http.StatusBadRequest, "estimated_minutes must not be negative")
		return
	}

	if _, err := h.credits.GetBalance(r.Context(), req.AccountID); errors.Is(err, ledger.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	} else if err != nil {
		h.logger.Error("checking account", "account_id", req.AccountID, "error", err)
		writeError(w, http.StatusInternalServerError, "checking account")
		return
	}

	sess := &session.Session{
		ID:               uuid.NewString(),
		AccountID:        req.AccountID,
		Status:           session.StatusCreated,
		InterviewType:    req.InterviewType,
		Topic:            req.Topic,
		EstimatedMinutes: req.EstimatedMinutes,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.sessions.Create(r.Context(), sess); err != nil {
		h.logger.Error("creating session", "error", err)
		writeError(w, http.StatusInternalServerError, "creating session")
		return
	}

	writeJSON(w, http.StatusCreated, sessionJSON(sess))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(sess))
}

// startSession activates a created session and begins tracking. The
// status-guarded activation decides which of two racing starts wins;
// only the winner debits the start cost, so a lost race cannot
// double-charge the account.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if sess.Status != session.StatusCreated {
		writeError(w, http.StatusConflict, fmt.Sprintf("session is %s, not created", sess.Status))
		return
	}

	balance, err := h.credits.GetBalance(r.Context(), sess.AccountID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		h.logger.Error("checking balance", "account_id", sess.AccountID, "error", err)
		writeError(w, http.StatusInternalServerError, "checking balance")
		return
	}
	if balance < h.cost {
		writeError(w, http.StatusPaymentRequired, "insufficient credits")
		return
	}

	startedAt := time.Now().UTC()
	activated, err := h.sessions.Activate(r.Context(), sess.ID, startedAt)
	if err != nil {
		h.logger.Error("activating session", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "activating session")
		return
	}
	if !activated {
		writeError(w, http.StatusConflict, "session already started")
		return
	}

	if h.cost > 0 {
		if _, err := h.credits.Debit(r.Context(), sess.AccountID, h.cost,
			"Session start: "+sess.ID); err != nil {
			h.logger.Error("debiting start cost", "session_id", sess.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "debiting start cost")
			return
		}
	}

	startTime := h.engine.TrackSession(sess.ID, sess.AccountID, startedAt, sess.EstimatedMinutes)

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"start_time": startTime,
	})
}

type stopSessionRequest struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req stopSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.AccountID == "" {
		if user := auth.GetUser(r.Context()); user != nil {
			req.AccountID = user.Subject
		}
	}
	if req.Reason == "" {
		req.Reason = "Stopped by user"
	}

	res, err := h.engine.StopSession(r.Context(), sessionID, req.AccountID, req.Reason)
	if err != nil {
		h.writeStopError(w, sessionID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type endSessionRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req endSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "Interview concluded"
	}

	res, err := h.engine.EndSession(r.Context(), sessionID, req.Reason)
	if err != nil {
		h.writeStopError(w, sessionID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeStopError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, timer.ErrNotFound):
		writeError(w, http.StatusNotFound, "session is not being timed")
	case errors.Is(err, timer.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "session belongs to another account")
	case errors.Is(err, timer.ErrNotActive):
		writeError(w, http.StatusConflict, "session is not active")
	default:
		h.logger.Error("stopping session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "stopping session")
	}
}

func (h *Handler) getTimer(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	snap, ok := h.engine.Status(sessionID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": sessionID,
			"is_active":  false,
		})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		IsActive bool `json:"is_active"`
		timer.Snapshot
	}{IsActive: true, Snapshot: snap})
}

func (h *Handler) listTimers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"timers": h.engine.List()})
}

func (h *Handler) timerStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := events.Filter{
		SessionID: q.Get("session_id"),
		AccountID: q.Get("account_id"),
		Type:      events.Type(q.Get("type")),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	evs, err := h.recorder.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("querying events", "error", err)
		writeError(w, http.StatusInternalServerError, "querying events")
		return
	}
	if evs == nil {
		evs = []events.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

// loadSession fetches the path session, writing a 404 when absent.
func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sessionID := r.PathValue("id")

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("loading session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "loading session")
		return nil, false
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func sessionJSON(s *session.Session) map[string]any {
	out := map[string]any{
		"id":                s.ID,
		"account_id":        s.AccountID,
		"status":            s.Status,
		"interview_type":    s.InterviewType,
		"topic":             s.Topic,
		"estimated_minutes": s.EstimatedMinutes,
		"duration_minutes":  s.DurationMinutes,
		"notes":             s.Notes,
		"created_at":        s.CreatedAt,
	}
	if s.StartedAt != nil {
		out["started_at"] = s.StartedAt
	}
	return out
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
