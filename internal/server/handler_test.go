package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockstage/interview-platform/pkg/events"
	"github.com/mockstage/interview-platform/pkg/ledger"
	"github.com/mockstage/interview-platform/pkg/session"
	"github.com/mockstage/interview-platform/pkg/timer"
)

type testAPI struct {
	handler  *Handler
	sessions *session.MemoryStore
	credits  *ledger.MemoryLedger
	engine   *timer.Engine
	recorder *events.MemoryRecorder
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	sessions := session.NewMemoryStore()
	credits := ledger.NewMemoryLedger()
	recorder := events.NewMemoryRecorder()
	engine := timer.New(sessions, credits, recorder, timer.Config{})

	return &testAPI{
		handler:  NewHandler(sessions, credits, engine, recorder, 1, nil),
		sessions: sessions,
		credits:  credits,
		engine:   engine,
		recorder: recorder,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func (a *testAPI) seedAccount(t *testing.T, id string, balance int) {
	t.Helper()
	require.NoError(t, a.credits.CreateAccount(context.Background(), &ledger.Account{
		ID: id, Balance: balance, CreatedAt: time.Now().UTC(),
	}))
}

func (a *testAPI) seedSession(t *testing.T, id, accountID string, estimated int) {
	t.Helper()
	require.NoError(t, a.sessions.Create(context.Background(), &session.Session{
		ID:               id,
		AccountID:        accountID,
		Status:           session.StatusCreated,
		InterviewType:    "system_design",
		EstimatedMinutes: estimated,
		CreatedAt:        time.Now().UTC(),
	}))
}

func TestCreateAccount(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/accounts", map[string]any{
		"email":           "dev@example.com",
		"initial_balance": 50,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, float64(50), body["balance"])

	t.Run("negative balance rejected", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/v1/accounts", map[string]any{
			"initial_balance": -5,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetBalance(t *testing.T) {
	api := newTestAPI(t)
	api.seedAccount(t, "acct-1", 30)

	rec := api.do(t, http.MethodGet, "/api/v1/accounts/acct-1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(30), decode(t, rec)["balance"])

	t.Run("unknown account", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/accounts/ghost/balance", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAddCredits(t *testing.T) {
	api := newTestAPI(t)
	api.seedAccount(t, "acct-1", 10)

	rec := api.do(t, http.MethodPost, "/api/v1/accounts/acct-1/credits", map[string]any{
		"amount": 25,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(35), decode(t, rec)["balance"])

	t.Run("non-positive amount", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/v1/accounts/acct-1/credits", map[string]any{
			"amount": 0,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateSession(t *testing.T) {
	api := newTestAPI(t)
	api.seedAccount(t, "acct-1", 10)

	rec := api.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{
		"account_id":        "acct-1",
		"interview_type":    "behavioral",
		"topic":             "conflict resolution",
		"estimated_minutes": 45,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, float64(45), body["estimated_minutes"])

	t.Run("unknown account", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{
			"account_id": "ghost",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing account", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{
			"interview_type": "coding",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStartSession(t *testing.T) {
	t.Run("debits and tracks", func(t *testing.T) {
		api := newTestAPI(t)
		api.seedAccount(t, "acct-1", 5)
		api.seedSession(t, "sess-1", "acct-1", 30)

		rec := api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/start", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, decode(t, rec)["start_time"])

		balance, err := api.credits.GetBalance(context.Background(), "acct-1")
		require.NoError(t, err)
		assert.Equal(t, 4, balance)

		sess, err := api.sessions.Get(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Equal(t, session.StatusActive, sess.Status)

		_, tracked := api.engine.Status("sess-1")
		assert.True(t, tracked)
	})

	t.Run("insufficient credits", func(t *testing.T) {
		api := newTestAPI(t)
		api.seedAccount(t, "acct-1", 0)
		api.seedSession(t, "sess-1", "acct-1", 30)

		rec := api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/start", nil)
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)

		_, tracked := api.engine.Status("sess-1")
		assert.False(t, tracked)
	})

	t.Run("already started", func(t *testing.T) {
		api := newTestAPI(t)
		api.seedAccount(t, "acct-1", 5)
		api.seedSession(t, "sess-1", "acct-1", 30)

		require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/start", nil).Code)
		rec := api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/start", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		api := newTestAPI(t)
		rec := api.do(t, http.MethodPost, "/api/v1/sessions/ghost/start", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// rendezvousStore holds every Get until two callers have arrived, so
// both start requests observe the session still in the created state.
type rendezvousStore struct {
	session.Store
	arrived sync.WaitGroup
}

func (s *rendezvousStore) Get(ctx context.Context, id string) (*session.Session, error) {
	s.arrived.Done()
	s.arrived.Wait()
	return s.Store.Get(ctx, id)
}

func TestStartSession_ConcurrentStartsChargeOnce(t *testing.T) {
	sessions := session.NewMemoryStore()
	credits := ledger.NewMemoryLedger()
	recorder := events.NewMemoryRecorder()

	gate := &rendezvousStore{Store: sessions}
	gate.arrived.Add(2)

	engine := timer.New(gate, credits, recorder, timer.Config{})
	handler := NewHandler(gate, credits, engine, recorder, 1, nil)

	require.NoError(t, credits.CreateAccount(context.Background(), &ledger.Account{
		ID: "acct-1", Balance: 5, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, sessions.Create(context.Background(), &session.Session{
		ID:        "sess-1",
		AccountID: "acct-1",
		Status:    session.StatusCreated,
		CreatedAt: time.Now().UTC(),
	}))

	codes := make(chan int, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/start", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	var got []int
	for code := range codes {
		got = append(got, code)
	}
	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusConflict}, got,
		"exactly one of two racing starts may win")

	// The loser must not have debited.
	balance, err := credits.GetBalance(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 4, balance)
	assert.Len(t, credits.Transactions(), 1)

	_, tracked := engine.Status("sess-1")
	assert.True(t, tracked)
}

func TestStopSession(t *testing.T) {
	t.Run("owner stop", func(t *testing.T) {
		api := newTestAPI(t)
		api.seedAccount(t, "acct-1", 5)
		api.seedSession(t, "sess-1", "acct-1", 30)
		require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/start", nil).Code)

		rec := api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/stop", map[string]any{
			"account_id": "acct-1",
			"reason":     "Done practicing",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		sess, err := api.sessions.Get(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Equal(t, session.StatusCompleted, sess.Status)
	})

	t.Run("wrong owner", func(t *testing.T) {
		api := newTestAPI(t)
		api.seedAccount(t, "acct-1", 5)
		api.seedSession(t, "sess-1", "acct-1", 30)
		require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/start", nil).Code)

		rec := api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/stop", map[string]any{
			"account_id": "acct-2",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("not active", func(t *testing.T) {
		api := newTestAPI(t)
		api.seedAccount(t, "acct-1", 5)
		api.seedSession(t, "sess-1", "acct-1", 30)

		rec := api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/stop", map[string]any{
			"account_id": "acct-1",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		api := newTestAPI(t)
		rec := api.do(t, http.MethodPost, "/api/v1/sessions/ghost/stop", map[string]any{
			"account_id": "acct-1",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestEndSession(t *testing.T) {
	api := newTestAPI(t)
	api.seedAccount(t, "acct-1", 5)
	api.seedSession(t, "sess-1", "acct-1", 30)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/start", nil).Code)

	// No ownership check on the platform end route.
	rec := api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/end", map[string]any{
		"reason": "Interview concluded",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	_, tracked := api.engine.Status("sess-1")
	assert.False(t, tracked)
}

func TestGetTimer(t *testing.T) {
	api := newTestAPI(t)
	api.seedAccount(t, "acct-1", 5)
	api.seedSession(t, "sess-1", "acct-1", 30)

	t.Run("untracked session", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/sessions/sess-1/timer", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, decode(t, rec)["is_active"])
	})

	t.Run("tracked session", func(t *testing.T) {
		require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/start", nil).Code)

		rec := api.do(t, http.MethodGet, "/api/v1/sessions/sess-1/timer", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, true, body["is_active"])
		assert.Equal(t, "sess-1", body["session_id"])
		assert.Equal(t, float64(30), body["estimated_minutes"])
	})
}

func TestListTimersAndStats(t *testing.T) {
	api := newTestAPI(t)
	api.seedAccount(t, "acct-1", 10)
	api.seedSession(t, "sess-1", "acct-1", 30)
	api.seedSession(t, "sess-2", "acct-1", 60)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/start", nil).Code)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/sessions/sess-2/start", nil).Code)

	rec := api.do(t, http.MethodGet, "/api/v1/timers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	timers := decode(t, rec)["timers"].([]any)
	assert.Len(t, timers, 2)

	rec = api.do(t, http.MethodGet, "/api/v1/timers/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["tracked_sessions"])
}

func TestListAccountSessions(t *testing.T) {
	api := newTestAPI(t)
	api.seedAccount(t, "acct-1", 10)
	api.seedSession(t, "sess-1", "acct-1", 30)
	api.seedSession(t, "sess-2", "acct-1", 45)
	api.seedSession(t, "sess-3", "acct-2", 45)

	rec := api.do(t, http.MethodGet, "/api/v1/accounts/acct-1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decode(t, rec)["sessions"].([]any)
	assert.Len(t, sessions, 2)
}

func TestListEvents(t *testing.T) {
	api := newTestAPI(t)
	api.seedAccount(t, "acct-1", 5)
	api.seedSession(t, "sess-1", "acct-1", 30)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/sessions/sess-1/start", nil).Code)

	rec := api.do(t, http.MethodGet, "/api/v1/events?session_id=sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	evs := decode(t, rec)["events"].([]any)
	require.NotEmpty(t, evs)

	first := evs[0].(map[string]any)
	assert.Equal(t, string(events.TypeSessionTracked), first["type"])

	t.Run("invalid limit", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/events?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
