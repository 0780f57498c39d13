package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockstage/interview-platform/pkg/session"
)

func memoryConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Auth.AllowAnonymous = true
	return cfg
}

func TestPlatform_MemoryStores(t *testing.T) {
	p, err := New(memoryConfig(), nil)
	require.NoError(t, err)

	// No DSN means no database handle and in-memory stores.
	assert.Nil(t, p.db)
	_, ok := p.sessions.(*session.MemoryStore)
	assert.True(t, ok)
	assert.NotNil(t, p.Engine())
}

func TestPlatform_StartStop(t *testing.T) {
	p, err := New(memoryConfig(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	assert.True(t, p.checker.IsReady())

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.checker.IsReady())
}

func TestPlatform_MemoryReadiness(t *testing.T) {
	p, err := New(memoryConfig(), nil)
	require.NoError(t, err)
	p.checker.SetReady()

	// Without a database the readiness probe must answer instead of
	// trying to ping a nil handle.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody)
	p.checker.ReadinessHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "database")
}

func TestPlatform_InvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Timer.OverrunFactor = 0.5

	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overrun_factor")
}

func TestPlatform_AuthMiddleware(t *testing.T) {
	t.Run("anonymous with no authenticators", func(t *testing.T) {
		p, err := New(memoryConfig(), nil)
		require.NoError(t, err)
		assert.Nil(t, p.authMiddleware())
	})

	t.Run("api keys enabled", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Auth.AllowAnonymous = false
		cfg.Auth.APIKeys.Enabled = true
		cfg.Auth.APIKeys.Keys = []APIKeyDef{{Key: "k", Name: "svc"}}

		p, err := New(cfg, nil)
		require.NoError(t, err)
		assert.NotNil(t, p.authMiddleware())
	})
}
