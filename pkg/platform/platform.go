package platform

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"github.com/mockstage/interview-platform/internal/server"
	"github.com/mockstage/interview-platform/pkg/auth"
	"github.com/mockstage/interview-platform/pkg/database/migrate"
	"github.com/mockstage/interview-platform/pkg/events"
	eventspg "github.com/mockstage/interview-platform/pkg/events/postgres"
	"github.com/mockstage/interview-platform/pkg/health"
	"github.com/mockstage/interview-platform/pkg/ledger"
	ledgerpg "github.com/mockstage/interview-platform/pkg/ledger/postgres"
	"github.com/mockstage/interview-platform/pkg/session"
	sessionpg "github.com/mockstage/interview-platform/pkg/session/postgres"
	"github.com/mockstage/interview-platform/pkg/timer"
)

// Platform wires the stores, the timer engine, and the HTTP server
// together from a Config.
type Platform struct {
	cfg       *Config
	logger    *slog.Logger
	db        *sql.DB // nil when running on memory stores
	sessions  session.Store
	credits   ledger.Ledger
	recorder  events.Recorder
	engine    *timer.Engine
	checker   *health.Checker
	server    *server.Server
	lifecycle *Lifecycle
}

// New builds a platform from the config. With a database DSN
// configured, migrations are applied and all state is persisted;
// without one, everything runs on in-memory stores.
func New(cfg *Config, logger *slog.Logger) (*Platform, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Platform{
		cfg:       cfg,
		logger:    logger,
		lifecycle: NewLifecycle(logger),
	}

	if err := p.buildStores(); err != nil {
		return nil, err
	}

	p.engine = timer.New(p.sessions, p.credits, p.recorder, timer.Config{
		TickInterval:        cfg.Timer.TickInterval,
		CreditCheckInterval: cfg.Timer.CreditCheckInterval,
		OverrunFactor:       cfg.Timer.OverrunFactor,
		IOTimeout:           cfg.Timer.IOTimeout,
	})
	// A nil *sql.DB must not reach the checker as a non-nil interface.
	var pinger health.Pinger
	if p.db != nil {
		pinger = p.db
	}
	p.checker = health.NewChecker(pinger, p.engine)

	handler := server.NewHandler(p.sessions, p.credits, p.engine, p.recorder,
		cfg.Timer.SessionStartCost, logger)
	p.server = server.New(server.Config{
		Address: cfg.Server.Address,
		TLSCert: cfg.Server.TLS.CertFile,
		TLSKey:  cfg.Server.TLS.KeyFile,
	}, handler, p.checker, p.authMiddleware(), logger)

	p.registerHooks()
	return p, nil
}

// buildStores opens the database when configured and selects the
// store implementations.
func (p *Platform) buildStores() error {
	if p.cfg.Database.DSN == "" {
		p.logger.Info("no database configured, using in-memory stores")
		p.sessions = session.NewMemoryStore()
		p.credits = ledger.NewMemoryLedger()
		p.recorder = events.NewMemoryRecorder()
		return nil
	}

	db, err := sql.Open("postgres", p.cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(p.cfg.Database.MaxOpenConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("pinging database: %w", err)
	}

	if err := migrate.Run(db); err != nil {
		_ = db.Close()
		return err
	}

	eventStore := eventspg.New(db, eventspg.Config{
		RetentionDays: p.cfg.Events.RetentionDays,
	})
	eventStore.StartCleanupRoutine(p.cfg.Events.CleanupInterval)

	p.db = db
	p.sessions = sessionpg.New(db)
	p.credits = ledgerpg.New(db)
	p.recorder = eventStore
	return nil
}

// authMiddleware builds the request authentication chain from config.
// Returns nil when no authentication is configured and anonymous
// access is allowed.
func (p *Platform) authMiddleware() func(http.Handler) http.Handler {
	var authenticators []auth.Authenticator

	if p.cfg.Auth.APIKeys.Enabled {
		defs := make([]auth.KeyDef, 0, len(p.cfg.Auth.APIKeys.Keys))
		for _, k := range p.cfg.Auth.APIKeys.Keys {
			defs = append(defs, auth.KeyDef{Key: k.Key, Name: k.Name, Roles: k.Roles})
		}
		authenticators = append(authenticators, auth.NewAPIKeyAuthenticator(defs))
	}
	if p.cfg.Auth.JWT.Enabled {
		authenticators = append(authenticators,
			auth.NewJWTAuthenticator(p.cfg.Auth.JWT.Issuer, p.cfg.Auth.JWT.SigningKey))
	}

	if len(authenticators) == 0 && p.cfg.Auth.AllowAnonymous {
		return nil
	}
	chain := auth.NewChainedAuthenticator(p.cfg.Auth.AllowAnonymous, authenticators...)
	return auth.Middleware(chain, p.logger)
}

// registerHooks orders startup: engine first so recovered timers exist
// before traffic arrives, server last. Shutdown runs in reverse, so the
// server drains before the engine flushes its final checkpoints.
func (p *Platform) registerHooks() {
	p.lifecycle.Append(Hook{
		Name: "timer-engine",
		OnStart: func(ctx context.Context) error {
			return p.engine.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return p.engine.Shutdown(ctx)
		},
	})
	p.lifecycle.Append(Hook{
		Name: "http-server",
		OnStart: func(_ context.Context) error {
			p.server.Start()
			p.checker.SetReady()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.checker.SetDraining()
			return p.server.Shutdown(ctx)
		},
	})
}

// Start brings the platform up.
func (p *Platform) Start(ctx context.Context) error {
	return p.lifecycle.Start(ctx)
}

// Stop brings the platform down gracefully and releases resources.
func (p *Platform) Stop(ctx context.Context) error {
	err := p.lifecycle.Stop(ctx)
	if cerr := p.recorder.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if p.db != nil {
		if cerr := p.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Engine exposes the timer engine, mainly for tests.
func (p *Platform) Engine() *timer.Engine {
	return p.engine
}
