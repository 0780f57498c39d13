package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Hook is a pair of start/stop callbacks registered with the Lifecycle.
// Either callback may be nil.
type Hook struct {
	Name    string
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// Lifecycle runs registered hooks in order on startup and in reverse
// order on shutdown. If a start hook fails, already-started hooks are
// stopped in reverse order before the error is returned.
type Lifecycle struct {
	mu      sync.Mutex
	hooks   []Hook
	started int // number of hooks successfully started
	logger  *slog.Logger
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{logger: logger}
}

// Append registers a hook. Hooks run in registration order on start.
func (l *Lifecycle) Append(h Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, h)
}

// Start runs all OnStart hooks in order. On failure the hooks that
// already started are stopped before the error is returned.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, h := range l.hooks {
		if h.OnStart == nil {
			l.started = i + 1
			continue
		}
		l.logger.Debug("starting component", "name", h.Name)
		if err := h.OnStart(ctx); err != nil {
			startErr := fmt.Errorf("starting %s: %w", h.Name, err)
			if stopErr := l.stopLocked(ctx); stopErr != nil {
				return errors.Join(startErr, stopErr)
			}
			return startErr
		}
		l.started = i + 1
	}
	return nil
}

// Stop runs the OnStop hooks of started components in reverse order.
// All stop hooks run even if some fail; their errors are joined.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopLocked(ctx)
}

func (l *Lifecycle) stopLocked(ctx context.Context) error {
	var errs []error
	for i := l.started - 1; i >= 0; i-- {
		h := l.hooks[i]
		if h.OnStop == nil {
			continue
		}
		l.logger.Debug("stopping component", "name", h.Name)
		if err := h.OnStop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", h.Name, err))
		}
	}
	l.started = 0
	return errors.Join(errs...)
}
