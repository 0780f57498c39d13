package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_StartStopOrder(t *testing.T) {
	lc := NewLifecycle(nil)

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		lc.Append(Hook{
			Name:    name,
			OnStart: func(context.Context) error { order = append(order, "start-"+name); return nil },
			OnStop:  func(context.Context) error { order = append(order, "stop-"+name); return nil },
		})
	}

	require.NoError(t, lc.Start(context.Background()))
	require.NoError(t, lc.Stop(context.Background()))

	assert.Equal(t, []string{
		"start-a", "start-b", "start-c",
		"stop-c", "stop-b", "stop-a",
	}, order)
}

func TestLifecycle_StartFailureRollsBack(t *testing.T) {
	lc := NewLifecycle(nil)

	var order []string
	lc.Append(Hook{
		Name:    "a",
		OnStart: func(context.Context) error { order = append(order, "start-a"); return nil },
		OnStop:  func(context.Context) error { order = append(order, "stop-a"); return nil },
	})
	lc.Append(Hook{
		Name:    "b",
		OnStart: func(context.Context) error { return errors.New("boom") },
		OnStop:  func(context.Context) error { order = append(order, "stop-b"); return nil },
	})
	lc.Append(Hook{
		Name:    "c",
		OnStart: func(context.Context) error { order = append(order, "start-c"); return nil },
	})

	err := lc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting b")

	// a was started and must be rolled back; b and c never started.
	assert.Equal(t, []string{"start-a", "stop-a"}, order)
}

func TestLifecycle_StopCollectsErrors(t *testing.T) {
	lc := NewLifecycle(nil)

	var stopped []string
	lc.Append(Hook{
		Name:   "a",
		OnStop: func(context.Context) error { stopped = append(stopped, "a"); return nil },
	})
	lc.Append(Hook{
		Name:   "b",
		OnStop: func(context.Context) error { return errors.New("b failed") },
	})
	lc.Append(Hook{
		Name:   "c",
		OnStop: func(context.Context) error { stopped = append(stopped, "c"); return nil },
	})

	require.NoError(t, lc.Start(context.Background()))
	err := lc.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopping b")

	// The failing hook does not block the others.
	assert.Equal(t, []string{"c", "a"}, stopped)
}

func TestLifecycle_StopWithoutStart(t *testing.T) {
	lc := NewLifecycle(nil)
	lc.Append(Hook{
		Name:   "a",
		OnStop: func(context.Context) error { t.Fatal("should not run"); return nil },
	})
	assert.NoError(t, lc.Stop(context.Background()))
}

func TestLifecycle_NilCallbacks(t *testing.T) {
	lc := NewLifecycle(nil)
	lc.Append(Hook{Name: "bare"})

	require.NoError(t, lc.Start(context.Background()))
	require.NoError(t, lc.Stop(context.Background()))
}
