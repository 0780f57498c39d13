package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	e := New(TypeOverrunWarning, "sess-1", "acct-1")

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, TypeOverrunWarning, e.Type)
	assert.Equal(t, "sess-1", e.SessionID)
	assert.Equal(t, "acct-1", e.AccountID)

	other := New(TypeOverrunWarning, "sess-1", "acct-1")
	assert.NotEqual(t, e.ID, other.ID)
}

func TestMemoryRecorder_Filtering(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	for _, ev := range []Event{
		New(TypeSessionTracked, "sess-1", "acct-1"),
		New(TypeSessionStopped, "sess-1", "acct-1"),
		New(TypeSessionTracked, "sess-2", "acct-2"),
	} {
		require.NoError(t, r.Record(ctx, ev))
	}

	bySession, err := r.Query(ctx, Filter{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	byType, err := r.Query(ctx, Filter{Type: TypeSessionTracked})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	byAccount, err := r.Query(ctx, Filter{AccountID: "acct-2"})
	require.NoError(t, err)
	require.Len(t, byAccount, 1)
	assert.Equal(t, "sess-2", byAccount[0].SessionID)

	limited, err := r.Query(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryRecorder_NewestFirst(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	types := []Type{TypeSessionTracked, TypeOverrunWarning, TypeSessionStopped}
	for _, typ := range types {
		require.NoError(t, r.Record(ctx, New(typ, "sess-1", "acct-1")))
	}

	got, err := r.Query(ctx, Filter{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, TypeSessionStopped, got[0].Type)
	assert.Equal(t, TypeOverrunWarning, got[1].Type)
	assert.Equal(t, TypeSessionTracked, got[2].Type)

	// Limit applies after ordering, so it keeps the most recent entry.
	limited, err := r.Query(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, TypeSessionStopped, limited[0].Type)
}

func TestSlogRecorder(t *testing.T) {
	r := NewSlogRecorder(nil)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, New(TypeSessionTracked, "sess-1", "acct-1")))

	got, err := r.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Nil(t, got, "log recorder keeps no history")
	assert.NoError(t, r.Close())
}
