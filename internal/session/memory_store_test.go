package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_UpdateSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := Session{SessionID: "sid-1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}

	require.NoError(t, store.Create(ctx, s))
	require.NoError(t, store.Delete(ctx, s.SessionID))

	// A refresh racing a sign-out must not resurrect the session.
	require.NoError(t, store.Update(ctx, s))

	got, err := store.Get(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, store.Len())
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, Session{SessionID: "sid-1", UserID: "user-1"}))

	got, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	got.UserID = "someone-else"

	again, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", again.UserID)
}

func TestMemoryStore_CreateKeepsExisting(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, Session{SessionID: "sid-1", UserID: "user-1"}))

	err := store.Create(ctx, Session{SessionID: "sid-1", UserID: "user-2"})
	assert.ErrorIs(t, err, ErrSessionExists)

	got, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
}
