package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debt-tracker/internal/models"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := Connect(context.Background(), Config{Addr: mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestStore_SetGetClear(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	s, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.Session{}, s)

	require.NoError(t, store.Set(ctx, id, "T", "alice"))
	s, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.Session{Token: "T", Username: "alice"}, s)
	assert.Equal(t, time.Minute, mr.TTL(key(id)))

	require.NoError(t, store.Clear(ctx, id))
	s, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, s.Authenticated())
	assert.False(t, mr.Exists(key(id)))
}

func TestStore_SessionExpires(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, store.Set(ctx, id, "T", "alice"))
	mr.FastForward(2 * time.Minute)

	s, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.Session{}, s)
}

func TestStore_UsernameWithoutTokenIsDropped(t *testing.T) {
	store, mr := newStore(t)
	id := uuid.NewString()
	mr.HSet(key(id), "username", "leftover")

	s, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.Session{}, s)
}

func TestStore_FlashIsTakenOnce(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, store.Set(ctx, id, "T", "alice"))

	flash := models.Flash{Message: "Could not add the debt.", Error: true}
	require.NoError(t, store.SetFlash(ctx, id, flash))

	got, err := store.TakeFlash(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, flash, got)

	got, err = store.TakeFlash(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.Flash{}, got)

	s, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "T", s.Token, "taking the flash keeps the session")
}

func TestStore_Ping(t *testing.T) {
	store, _ := newStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), Config{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}
