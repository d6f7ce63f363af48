package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	s := Session{
		SessionID: "sid-1",
		UserID:    "user-1",
		Username:  "u@x.com",
		Provider:  "google",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, store.Create(ctx, s))

	assert.True(t, mr.Exists("session:sid-1"))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("session:sid-1").Seconds(), 5)

	got, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s.UserID, got.UserID)
	assert.Equal(t, s.Username, got.Username)
	assert.Equal(t, s.Provider, got.Provider)
	assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, store.Delete(ctx, "sid-1"))
	got, err = store.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreCreateValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.Create(ctx, Session{UserID: "u", ExpiresAt: time.Now().Add(time.Hour)})
	assert.Error(t, err)

	err = store.Create(ctx, Session{SessionID: "s", UserID: "u", ExpiresAt: time.Now().Add(-time.Second)})
	assert.Error(t, err)
}

func TestRedisStoreCreateRejectsDuplicateID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	s := Session{SessionID: "dup", UserID: "u", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Create(ctx, s))

	s.UserID = "other"
	require.Error(t, store.Create(ctx, s))

	got, err := store.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, "u", got.UserID)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, Session{
		SessionID: "short",
		UserID:    "u",
		ExpiresAt: time.Now().Add(time.Minute),
	}))

	mr.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreUpdate(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	s := Session{SessionID: "sid", UserID: "u", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Create(ctx, s))

	s.Username = "renamed"
	s.ExpiresAt = time.Now().Add(time.Hour)
	require.NoError(t, store.Update(ctx, s))

	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Username)
	assert.Greater(t, mr.TTL("session:sid"), 30*time.Minute)

	s.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Update(ctx, s))
	assert.False(t, mr.Exists("session:sid"))

	assert.Error(t, store.Update(ctx, Session{}))
}

func TestGenerateID(t *testing.T) {
	a, err := GenerateID()
	require.NoError(t, err)
	b, err := GenerateID()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestRedisStoreGetCorruptValue(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("session:bad", "{not json"))

	_, err := store.Get(context.Background(), "bad")
	require.Error(t, err)
}
