package sso

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
)

func TestMemorySessionStorePrunesExpiredPending(t *testing.T) {
	store := NewMemorySessionStore()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 20000; i++ {
		require.NoError(t, store.Put(ctx, Session{ID: fmt.Sprintf("pending-%d", i), PendingService: "gitlab"}, pendingSessionTTL))
	}
	require.Equal(t, 20000, store.Len())

	now = now.Add(24 * time.Hour)
	require.NoError(t, store.Put(ctx, Session{ID: "fresh-0"}, pendingSessionTTL))
	require.Equal(t, 1, store.Len())

	_, err := store.Get(ctx, "pending-0")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = store.Get(ctx, "fresh-0")
	require.NoError(t, err)
}

func TestMemorySessionStoreKeepsLiveSessions(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	for i := 0; i < pruneThreshold+10; i++ {
		require.NoError(t, store.Put(ctx, Session{ID: fmt.Sprintf("s-%d", i)}, time.Hour))
	}
	require.Equal(t, pruneThreshold+10, store.Len())
	_, err := store.Get(ctx, "s-0")
	require.NoError(t, err)
}

func newRedisStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisSessionStore(rdb, ""), mr
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	in := Session{ID: "abc", AccessToken: "tok", ExpiresAt: expires, Subject: "user-1"}
	require.NoError(t, store.Put(ctx, in, time.Minute))
	require.True(t, mr.Exists(defaultRedisPrefix+"abc"))
	require.Equal(t, time.Minute, mr.TTL(defaultRedisPrefix+"abc"))

	out, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, "tok", out.AccessToken)
	require.Equal(t, "user-1", out.Subject)
	require.True(t, expires.Equal(out.ExpiresAt))

	require.NoError(t, store.Delete(ctx, "abc"))
	_, err = store.Get(ctx, "abc")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRedisSessionStoreExpiresWithTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Session{ID: "pending", PendingService: "grafana"}, pendingSessionTTL))
	_, err := store.Get(ctx, "pending")
	require.NoError(t, err)

	mr.FastForward(pendingSessionTTL)
	_, err = store.Get(ctx, "pending")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRedisSessionStoreUnknownAndCustomPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisSessionStore(rdb, "lp:")

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, store.Put(context.Background(), Session{ID: "x"}, 0))
	require.True(t, mr.Exists("lp:x"))
	require.Equal(t, time.Duration(0), mr.TTL("lp:x"))
}

func TestRedisSessionStoreSurfacesConnectionErrors(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()
	_, err := store.Get(context.Background(), "abc")
	require.Error(t, err)
	require.NotErrorIs(t, err, apperr.ErrNotFound)
}
