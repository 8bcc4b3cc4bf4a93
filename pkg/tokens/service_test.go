package tokens

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewService(store, NewHasher(nil)), store
}

func intPtr(v int) *int { return &v }

func TestIssueStoresDigestNotSecret(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueRequest{Name: "ci", Description: "pipeline"})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(issued.Secret, "opt_"))
	require.Len(t, issued.Secret, len("opt_")+48)
	require.Equal(t, issued.Secret[:12]+"...", issued.Record.Prefix)
	require.Equal(t, []string{"read", "write", "scan"}, issued.Record.Scopes)
	require.Nil(t, issued.Record.ExpiresAt)
	require.Equal(t, StatusActive, issued.Record.Status)

	stored, err := store.Get(ctx, issued.Record.ID)
	require.NoError(t, err)
	require.Equal(t, NewHasher(nil).Digest(issued.Secret), stored.Digest)

	raw, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NotContains(t, string(raw), issued.Secret)
	require.NotContains(t, string(raw), stored.Digest)
}

func TestIssueDefaultsNameAndDedupesScopes(t *testing.T) {
	svc, _ := newTestService(t)
	issued, err := svc.Issue(context.Background(), IssueRequest{Scopes: []string{"Scan", "scan", " read "}})
	require.NoError(t, err)
	require.Equal(t, "API Token", issued.Record.Name)
	require.Equal(t, []string{"scan", "read"}, issued.Record.Scopes)
}

func TestIssueRejectsNegativeExpiry(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Issue(context.Background(), IssueRequest{ExpiresInDays: intPtr(-1)})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestZeroDayTokenIsImmediatelyExpired(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return now }

	issued, err := svc.Issue(context.Background(), IssueRequest{ExpiresInDays: intPtr(0)})
	require.NoError(t, err)
	require.NotNil(t, issued.Record.ExpiresAt)
	require.True(t, issued.Record.ExpiresAt.Equal(now))
	require.False(t, IsValid(issued.Record, now))

	_, err = svc.Validate(context.Background(), issued.Secret, "")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestRevokeTwiceReportsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	issued, err := svc.Issue(ctx, IssueRequest{Name: "agent"})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, issued.Record.ID))
	require.ErrorIs(t, svc.Revoke(ctx, issued.Record.ID), apperr.ErrNotFound)

	_, err = svc.Validate(ctx, issued.Secret, "")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestListRedactsDigest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		_, err := svc.Issue(ctx, IssueRequest{Name: name})
		require.NoError(t, err)
	}
	recs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, name := range []string{"a", "b", "c"} {
		require.Equal(t, name, recs[i].Name)
		require.Empty(t, recs[i].Digest)
	}
}

func TestValidateChecksScopeAndTouchesLastUsed(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	issued, err := svc.Issue(ctx, IssueRequest{Scopes: []string{"read"}})
	require.NoError(t, err)

	rec, err := svc.Validate(ctx, issued.Secret, "read")
	require.NoError(t, err)
	require.NotNil(t, rec.LastUsed)

	stored, err := store.Get(ctx, issued.Record.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsed)

	_, err = svc.Validate(ctx, issued.Secret, "scan")
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Validate(ctx, issued.Record.Prefix, "")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestPepperedHasherDiffersFromPlain(t *testing.T) {
	plain := NewHasher(nil).Digest("opt_abc")
	peppered := NewHasher([]byte("pepper")).Digest("opt_abc")
	require.Len(t, plain, 64)
	require.Len(t, peppered, 64)
	require.NotEqual(t, plain, peppered)
}

func TestConcurrentIssue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Issue(ctx, IssueRequest{})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	recs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 50)
}
