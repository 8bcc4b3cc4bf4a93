package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/optimal-cyber/launchpad-sub001/pkg/agents"
	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
	"github.com/optimal-cyber/launchpad-sub001/pkg/tokens"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:storage-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := Open(DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "")
	require.Error(t, err)
}

func TestTokenStoreWithService(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore(newTestDB(t))
	svc := tokens.NewService(store, tokens.NewHasher(nil))

	issued, err := svc.Issue(ctx, tokens.IssueRequest{Name: "ci", Scopes: []string{tokens.ScopeScan}})
	require.NoError(t, err)
	second, err := svc.Issue(ctx, tokens.IssueRequest{Name: "dashboard"})
	require.NoError(t, err)

	rec, err := store.FindByDigest(ctx, tokens.NewHasher(nil).Digest(issued.Secret))
	require.NoError(t, err)
	require.Equal(t, issued.Record.ID, rec.ID)
	require.Equal(t, []string{tokens.ScopeScan}, rec.Scopes)

	validated, err := svc.Validate(ctx, issued.Secret, tokens.ScopeScan)
	require.NoError(t, err)
	require.Equal(t, "ci", validated.Name)

	rec, err = store.Get(ctx, issued.Record.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.LastUsed)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, issued.Record.ID, list[0].ID)
	require.Equal(t, second.Record.ID, list[1].ID)

	require.NoError(t, svc.Revoke(ctx, issued.Record.ID))
	require.ErrorIs(t, svc.Revoke(ctx, issued.Record.ID), apperr.ErrNotFound)
	_, err = svc.Validate(ctx, issued.Secret, tokens.ScopeScan)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.ErrorIs(t, store.TouchLastUsed(ctx, "missing", time.Now()), apperr.ErrNotFound)
}

func TestAgentStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewAgentStore(newTestDB(t))
	reg := agents.NewRegistry(store)

	first, err := reg.Register(ctx, agents.Registration{AgentID: "agent-1", Hostname: "alpha", Capabilities: []string{"grype"}})
	require.NoError(t, err)
	_, err = reg.Register(ctx, agents.Registration{AgentID: "agent-2", Hostname: "gamma"})
	require.NoError(t, err)
	_, err = reg.Register(ctx, agents.Registration{AgentID: "agent-1", Hostname: "beta"})
	require.NoError(t, err)

	list, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "agent-1", list[0].AgentID)
	require.Equal(t, "beta", list[0].Hostname)
	require.Empty(t, list[0].Capabilities)
	require.True(t, list[0].RegisteredAt.Equal(first.RegisteredAt))

	_, err = store.Get(ctx, "ghost")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestScanStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewScanStore(newTestDB(t))
	repo := scans.NewRepository(store, 3)

	for i := 0; i < 5; i++ {
		_, err := repo.Ingest(ctx, scans.Payload{
			ScanID:   fmt.Sprintf("s%d", i),
			Target:   "registry.local/app:1",
			Findings: []scans.Finding{{VulnID: "CVE-2024-0001", Severity: "high"}},
			Metadata: map[string]any{"pipeline": "main"},
		})
		require.NoError(t, err)
	}

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "s2", all[0].ScanID)
	require.Equal(t, "s4", all[2].ScanID)
	require.Equal(t, scans.Summary{High: 1, Total: 1}, all[0].Summary)
	require.Equal(t, "CVE-2024-0001", all[0].Findings[0].VulnID)
	require.Equal(t, "main", all[0].Metadata["pipeline"])
	require.Equal(t, "app", all[0].Project.Name)

	page, err := repo.Query(ctx, scans.Filter{Target: "app"})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
}
