package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestRegistry() (*Registry, *stepClock) {
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := NewRegistry(NewMemoryStore())
	reg.now = clock.now
	return reg, clock
}

func TestRegisterRequiresAgentID(t *testing.T) {
	reg, _ := newTestRegistry()
	_, err := reg.Register(context.Background(), Registration{Hostname: "h"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	recs, err := reg.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestRegisterAppliesDefaults(t *testing.T) {
	reg, _ := newTestRegistry()
	rec, err := reg.Register(context.Background(), Registration{AgentID: "agent-1"})
	require.NoError(t, err)
	require.Equal(t, "unknown", rec.Hostname)
	require.Equal(t, "unknown", rec.OS)
	require.Equal(t, "unknown", rec.OSVersion)
	require.Equal(t, "unknown", rec.ScannerType)
	require.Equal(t, "1.0.0", rec.Version)
	require.NotNil(t, rec.Capabilities)
	require.Empty(t, rec.Capabilities)
	require.Equal(t, StatusActive, rec.Status)
	require.Equal(t, rec.RegisteredAt, rec.LastHeartbeat)
}

func TestReRegisterIsLastWriteWins(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	first, err := reg.Register(ctx, Registration{AgentID: "agent-1", Hostname: "alpha", Capabilities: []string{"grype"}})
	require.NoError(t, err)
	second, err := reg.Register(ctx, Registration{AgentID: "agent-1", Hostname: "beta"})
	require.NoError(t, err)

	recs, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "beta", recs[0].Hostname)
	require.Empty(t, recs[0].Capabilities)
	require.True(t, second.LastHeartbeat.After(first.LastHeartbeat))
	require.Equal(t, first.RegisteredAt, second.RegisteredAt)
}

func TestRegisterHonoursSuppliedRegisteredAt(t *testing.T) {
	reg, _ := newTestRegistry()
	supplied := time.Date(2025, 12, 24, 8, 0, 0, 0, time.UTC)
	rec, err := reg.Register(context.Background(), Registration{AgentID: "a", RegisteredAt: &supplied})
	require.NoError(t, err)
	require.True(t, rec.RegisteredAt.Equal(supplied))
	require.True(t, rec.LastHeartbeat.After(supplied))
}

func TestRegisterDedupesCapabilities(t *testing.T) {
	reg, _ := newTestRegistry()
	rec, err := reg.Register(context.Background(), Registration{
		AgentID:      "a",
		Capabilities: []string{"grype", "trivy", "grype", " "},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"grype", "trivy"}, rec.Capabilities)
}

func TestHeartbeat(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	_, err := reg.Heartbeat(ctx, "ghost")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	first, err := reg.Register(ctx, Registration{AgentID: "a", Hostname: "alpha"})
	require.NoError(t, err)
	beat, err := reg.Heartbeat(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "alpha", beat.Hostname)
	require.True(t, beat.LastHeartbeat.After(first.LastHeartbeat))
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{Status: StatusActive, LastHeartbeat: now.Add(-10 * time.Minute)}

	require.Equal(t, StatusInactive, EffectiveStatus(rec, now, 5*time.Minute))
	require.Equal(t, StatusActive, EffectiveStatus(rec, now, 15*time.Minute))
	require.Equal(t, StatusActive, EffectiveStatus(rec, now, 0))
}
