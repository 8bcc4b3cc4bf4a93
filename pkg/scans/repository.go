package scans

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
)

const (
	DefaultCapacity = 1000
	DefaultLimit    = 50
)

// Filter narrows a history query. Target matches as a substring, AgentID exactly.
// A nil Limit means DefaultLimit; zero yields an empty page.
type Filter struct {
	Target  string
	AgentID string
	Limit   *int
}

type Page struct {
	Scans []Record `json:"scans"`
	Count int      `json:"count"`
	Total int      `json:"total"`
}

type Stats struct {
	Scans          int            `json:"scans"`
	Findings       Summary        `json:"findings"`
	Agents         int            `json:"agents"`
	Targets        int            `json:"targets"`
	ScansByAgent   map[string]int `json:"scans_by_agent"`
	LatestReceived *time.Time     `json:"latest_received_at,omitempty"`
}

// Repository is the ingestion front of the scan history.
type Repository struct {
	store    Store
	capacity int
	now      func() time.Time
}

func NewRepository(store Store, capacity int) *Repository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Repository{store: store, capacity: capacity, now: time.Now}
}

func (r *Repository) Capacity() int { return r.capacity }

// Ingest normalizes p and appends it, evicting the oldest records beyond capacity.
func (r *Repository) Ingest(ctx context.Context, p Payload) (Record, error) {
	rec, err := normalize(p, r.now().UTC())
	if err != nil {
		return Record{}, err
	}
	evicted, err := r.store.Append(ctx, rec, r.capacity)
	if err != nil {
		return Record{}, apperr.Internal("failed to store scan", err)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("scan.id", rec.ScanID),
		attribute.String("scan.agent_id", rec.AgentID),
		attribute.Int("scan.findings", rec.Summary.Total),
		attribute.Int("scan.evicted", evicted),
	)
	return rec, nil
}

// Query returns matching scans newest first. Records with equal timestamps
// keep insertion order.
func (r *Repository) Query(ctx context.Context, f Filter) (Page, error) {
	limit := DefaultLimit
	if f.Limit != nil {
		if *f.Limit < 0 {
			return Page{}, apperr.Validation("limit must not be negative")
		}
		limit = *f.Limit
	}

	all, err := r.store.List(ctx)
	if err != nil {
		return Page{}, apperr.Internal("failed to list scans", err)
	}

	matched := make([]Record, 0, len(all))
	for _, rec := range all {
		if f.Target != "" && !strings.Contains(rec.Target, f.Target) {
			continue
		}
		if f.AgentID != "" && rec.AgentID != f.AgentID {
			continue
		}
		matched = append(matched, rec)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return Page{Scans: matched, Count: len(matched), Total: len(all)}, nil
}

// Get returns the most recently ingested record with scanID.
func (r *Repository) Get(ctx context.Context, scanID string) (Record, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return Record{}, apperr.Internal("failed to list scans", err)
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].ScanID == scanID {
			return all[i], nil
		}
	}
	return Record{}, apperr.NotFound("scan %s not found", scanID)
}

func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return Stats{}, apperr.Internal("failed to list scans", err)
	}
	st := Stats{Scans: len(all), ScansByAgent: map[string]int{}}
	targets := map[string]struct{}{}
	for _, rec := range all {
		st.Findings.Add(rec.Summary)
		st.ScansByAgent[rec.AgentID]++
		targets[rec.Target] = struct{}{}
		if st.LatestReceived == nil || rec.ReceivedAt.After(*st.LatestReceived) {
			at := rec.ReceivedAt
			st.LatestReceived = &at
		}
	}
	st.Agents = len(st.ScansByAgent)
	st.Targets = len(targets)
	return st, nil
}
