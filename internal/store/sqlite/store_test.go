package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"agent_catalog/internal/catalog"
	"agent_catalog/internal/domain"
	"agent_catalog/internal/telemetry"
)

var (
	_ catalog.Persister   = (*Store)(nil)
	_ telemetry.Persister = (*Store)(nil)
)

func TestAgentsRoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	agents := []domain.Agent{
		{ID: "z1", Name: "Zed", Division: "Zeta", Role: "Closer", Responsibilities: []string{"close"}, SLA: "1h"},
		{ID: "a1", Name: "Ace", Division: "Alpha", Inputs: []string{"leads"}, RunbookSummary: "call first", Owner: "sales@example.com"},
	}
	if err := store.SaveAgents(ctx, agents); err != nil {
		t.Fatalf("save agents: %v", err)
	}
	got, err := store.LoadAgents(ctx)
	if err != nil {
		t.Fatalf("load agents: %v", err)
	}
	if len(got) != 2 || got[0].ID != "z1" || got[1].ID != "a1" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if !reflect.DeepEqual(got[0].Responsibilities, []string{"close"}) {
		t.Fatalf("responsibilities = %v", got[0].Responsibilities)
	}
	if got[1].RunbookSummary != "call first" || got[1].Owner != "sales@example.com" {
		t.Fatalf("optional fields lost: %+v", got[1])
	}
	if got[1].Responsibilities == nil || len(got[1].Responsibilities) != 0 {
		t.Fatalf("expected empty responsibilities, got %v", got[1].Responsibilities)
	}

	if err := store.SaveAgents(ctx, agents[1:]); err != nil {
		t.Fatalf("rewrite agents: %v", err)
	}
	got, err = store.LoadAgents(ctx)
	if err != nil {
		t.Fatalf("reload agents: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("whole-document rewrite failed: %+v", got)
	}
}

func TestSaveAgentsRollsBackOnDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if err := store.SaveAgents(ctx, []domain.Agent{{ID: "a", Name: "A", Division: "D"}}); err != nil {
		t.Fatalf("save agents: %v", err)
	}
	err := store.SaveAgents(ctx, []domain.Agent{
		{ID: "b", Name: "B", Division: "D"},
		{ID: "b", Name: "B2", Division: "D"},
	})
	if err == nil {
		t.Fatalf("expected duplicate id error")
	}
	got, err := store.LoadAgents(ctx)
	if err != nil {
		t.Fatalf("load agents: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected previous document to survive, got %+v", got)
	}
}

func TestLogsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	ts := time.Date(2025, 10, 6, 10, 1, 5, 123_000_000, time.UTC)
	logs := []domain.LogEntry{
		{Timestamp: ts, AgentID: "a", AgentName: "A", UserMessage: "hi", AIResponse: "hello", LatencyMS: 42},
		{Timestamp: ts.Add(time.Second), AgentID: "b", AgentName: "B", UserMessage: "q", AIResponse: "r", LatencyMS: 7},
	}
	if err := store.SaveLogs(ctx, logs); err != nil {
		t.Fatalf("save logs: %v", err)
	}
	got, err := store.LoadLogs(ctx)
	if err != nil {
		t.Fatalf("load logs: %v", err)
	}
	if !reflect.DeepEqual(got, logs) {
		t.Fatalf("logs mismatch:\n got %+v\nwant %+v", got, logs)
	}
}

func TestStatsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	empty, err := store.LoadStats(ctx)
	if err != nil {
		t.Fatalf("load empty stats: %v", err)
	}
	if empty.TotalRequests != 0 || len(empty.ResponseTimes) != 0 {
		t.Fatalf("expected zero stats, got %+v", empty)
	}

	for _, stats := range []domain.Stats{
		{ResponseTimes: []int64{10, 20}, TotalRequests: 2},
		{ResponseTimes: []int64{20, 30}, TotalRequests: 3},
	} {
		if err := store.SaveStats(ctx, stats); err != nil {
			t.Fatalf("save stats: %v", err)
		}
	}
	got, err := store.LoadStats(ctx)
	if err != nil {
		t.Fatalf("load stats: %v", err)
	}
	if !reflect.DeepEqual(got, domain.Stats{ResponseTimes: []int64{20, 30}, TotalRequests: 3}) {
		t.Fatalf("stats = %+v", got)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		t.Fatalf("migrate store: %v", err)
	}
	return store
}
