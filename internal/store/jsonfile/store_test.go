package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent_catalog/internal/catalog"
	"agent_catalog/internal/domain"
	"agent_catalog/internal/telemetry"
)

var (
	_ catalog.Persister   = (*Store)(nil)
	_ telemetry.Persister = (*Store)(nil)
)

func TestLoadFromEmptyDir(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nested", "data"))
	require.NoError(t, err)
	ctx := context.Background()

	agents, err := s.LoadAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, agents)

	logs, err := s.LoadLogs(ctx)
	require.NoError(t, err)
	assert.Empty(t, logs)

	stats, err := s.LoadStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{ResponseTimes: []int64{}}, stats)
}

func TestRoundTripAndWireNames(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()

	agents := []domain.Agent{{ID: "a", Name: "A", Division: "D", Responsibilities: []string{}, Inputs: []string{}, Outputs: []string{}, Triggers: []string{}, RunbookSummary: "r", SLA: "1h"}}
	require.NoError(t, s.SaveAgents(ctx, agents))
	got, err := s.LoadAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, agents, got)

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	logs := []domain.LogEntry{{Timestamp: ts, AgentID: "a", AgentName: "A", UserMessage: "u", AIResponse: "r", LatencyMS: 9}}
	require.NoError(t, s.SaveLogs(ctx, logs))
	gotLogs, err := s.LoadLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, logs, gotLogs)

	require.NoError(t, s.SaveStats(ctx, domain.Stats{ResponseTimes: []int64{9}, TotalRequests: 1}))

	raw, err := os.ReadFile(filepath.Join(dir, "logs.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"agentId": "a"`)
	assert.Contains(t, string(raw), `"latency": 9`)

	raw, err = os.ReadFile(filepath.Join(dir, "stats.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"responseTimes":[9],"totalRequests":1}`, string(raw))

	raw, err = os.ReadFile(filepath.Join(dir, "agents.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"runbook_summary": "r"`)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveStats(context.Background(), domain.Stats{TotalRequests: int64(i)}))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "stats.json", entries[0].Name())
}

func TestCorruptDocumentIsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents.json"), []byte("{not json"), 0o644))
	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.LoadAgents(context.Background())
	assert.ErrorContains(t, err, "decode agents.json")
}

func TestResolveRejectsEscapes(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"", "..", "../x.json", "sub/x.json"} {
		_, err := s.resolve(name)
		assert.Error(t, err, name)
	}
}
