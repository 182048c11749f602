package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rivo/tview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent_catalog/internal/domain"
)

var sampleAgents = []domain.Agent{
	{ID: "a", Name: "Lead Qualifier", Role: "Scores inbound leads", Division: "Sales"},
	{ID: "b", Name: "Deal Closer", Role: "Negotiates contracts", Division: "Sales"},
	{ID: "c", Name: "Incident Commander", Role: "Runs outages", Division: "Ops"},
}

func TestFilterAgents(t *testing.T) {
	assert.Equal(t, sampleAgents, filterAgents(sampleAgents, "  "))

	got := filterAgents(sampleAgents, "incmd")
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	got = filterAgents(sampleAgents, "sales")
	assert.Len(t, got, 2)

	assert.Empty(t, filterAgents(sampleAgents, "zzzz"))
}

func TestHistoryDropsFailedLines(t *testing.T) {
	lines := []chatLine{
		{turn: domain.Turn{Role: domain.TurnRoleUser, Text: "first"}},
		errorLine(errors.New("quota exceeded")),
		{turn: domain.Turn{Role: domain.TurnRoleUser, Text: "retry"}},
	}
	turns := history(lines)
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Text)
	assert.Equal(t, "retry", turns[1].Text)
	assert.Equal(t, "error: quota exceeded", lines[1].turn.Text)
}

func TestRenderLogsNewestFirst(t *testing.T) {
	assert.Equal(t, "No interactions", renderLogs(nil))

	base := time.Date(2025, 10, 6, 10, 0, 0, 0, time.UTC)
	out := renderLogs([]domain.LogEntry{
		{Timestamp: base, AgentName: "Older", UserMessage: "q1", AIResponse: "r1", LatencyMS: 10},
		{Timestamp: base.Add(time.Minute), AgentName: "Newer", UserMessage: "q2", AIResponse: "r2", LatencyMS: 20},
	})
	assert.Less(t, strings.Index(out, "Newer"), strings.Index(out, "Older"))
	assert.Contains(t, out, "20ms")
}

func TestRenderStats(t *testing.T) {
	assert.Contains(t, renderStats(domain.StatsSummary{}, domain.Stats{}), "No samples")

	out := renderStats(
		domain.StatsSummary{AverageLatencyMS: 20, WindowSize: 3, TotalRequests: 7},
		domain.Stats{ResponseTimes: []int64{0, 20, 40}, TotalRequests: 7},
	)
	assert.Contains(t, out, "requests=7")
	assert.Contains(t, out, "last=40ms")
	assert.Contains(t, out, "peak=40ms")
	assert.True(t, strings.HasSuffix(out, "▁▄█"), out)
}

func TestRenderConversation(t *testing.T) {
	assert.Contains(t, renderConversation(nil, nil), "Select an agent")

	agent := sampleAgents[0]
	out := renderConversation(&agent, []chatLine{
		{turn: domain.Turn{Role: domain.TurnRoleUser, Text: "score this [lead]"}},
		replyLine(domain.Reply{
			Kind:      domain.ReplyKindStructured,
			Text:      "Scored 82.",
			Reasoning: "BANT",
			Actions:   []domain.Action{{Tool: "analyze_data", Input: "crm", Status: "Executing..."}},
			Artifacts: []domain.Artifact{{Type: "document", Title: "Lead score"}},
		}),
		errorLine(errors.New("upstream http error: status 502 (Bad Gateway)")),
	})
	assert.Contains(t, out, "you:[-] score this "+tview.Escape("[lead]"))
	assert.Contains(t, out, "Scored 82.")
	assert.Contains(t, out, "thought: BANT")
	assert.Contains(t, out, "action analyze_data(crm)")
	assert.Contains(t, out, "artifact [document] Lead score")
	assert.Contains(t, out, "[red]error: upstream http error: status 502 (Bad Gateway)[-]")
}

func TestRenderTrace(t *testing.T) {
	assert.Equal(t, "No simulation trace", renderTrace(nil))
	out := renderTrace([]domain.TraceStep{{Timestamp: "10:00:01", Title: "Lead received"}})
	assert.Contains(t, out, "10:00:01  Lead received")
}

func TestTrimLine(t *testing.T) {
	assert.Equal(t, "short", trimLine("short", 10))
	assert.Equal(t, "a b", trimLine("a\nb", 10))
	assert.Equal(t, "abcdefg...", trimLine("abcdefghijklmnop", 10))
}
