package main

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sahilm/fuzzy"

	"agent_catalog/internal/domain"
)

// chatLine is one entry of the on-screen conversation. Failed lines are
// shown to the operator but never sent back upstream as history.
type chatLine struct {
	turn   domain.Turn
	failed bool
}

func history(lines []chatLine) []domain.Turn {
	out := make([]domain.Turn, 0, len(lines))
	for _, line := range lines {
		if line.failed {
			continue
		}
		out = append(out, line.turn)
	}
	return out
}

func errorLine(err error) chatLine {
	return chatLine{
		turn:   domain.Turn{Role: domain.TurnRoleAgent, Text: "error: " + err.Error()},
		failed: true,
	}
}

func replyLine(reply domain.Reply) chatLine {
	return chatLine{turn: domain.Turn{
		Role:      domain.TurnRoleAgent,
		Text:      reply.Text,
		Reasoning: reply.Reasoning,
		Actions:   reply.Actions,
		Artifacts: reply.Artifacts,
	}}
}

// filterAgents keeps catalog order for an empty pattern and fuzzy score
// order otherwise.
func filterAgents(agents []domain.Agent, pattern string) []domain.Agent {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return agents
	}
	targets := make([]string, len(agents))
	for i, a := range agents {
		targets[i] = a.Name + " " + a.Role + " " + a.Division
	}
	matches := fuzzy.Find(pattern, targets)
	out := make([]domain.Agent, len(matches))
	for i, match := range matches {
		out[i] = agents[match.Index]
	}
	return out
}

func renderAgentsTable(table *tview.Table, agents []domain.Agent, selectedID string) {
	table.Clear()
	headers := []string{"Agent", "Division", "Role", "SLA"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, a := range agents {
		row := i + 1
		table.SetCell(row, 0, tview.NewTableCell(trimLine(a.Name, 28)))
		table.SetCell(row, 1, tview.NewTableCell(trimLine(a.Division, 20)))
		table.SetCell(row, 2, tview.NewTableCell(trimLine(a.Role, 40)))
		table.SetCell(row, 3, tview.NewTableCell(a.SLA))
		if a.ID == selectedID {
			table.Select(row, 0)
		}
	}
}

func renderStats(summary domain.StatsSummary, stats domain.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "requests=%d  avg=%dms  window=%d\n", summary.TotalRequests, summary.AverageLatencyMS, summary.WindowSize)
	if len(stats.ResponseTimes) == 0 {
		b.WriteString("No samples")
		return b.String()
	}
	var peak int64
	for _, v := range stats.ResponseTimes {
		peak = max(peak, v)
	}
	fmt.Fprintf(&b, "last=%dms  peak=%dms\n", stats.ResponseTimes[len(stats.ResponseTimes)-1], peak)
	b.WriteString(sparkline(stats.ResponseTimes, peak))
	return b.String()
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

func sparkline(values []int64, peak int64) string {
	if peak <= 0 {
		return strings.Repeat(string(sparkLevels[0]), len(values))
	}
	out := make([]rune, len(values))
	for i, v := range values {
		idx := int(v * int64(len(sparkLevels)-1) / peak)
		out[i] = sparkLevels[idx]
	}
	return string(out)
}

// renderLogs lists entries newest first; storage keeps them oldest first.
func renderLogs(entries []domain.LogEntry) string {
	if len(entries) == 0 {
		return "No interactions"
	}
	var b strings.Builder
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(&b, "[%s] %s %dms\n  > %s\n  < %s\n",
			e.Timestamp.Local().Format("15:04:05"),
			tview.Escape(e.AgentName),
			e.LatencyMS,
			tview.Escape(trimLine(e.UserMessage, 80)),
			tview.Escape(trimLine(e.AIResponse, 80)),
		)
	}
	return b.String()
}

func renderConversation(agent *domain.Agent, lines []chatLine) string {
	if agent == nil {
		return "Select an agent (Enter) to start a conversation"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]%s[::-] (%s, %s)\n\n", tview.Escape(agent.Name), tview.Escape(agent.Role), tview.Escape(agent.Division))
	for _, line := range lines {
		switch {
		case line.failed:
			fmt.Fprintf(&b, "[red]%s[-]\n", tview.Escape(line.turn.Text))
		case line.turn.Role == domain.TurnRoleUser:
			fmt.Fprintf(&b, "[yellow]you:[-] %s\n", tview.Escape(line.turn.Text))
		default:
			fmt.Fprintf(&b, "[green]%s:[-] %s\n", tview.Escape(agent.Name), tview.Escape(line.turn.Text))
			if line.turn.Reasoning != "" {
				fmt.Fprintf(&b, "  [gray]thought: %s[-]\n", tview.Escape(trimLine(line.turn.Reasoning, 160)))
			}
			for _, action := range line.turn.Actions {
				fmt.Fprintf(&b, "  action %s(%s) %s\n", tview.Escape(action.Tool), tview.Escape(trimLine(action.Input, 60)), tview.Escape(action.Status))
			}
			for _, artifact := range line.turn.Artifacts {
				fmt.Fprintf(&b, "  artifact [%s] %s\n", tview.Escape(artifact.Type), tview.Escape(artifact.Title))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderTrace(steps []domain.TraceStep) string {
	if len(steps) == 0 {
		return "No simulation trace"
	}
	var b strings.Builder
	for _, step := range steps {
		fmt.Fprintf(&b, "%s  %s\n", step.Timestamp, tview.Escape(step.Title))
	}
	return b.String()
}

func trimLine(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
