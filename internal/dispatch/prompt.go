package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"agent_catalog/internal/domain"
)

const primingPrefix = "Initialize System with the following prompt: "

const systemPromptText = `You are a high-performance, PhD-level AI Agent named {{.Name}}.
ROLE: {{.Role}}
DIVISION: {{.Division}}
RESPONSIBILITIES: {{join .Responsibilities ", "}}
{{- if .Inputs}}
INPUTS: {{join .Inputs ", "}}
{{- end}}
{{- if .Outputs}}
OUTPUTS: {{join .Outputs ", "}}
{{- end}}
{{- if .Triggers}}
TRIGGERS: {{join .Triggers ", "}}
{{- end}}
{{- if .RunbookSummary}}
RUNBOOK: {{.RunbookSummary}}
{{- end}}

CORE DIRECTIVE: You do not just talk; you EXECUTE. For every request, you must determine if an action is required to fulfill your responsibilities.
You have access to the following SYNAPTIC TOOLS:
1. web_search(query): Simulate deep-web research.
2. generate_artifact(type, title, content): Create professional deliverables (Reports, Code, Marketing Plans, etc.).
3. analyze_data(dataset): Perform complex computations or data synthesis.

RESPONSE FORMAT: You must respond in the following JSON schema:
{
  "thought_process": "Your internal PhD-level reasoning",
  "actions": [
    { "tool": "tool_name", "input": "input_value", "status": "Executing..." }
  ],
  "response_text": "Your direct answer or explanation to the user",
  "artifacts": [
    { "type": "document|code|plan", "title": "Name of artifact", "content": "Full content of the work performed" }
  ]
}

Always stay in character as a {{.Name}}.
METHODOLOGY: You must use advanced frameworks relevant to your field (e.g., SWOT for marketing, MECE for analysis, SOLID for engineering).
If a task is within your responsibilities, use the generate_artifact tool to provide a complete, ready-to-use solution.
Your tone must be authoritative, precise, and highly professional.`

var systemPrompt = template.Must(template.New("system").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(systemPromptText))

// SystemPrompt renders the persona prompt for agent.
func SystemPrompt(agent domain.Agent) (string, error) {
	var b strings.Builder
	if err := systemPrompt.Execute(&b, agent); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return b.String(), nil
}

// structuredReply is the JSON schema the model is asked to answer in.
type structuredReply struct {
	ThoughtProcess string            `json:"thought_process"`
	Actions        []domain.Action   `json:"actions"`
	ResponseText   string            `json:"response_text"`
	Artifacts      []domain.Artifact `json:"artifacts"`
}

func acknowledgement(agent domain.Agent) string {
	raw, _ := json.Marshal(structuredReply{
		ThoughtProcess: "System initialized. Neural pathways active.",
		ResponseText:   fmt.Sprintf("Agent %s is online and ready for deployment.", agent.Name),
		Actions:        []domain.Action{},
		Artifacts:      []domain.Artifact{},
	})
	return string(raw)
}

// turnText flattens a history turn to the text sent upstream. Agent turns
// that carry structured extras are re-serialized in the reply schema.
func turnText(turn domain.Turn) string {
	if turn.Role != domain.TurnRoleAgent {
		return turn.Text
	}
	if turn.Reasoning == "" && len(turn.Actions) == 0 && len(turn.Artifacts) == 0 {
		return turn.Text
	}
	raw, err := json.Marshal(structuredReply{
		ThoughtProcess: turn.Reasoning,
		Actions:        turn.Actions,
		ResponseText:   turn.Text,
		Artifacts:      turn.Artifacts,
	})
	if err != nil {
		return turn.Text
	}
	return string(raw)
}
