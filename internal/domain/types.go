package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type TurnRole string

const (
	TurnRoleUser  TurnRole = "user"
	TurnRoleAgent TurnRole = "agent"
)

// NormalizeTurnRole maps provider spellings ("model", "assistant") onto the
// two roles the dispatch protocol knows about. Anything that is not a user
// turn is treated as an agent turn.
func NormalizeTurnRole(role string) TurnRole {
	if strings.EqualFold(strings.TrimSpace(role), string(TurnRoleUser)) {
		return TurnRoleUser
	}
	return TurnRoleAgent
}

type ReplyKind string

const (
	ReplyKindStructured ReplyKind = "structured"
	ReplyKindPlain      ReplyKind = "plain"
)

type UserRole string

const (
	UserRoleAdmin     UserRole = "ADMIN"
	UserRoleDeveloper UserRole = "DEVELOPER"
	UserRoleViewer    UserRole = "VIEWER"
)

type Agent struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	Division         string   `json:"division" yaml:"division"`
	Role             string   `json:"role" yaml:"role"`
	Responsibilities []string `json:"responsibilities" yaml:"responsibilities"`
	Inputs           []string `json:"inputs" yaml:"inputs"`
	Outputs          []string `json:"outputs" yaml:"outputs"`
	Triggers         []string `json:"triggers" yaml:"triggers"`
	RunbookSummary   string   `json:"runbook_summary,omitempty" yaml:"runbook_summary,omitempty"`
	SLA              string   `json:"sla" yaml:"sla"`
	Owner            string   `json:"owner,omitempty" yaml:"owner,omitempty"`
}

// Clone returns a copy that shares no slices with the receiver.
func (a Agent) Clone() Agent {
	a.Responsibilities = cloneStrings(a.Responsibilities)
	a.Inputs = cloneStrings(a.Inputs)
	a.Outputs = cloneStrings(a.Outputs)
	a.Triggers = cloneStrings(a.Triggers)
	return a
}

// AgentPatch carries a partial agent. Nil fields keep the stored value.
type AgentPatch struct {
	ID               *string  `json:"id,omitempty"`
	Name             *string  `json:"name,omitempty"`
	Division         *string  `json:"division,omitempty"`
	Role             *string  `json:"role,omitempty"`
	Responsibilities []string `json:"responsibilities,omitempty"`
	Inputs           []string `json:"inputs,omitempty"`
	Outputs          []string `json:"outputs,omitempty"`
	Triggers         []string `json:"triggers,omitempty"`
	RunbookSummary   *string  `json:"runbook_summary,omitempty"`
	SLA              *string  `json:"sla,omitempty"`
	Owner            *string  `json:"owner,omitempty"`
}

// Apply merges the patch into a copy of base. The id is never touched.
func (p AgentPatch) Apply(base Agent) Agent {
	out := base.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Division != nil {
		out.Division = *p.Division
	}
	if p.Role != nil {
		out.Role = *p.Role
	}
	if p.Responsibilities != nil {
		out.Responsibilities = cloneStrings(p.Responsibilities)
	}
	if p.Inputs != nil {
		out.Inputs = cloneStrings(p.Inputs)
	}
	if p.Outputs != nil {
		out.Outputs = cloneStrings(p.Outputs)
	}
	if p.Triggers != nil {
		out.Triggers = cloneStrings(p.Triggers)
	}
	if p.RunbookSummary != nil {
		out.RunbookSummary = *p.RunbookSummary
	}
	if p.SLA != nil {
		out.SLA = *p.SLA
	}
	if p.Owner != nil {
		out.Owner = *p.Owner
	}
	return out
}

type Action struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Status string `json:"status"`
}

type Artifact struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Turn struct {
	Role      TurnRole   `json:"role"`
	Text      string     `json:"text"`
	Reasoning string     `json:"thought_process,omitempty"`
	Actions   []Action   `json:"actions,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// UnmarshalJSON accepts the role spellings used by the original web client
// and tolerates a structured object in place of the text payload.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role      string          `json:"role"`
		Text      json.RawMessage `json:"text"`
		Reasoning string          `json:"thought_process"`
		Actions   []Action        `json:"actions"`
		Artifacts []Artifact      `json:"artifacts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Role = NormalizeTurnRole(raw.Role)
	t.Reasoning = raw.Reasoning
	t.Actions = raw.Actions
	t.Artifacts = raw.Artifacts
	t.Text = ""
	if len(raw.Text) == 0 || string(raw.Text) == "null" {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw.Text, &text); err == nil {
		t.Text = text
		return nil
	}
	t.Text = string(raw.Text)
	return nil
}

// Reply is the normalized result of one dispatch call. Reasoning, Actions and
// Artifacts are only populated when Kind is ReplyKindStructured.
type Reply struct {
	Kind      ReplyKind  `json:"kind"`
	Text      string     `json:"text"`
	Reasoning string     `json:"thought_process,omitempty"`
	Actions   []Action   `json:"actions,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

func (r Reply) Structured() bool {
	return r.Kind == ReplyKindStructured
}

type LogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	AgentID     string    `json:"agentId"`
	AgentName   string    `json:"agentName"`
	UserMessage string    `json:"userMessage"`
	AIResponse  string    `json:"aiResponse"`
	LatencyMS   int64     `json:"latency"`
}

type Stats struct {
	ResponseTimes []int64 `json:"responseTimes"`
	TotalRequests int64   `json:"totalRequests"`
}

type StatsSummary struct {
	AverageLatencyMS int64 `json:"averageLatencyMs"`
	WindowSize       int   `json:"windowSize"`
	TotalRequests    int64 `json:"totalRequests"`
}

type User struct {
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}

type TraceStep struct {
	Timestamp string         `json:"timestamp" yaml:"timestamp"`
	Title     string         `json:"title" yaml:"title"`
	Payload   map[string]any `json:"payload" yaml:"payload"`
}

type AgentFilter struct {
	Divisions []string `json:"divisions,omitempty"`
	Search    string   `json:"searchQuery,omitempty"`
	Page      int      `json:"page"`
	PageSize  int      `json:"limit"`
}

type AgentPage struct {
	Agents []Agent `json:"agents"`
	Total  int     `json:"total"`
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
