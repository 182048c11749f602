package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"agent_catalog/internal/domain"
)

// Division is one top-level entry of an ecosystem document. It holds either
// a list of agents or named subgroups, each of which holds a list.
type Division struct {
	Name      string
	Agents    []domain.Agent
	Subgroups []Division
}

// Divisions keeps document order, which is the order divisions are listed in.
type Divisions []Division

// StructureError reports a divisions document nested deeper than
// division -> subgroup -> list, or holding something other than lists.
type StructureError struct {
	Path   string
	Reason string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("catalog structure at %s: %s", e.Path, e.Reason)
}

// Flatten walks divisions in document order. Records with an empty division
// label take the top-level key. Every record must carry an id.
func Flatten(divisions Divisions) ([]domain.Agent, error) {
	out := make([]domain.Agent, 0)
	for _, div := range divisions {
		path := "divisions." + div.Name
		var err error
		if out, err = appendWithDivision(out, div.Agents, div.Name, path); err != nil {
			return nil, err
		}
		for _, sub := range div.Subgroups {
			if len(sub.Subgroups) > 0 {
				return nil, &StructureError{
					Path:   path + "." + sub.Name + "." + sub.Subgroups[0].Name,
					Reason: "nesting deeper than division and subgroup",
				}
			}
			if out, err = appendWithDivision(out, sub.Agents, div.Name, path+"."+sub.Name); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func appendWithDivision(out []domain.Agent, agents []domain.Agent, division, path string) ([]domain.Agent, error) {
	for i, agent := range agents {
		if strings.TrimSpace(agent.ID) == "" {
			return nil, &StructureError{
				Path:   fmt.Sprintf("%s[%d]", path, i),
				Reason: "agent record has no id",
			}
		}
		agent = agent.Clone()
		if strings.TrimSpace(agent.Division) == "" {
			agent.Division = division
		}
		out = append(out, agent)
	}
	return out, nil
}

func (d *Divisions) UnmarshalJSON(data []byte) error {
	parsed, err := decodeJSONDivisions(data, "divisions")
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func decodeJSONDivisions(data []byte, path string) ([]Division, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &StructureError{Path: path, Reason: "expected an object"}
	}
	out := make([]Division, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", path, key, err)
		}
		div := Division{Name: key}
		childPath := path + "." + key
		switch firstByte(raw) {
		case '[':
			if err := json.Unmarshal(raw, &div.Agents); err != nil {
				return nil, fmt.Errorf("decode %s: %w", childPath, err)
			}
		case '{':
			subs, err := decodeJSONDivisions(raw, childPath)
			if err != nil {
				return nil, err
			}
			div.Subgroups = subs
		default:
			return nil, &StructureError{Path: childPath, Reason: "expected a list of agents or an object of subgroups"}
		}
		out = append(out, div)
	}
	return out, nil
}

func firstByte(raw []byte) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func (d *Divisions) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := decodeYAMLDivisions(node, "divisions")
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func decodeYAMLDivisions(node *yaml.Node, path string) ([]Division, error) {
	if node.Kind != yaml.MappingNode {
		return nil, &StructureError{Path: path, Reason: "expected a mapping"}
	}
	out := make([]Division, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		div := Division{Name: key}
		childPath := path + "." + key
		switch value.Kind {
		case yaml.SequenceNode:
			if err := value.Decode(&div.Agents); err != nil {
				return nil, fmt.Errorf("decode %s: %w", childPath, err)
			}
		case yaml.MappingNode:
			subs, err := decodeYAMLDivisions(value, childPath)
			if err != nil {
				return nil, err
			}
			div.Subgroups = subs
		default:
			return nil, &StructureError{Path: childPath, Reason: "expected a list of agents or a mapping of subgroups"}
		}
		out = append(out, div)
	}
	return out, nil
}
