package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"agent_catalog/internal/domain"
)

type Ecosystem struct {
	Name             string                        `json:"ecosystem" yaml:"ecosystem"`
	Version          string                        `json:"version" yaml:"version"`
	GeneratedAt      string                        `json:"generated_at" yaml:"generated_at"`
	Summary          Summary                       `json:"summary" yaml:"summary"`
	Divisions        Divisions                     `json:"divisions" yaml:"divisions"`
	Notes            Notes                         `json:"notes" yaml:"notes"`
	SimulationTraces map[string][]domain.TraceStep `json:"simulation_traces,omitempty" yaml:"simulation_traces,omitempty"`
}

type Summary struct {
	TotalDivisions    int    `json:"total_divisions" yaml:"total_divisions"`
	ApproxTotalAgents int    `json:"approx_total_agents" yaml:"approx_total_agents"`
	Note              string `json:"note" yaml:"note"`
}

type Notes struct {
	HowToConsume         string   `json:"how_to_consume" yaml:"how_to_consume"`
	NextStepsSuggestions []string `json:"next_steps_suggestions" yaml:"next_steps_suggestions"`
}

type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONC Format = "jsonc"
	FormatYAML  Format = "yaml"
)

func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".jsonc":
		return FormatJSONC, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported ecosystem file extension %q", filepath.Ext(path))
	}
}

func ReadEcosystem(path string) (Ecosystem, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return Ecosystem{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Ecosystem{}, fmt.Errorf("read ecosystem %s: %w", path, err)
	}
	eco, err := DecodeEcosystem(data, format)
	if err != nil {
		return Ecosystem{}, fmt.Errorf("decode ecosystem %s: %w", path, err)
	}
	return eco, nil
}

func DecodeEcosystem(data []byte, format Format) (Ecosystem, error) {
	var eco Ecosystem
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &eco); err != nil {
			return Ecosystem{}, err
		}
	case FormatJSONC:
		if err := json.Unmarshal(jsonc.ToJSON(data), &eco); err != nil {
			return Ecosystem{}, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &eco); err != nil {
			return Ecosystem{}, err
		}
	default:
		return Ecosystem{}, fmt.Errorf("unsupported ecosystem format %q", format)
	}
	return eco, nil
}
