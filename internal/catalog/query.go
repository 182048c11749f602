package catalog

import (
	"strings"

	"agent_catalog/internal/domain"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

type Filter = domain.AgentFilter

type Page = domain.AgentPage

// Source is the read side of the catalog that queries run against.
type Source interface {
	All() []domain.Agent
}

// Query filters and paginates the catalog. A non-blank search text takes
// precedence over the division filter. Pages past the end are empty.
func Query(src Source, filter Filter) (Page, error) {
	if filter.Page < 1 {
		return Page{}, domain.NewValidationError("page", "must be at least 1, got %d", filter.Page)
	}
	if filter.PageSize < 1 || filter.PageSize > MaxPageSize {
		return Page{}, domain.NewValidationError("limit", "must be between 1 and %d, got %d", MaxPageSize, filter.PageSize)
	}

	all := src.All()
	matched := make([]domain.Agent, 0, len(all))
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	switch {
	case search != "":
		for _, agent := range all {
			if matchesSearch(agent, search) {
				matched = append(matched, agent)
			}
		}
	case len(filter.Divisions) > 0:
		wanted := make(map[string]struct{}, len(filter.Divisions))
		for _, div := range filter.Divisions {
			wanted[div] = struct{}{}
		}
		seen := make(map[string]struct{})
		for _, agent := range all {
			if _, ok := wanted[agent.Division]; !ok {
				continue
			}
			if _, dup := seen[agent.ID]; dup {
				continue
			}
			seen[agent.ID] = struct{}{}
			matched = append(matched, agent)
		}
	default:
		matched = all
	}

	total := len(matched)
	pages := (total + filter.PageSize - 1) / filter.PageSize
	if filter.Page > pages {
		return Page{Agents: []domain.Agent{}, Total: total}, nil
	}
	start := (filter.Page - 1) * filter.PageSize
	end := min(start+filter.PageSize, total)
	return Page{Agents: matched[start:end], Total: total}, nil
}

func matchesSearch(agent domain.Agent, needle string) bool {
	if strings.Contains(strings.ToLower(agent.Name), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(agent.Role), needle) {
		return true
	}
	for _, r := range agent.Responsibilities {
		if strings.Contains(strings.ToLower(r), needle) {
			return true
		}
	}
	return false
}
