package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"agent_catalog/internal/domain"
)

const (
	agentsFile = "agents.json"
	logsFile   = "logs.json"
	statsFile  = "stats.json"
)

// Store keeps each document in its own JSON file under root. Writes go to a
// temp file in the same directory and are renamed into place.
type Store struct {
	root string
	mu   sync.Mutex
}

func Open(root string) (*Store, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{root: absRoot}, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) SaveAgents(_ context.Context, agents []domain.Agent) error {
	if agents == nil {
		agents = []domain.Agent{}
	}
	return s.write(agentsFile, agents)
}

func (s *Store) LoadAgents(_ context.Context) ([]domain.Agent, error) {
	agents := make([]domain.Agent, 0)
	if err := s.read(agentsFile, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

func (s *Store) SaveLogs(_ context.Context, logs []domain.LogEntry) error {
	if logs == nil {
		logs = []domain.LogEntry{}
	}
	return s.write(logsFile, logs)
}

func (s *Store) LoadLogs(_ context.Context) ([]domain.LogEntry, error) {
	logs := make([]domain.LogEntry, 0)
	if err := s.read(logsFile, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) SaveStats(_ context.Context, stats domain.Stats) error {
	if stats.ResponseTimes == nil {
		stats.ResponseTimes = []int64{}
	}
	return s.write(statsFile, stats)
}

func (s *Store) LoadStats(_ context.Context) (domain.Stats, error) {
	stats := domain.Stats{ResponseTimes: []int64{}}
	if err := s.read(statsFile, &stats); err != nil {
		return domain.Stats{}, err
	}
	return stats, nil
}

func (s *Store) write(name string, v any) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// read leaves v untouched when the file does not exist yet.
func (s *Store) read(name string, v any) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	content, err := os.ReadFile(path)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Store) resolve(name string) (string, error) {
	normalized := strings.TrimSpace(name)
	if normalized == "" || normalized == "." || normalized == ".." || normalized != filepath.Base(normalized) {
		return "", fmt.Errorf("invalid document name %q", name)
	}
	abs := filepath.Clean(filepath.Join(s.root, normalized))
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", fmt.Errorf("resolve document path: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("document escapes data dir: %q", name)
	}
	return abs, nil
}
