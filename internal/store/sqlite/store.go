package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agent_catalog/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	position INTEGER PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	division TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT '',
	responsibilities TEXT NOT NULL DEFAULT '[]',
	inputs TEXT NOT NULL DEFAULT '[]',
	outputs TEXT NOT NULL DEFAULT '[]',
	triggers TEXT NOT NULL DEFAULT '[]',
	runbook_summary TEXT NOT NULL DEFAULT '',
	sla TEXT NOT NULL DEFAULT '',
	owner TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_agents_division ON agents(division);

CREATE TABLE IF NOT EXISTS interaction_logs (
	position INTEGER PRIMARY KEY,
	created_at INTEGER NOT NULL,
	agent_id TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	user_message TEXT NOT NULL,
	ai_response TEXT NOT NULL,
	latency_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stats (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	response_times TEXT NOT NULL,
	total_requests INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store persists the catalog and telemetry documents. Every save rewrites
// the whole document inside one transaction.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) SaveAgents(ctx context.Context, agents []domain.Agent) error {
	return s.inTx(ctx, "save agents", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM agents`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO agents(
			position, id, name, division, role, responsibilities, inputs, outputs,
			triggers, runbook_summary, sla, owner
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, a := range agents {
			if _, err := stmt.ExecContext(ctx,
				i, a.ID, a.Name, a.Division, a.Role,
				encodeList(a.Responsibilities), encodeList(a.Inputs), encodeList(a.Outputs), encodeList(a.Triggers),
				a.RunbookSummary, a.SLA, a.Owner,
			); err != nil {
				return fmt.Errorf("insert agent %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) LoadAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, division, role, responsibilities, inputs,
		outputs, triggers, runbook_summary, sla, owner
		FROM agents ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Agent, 0)
	for rows.Next() {
		var a domain.Agent
		var responsibilities, inputs, outputs, triggers string
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Division, &a.Role, &responsibilities, &inputs,
			&outputs, &triggers, &a.RunbookSummary, &a.SLA, &a.Owner,
		); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		if a.Responsibilities, err = decodeList(responsibilities); err != nil {
			return nil, fmt.Errorf("decode responsibilities of %s: %w", a.ID, err)
		}
		if a.Inputs, err = decodeList(inputs); err != nil {
			return nil, fmt.Errorf("decode inputs of %s: %w", a.ID, err)
		}
		if a.Outputs, err = decodeList(outputs); err != nil {
			return nil, fmt.Errorf("decode outputs of %s: %w", a.ID, err)
		}
		if a.Triggers, err = decodeList(triggers); err != nil {
			return nil, fmt.Errorf("decode triggers of %s: %w", a.ID, err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return result, nil
}

func (s *Store) SaveLogs(ctx context.Context, logs []domain.LogEntry) error {
	return s.inTx(ctx, "save interaction logs", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM interaction_logs`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO interaction_logs(
			position, created_at, agent_id, agent_name, user_message, ai_response, latency_ms
		) VALUES(?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, entry := range logs {
			if _, err := stmt.ExecContext(ctx,
				i, entry.Timestamp.UTC().UnixMilli(), entry.AgentID, entry.AgentName,
				entry.UserMessage, entry.AIResponse, entry.LatencyMS,
			); err != nil {
				return fmt.Errorf("insert log entry: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) LoadLogs(ctx context.Context) ([]domain.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT created_at, agent_id, agent_name, user_message,
		ai_response, latency_ms FROM interaction_logs ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("list interaction logs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.LogEntry, 0)
	for rows.Next() {
		var entry domain.LogEntry
		var created int64
		if err := rows.Scan(&created, &entry.AgentID, &entry.AgentName, &entry.UserMessage,
			&entry.AIResponse, &entry.LatencyMS); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entry.Timestamp = unixMilliToTime(created)
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction logs: %w", err)
	}
	return result, nil
}

func (s *Store) SaveStats(ctx context.Context, stats domain.Stats) error {
	times := stats.ResponseTimes
	if times == nil {
		times = []int64{}
	}
	encoded, err := json.Marshal(times)
	if err != nil {
		return fmt.Errorf("encode response times: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO stats(id, response_times, total_requests, updated_at)
		VALUES(1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			response_times = excluded.response_times,
			total_requests = excluded.total_requests,
			updated_at = excluded.updated_at`,
		string(encoded), stats.TotalRequests, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

func (s *Store) LoadStats(ctx context.Context) (domain.Stats, error) {
	var encoded string
	stats := domain.Stats{ResponseTimes: []int64{}}
	err := s.db.QueryRowContext(ctx, `SELECT response_times, total_requests FROM stats WHERE id = 1`).
		Scan(&encoded, &stats.TotalRequests)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return domain.Stats{}, fmt.Errorf("load stats: %w", err)
	}
	if err := json.Unmarshal([]byte(encoded), &stats.ResponseTimes); err != nil {
		return domain.Stats{}, fmt.Errorf("decode response times: %w", err)
	}
	return stats, nil
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func encodeList(values []string) string {
	if values == nil {
		values = []string{}
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(payload)
}

func decodeList(raw string) ([]string, error) {
	out := make([]string, 0)
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func unixMilliToTime(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}
