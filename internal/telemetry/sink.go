package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"agent_catalog/internal/domain"
)

const (
	LatencyWindow = 50
	LogCapacity   = 100
)

// Persister receives whole documents after each mutation.
type Persister interface {
	SaveStats(ctx context.Context, stats domain.Stats) error
	SaveLogs(ctx context.Context, logs []domain.LogEntry) error
}

// Sink keeps the rolling latency window and the interaction log. One mutex
// covers both so a Record call is observed atomically.
type Sink struct {
	mu        sync.Mutex
	latencies []int64
	total     int64
	logs      []domain.LogEntry
	persister Persister
	logger    *slog.Logger
}

func NewSink(persister Persister, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{persister: persister, logger: logger}
}

// Restore seeds the sink from persisted state. Caps are re-applied.
func (s *Sink) Restore(stats domain.Stats, logs []domain.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = keepLast(append([]int64(nil), stats.ResponseTimes...), LatencyWindow)
	s.total = stats.TotalRequests
	s.logs = keepLast(append([]domain.LogEntry(nil), logs...), LogCapacity)
}

func (s *Sink) RecordLatency(ctx context.Context, ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLatencyLocked(ms)
	s.saveStatsLocked(ctx)
}

func (s *Sink) AppendLog(ctx context.Context, entry domain.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLogLocked(entry)
	s.saveLogsLocked(ctx)
}

// Record applies the latency sample and the log entry under one lock.
func (s *Sink) Record(ctx context.Context, entry domain.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLatencyLocked(entry.LatencyMS)
	s.appendLogLocked(entry)
	s.saveStatsLocked(ctx)
	s.saveLogsLocked(ctx)
}

func (s *Sink) Stats() domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

// Logs returns the interaction log oldest first.
func (s *Sink) Logs() []domain.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

func (s *Sink) Summary() domain.StatsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := domain.StatsSummary{
		WindowSize:    len(s.latencies),
		TotalRequests: s.total,
	}
	if len(s.latencies) == 0 {
		return summary
	}
	var sum int64
	for _, v := range s.latencies {
		sum += v
	}
	summary.AverageLatencyMS = sum / int64(len(s.latencies))
	return summary
}

func (s *Sink) recordLatencyLocked(ms int64) {
	s.latencies = keepLast(append(s.latencies, ms), LatencyWindow)
	s.total++
}

func (s *Sink) appendLogLocked(entry domain.LogEntry) {
	s.logs = keepLast(append(s.logs, entry), LogCapacity)
}

func (s *Sink) statsLocked() domain.Stats {
	times := make([]int64, len(s.latencies))
	copy(times, s.latencies)
	return domain.Stats{ResponseTimes: times, TotalRequests: s.total}
}

// Persistence failures are logged; telemetry never fails a request.
func (s *Sink) saveStatsLocked(ctx context.Context) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveStats(ctx, s.statsLocked()); err != nil {
		s.logger.Error("save stats failed", "err", err)
	}
}

func (s *Sink) saveLogsLocked(ctx context.Context) {
	if s.persister == nil {
		return
	}
	logs := make([]domain.LogEntry, len(s.logs))
	copy(logs, s.logs)
	if err := s.persister.SaveLogs(ctx, logs); err != nil {
		s.logger.Error("save interaction logs failed", "err", err)
	}
}

func keepLast[T any](in []T, n int) []T {
	if len(in) <= n {
		return in
	}
	out := make([]T, n)
	copy(out, in[len(in)-n:])
	return out
}
