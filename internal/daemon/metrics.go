package daemon

import (
	"sort"
	"sync"
	"time"
)

// CommandRecord is a single handled IPC command
type CommandRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	LatencyMs float64   `json:"latency_ms"`
	IsError   bool      `json:"is_error"`
}

// CommandStats is the per-command aggregate
type CommandStats struct {
	Command      string  `json:"command"`
	Count        int64   `json:"count"`
	Errors       int64   `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	ErrorRate    float64 `json:"error_rate"`
}

// MetricsSummary is the aggregate view returned by the METRICS command
type MetricsSummary struct {
	TotalCommands     int64          `json:"total_commands"`
	CommandsPerSecond float64        `json:"commands_per_second"`
	AvgLatencyMs      float64        `json:"avg_latency_ms"`
	ErrorRate         float64        `json:"error_rate"`
	UptimeSeconds     int64          `json:"uptime_seconds"`
	PerCommand        []CommandStats `json:"per_command"`
}

type commandTally struct {
	count        int64
	errors       int64
	totalLatency float64
}

// CommandMetrics tracks handled IPC commands in memory: totals, a bounded
// history ring and a per-command breakdown.
type CommandMetrics struct {
	mu         sync.Mutex
	history    []CommandRecord
	maxHistory int
	perCommand map[string]*commandTally

	totalCommands  int64
	totalErrors    int64
	totalLatencyMs float64
	recent         []time.Time // for commands/sec over the last minute
	startTime      time.Time

	now func() time.Time
}

func NewCommandMetrics(maxHistory int) *CommandMetrics {
	if maxHistory <= 0 {
		maxHistory = 500
	}
	return &CommandMetrics{
		history:    make([]CommandRecord, 0, maxHistory),
		maxHistory: maxHistory,
		perCommand: make(map[string]*commandTally),
		startTime:  time.Now(),
		now:        time.Now,
	}
}

// Record tallies one handled command
func (m *CommandMetrics) Record(command string, latency time.Duration, isError bool) {
	now := m.now()
	latencyMs := float64(latency.Microseconds()) / 1000.0

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) >= m.maxHistory {
		m.history = m.history[1:]
	}
	m.history = append(m.history, CommandRecord{
		Timestamp: now,
		Command:   command,
		LatencyMs: latencyMs,
		IsError:   isError,
	})

	m.totalCommands++
	m.totalLatencyMs += latencyMs
	if isError {
		m.totalErrors++
	}

	// Keep only the last minute of timestamps for the rate calculation
	m.recent = append(m.recent, now)
	cutoff := now.Add(-time.Minute)
	trim := 0
	for trim < len(m.recent) && m.recent[trim].Before(cutoff) {
		trim++
	}
	m.recent = m.recent[trim:]

	tally, ok := m.perCommand[command]
	if !ok {
		tally = &commandTally{}
		m.perCommand[command] = tally
	}
	tally.count++
	tally.totalLatency += latencyMs
	if isError {
		tally.errors++
	}
}

// Recent returns the most recent records, newest first
func (m *CommandMetrics) Recent(count int) []CommandRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	if count <= 0 || count > len(m.history) {
		count = len(m.history)
	}
	records := make([]CommandRecord, count)
	for i := 0; i < count; i++ {
		records[i] = m.history[len(m.history)-1-i]
	}
	return records
}

// Summary returns the aggregated metrics
func (m *CommandMetrics) Summary() MetricsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-time.Minute)
	recent := 0
	for _, t := range m.recent {
		if !t.Before(cutoff) {
			recent++
		}
	}

	summary := MetricsSummary{
		TotalCommands:     m.totalCommands,
		CommandsPerSecond: float64(recent) / 60.0,
		UptimeSeconds:     int64(now.Sub(m.startTime).Seconds()),
	}
	if m.totalCommands > 0 {
		summary.AvgLatencyMs = m.totalLatencyMs / float64(m.totalCommands)
		summary.ErrorRate = float64(m.totalErrors) / float64(m.totalCommands) * 100
	}

	for command, tally := range m.perCommand {
		stats := CommandStats{
			Command: command,
			Count:   tally.count,
			Errors:  tally.errors,
		}
		if tally.count > 0 {
			stats.AvgLatencyMs = tally.totalLatency / float64(tally.count)
			stats.ErrorRate = float64(tally.errors) / float64(tally.count) * 100
		}
		summary.PerCommand = append(summary.PerCommand, stats)
	}
	// Busiest commands first
	sort.Slice(summary.PerCommand, func(i, j int) bool {
		return summary.PerCommand[i].Count > summary.PerCommand[j].Count
	})

	return summary
}
