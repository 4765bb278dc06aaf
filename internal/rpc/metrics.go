package rpc

import (
	"sort"
	"sync"
	"time"
)

// DefaultSlowQueryThreshold flags requests slower than this for the
// slow-query log.
const DefaultSlowQueryThreshold = 100 * time.Millisecond

// SlowQueryCallback is invoked (outside the metrics lock) when a
// request exceeds the slow-query threshold.
type SlowQueryCallback func(operation string, latency time.Duration, timestamp time.Time)

// Metrics collects per-operation request counters for the daemon.
type Metrics struct {
	mu sync.RWMutex

	requestCounts  map[string]int64
	requestErrors  map[string]int64
	requestLatency map[string][]time.Duration // bounded samples per op
	maxSamples     int

	totalConns    int64
	rejectedConns int64

	slowQueryThreshold time.Duration // 0 disables detection
	slowQueryCounts    map[string]int64
	slowQueryCallback  SlowQueryCallback

	startTime time.Time
}

// NewMetrics creates a metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCounts:      make(map[string]int64),
		requestErrors:      make(map[string]int64),
		requestLatency:     make(map[string][]time.Duration),
		maxSamples:         1000,
		slowQueryCounts:    make(map[string]int64),
		slowQueryThreshold: DefaultSlowQueryThreshold,
		startTime:          time.Now(),
	}
}

// SetSlowQueryThreshold sets the slow-query cutoff; 0 disables it.
func (m *Metrics) SetSlowQueryThreshold(threshold time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slowQueryThreshold = threshold
}

// SetSlowQueryCallback sets the callback fired for each slow request.
func (m *Metrics) SetSlowQueryCallback(cb SlowQueryCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slowQueryCallback = cb
}

// RecordRequest records one completed request.
func (m *Metrics) RecordRequest(operation string, latency time.Duration, isError bool) {
	m.mu.Lock()
	m.requestCounts[operation]++
	if isError {
		m.requestErrors[operation]++
	}

	samples := m.requestLatency[operation]
	if len(samples) >= m.maxSamples {
		samples = samples[1:]
	}
	m.requestLatency[operation] = append(samples, latency)

	var cb SlowQueryCallback
	slow := m.slowQueryThreshold > 0 && latency >= m.slowQueryThreshold
	if slow {
		m.slowQueryCounts[operation]++
		cb = m.slowQueryCallback
	}
	m.mu.Unlock()

	if cb != nil {
		cb(operation, latency, time.Now())
	}
}

// RecordConnection counts an accepted connection.
func (m *Metrics) RecordConnection() {
	m.mu.Lock()
	m.totalConns++
	m.mu.Unlock()
}

// RecordRejectedConnection counts a connection refused at the limit.
func (m *Metrics) RecordRejectedConnection() {
	m.mu.Lock()
	m.rejectedConns++
	m.mu.Unlock()
}

// OperationStats summarizes one operation's request history.
type OperationStats struct {
	Count   int64   `json:"count"`
	Errors  int64   `json:"errors"`
	AvgMS   float64 `json:"avg_ms"`
	P95MS   float64 `json:"p95_ms"`
	MaxMS   float64 `json:"max_ms"`
	SlowCnt int64   `json:"slow_count,omitempty"`
}

// MetricsSnapshot is a point-in-time view of the collector.
type MetricsSnapshot struct {
	UptimeSeconds       float64                   `json:"uptime_seconds"`
	TotalRequests       int64                     `json:"total_requests"`
	TotalErrors         int64                     `json:"total_errors"`
	TotalConnections    int64                     `json:"total_connections"`
	RejectedConnections int64                     `json:"rejected_connections"`
	Operations          map[string]OperationStats `json:"operations"`
}

// Snapshot returns the current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		UptimeSeconds:       time.Since(m.startTime).Seconds(),
		TotalConnections:    m.totalConns,
		RejectedConnections: m.rejectedConns,
		Operations:          make(map[string]OperationStats, len(m.requestCounts)),
	}

	for op, count := range m.requestCounts {
		stats := OperationStats{
			Count:   count,
			Errors:  m.requestErrors[op],
			SlowCnt: m.slowQueryCounts[op],
		}
		if samples := m.requestLatency[op]; len(samples) > 0 {
			stats.AvgMS = avgMillis(samples)
			stats.P95MS = percentileMillis(samples, 0.95)
			stats.MaxMS = maxMillis(samples)
		}
		snap.Operations[op] = stats
		snap.TotalRequests += count
		snap.TotalErrors += stats.Errors
	}
	return snap
}

func avgMillis(samples []time.Duration) float64 {
	var total time.Duration
	for _, s := range samples {
		total += s
	}
	return float64(total.Microseconds()) / float64(len(samples)) / 1000
}

func maxMillis(samples []time.Duration) float64 {
	var max time.Duration
	for _, s := range samples {
		if s > max {
			max = s
		}
	}
	return float64(max.Microseconds()) / 1000
}

func percentileMillis(samples []time.Duration, p float64) float64 {
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)-1) * p)
	return float64(sorted[idx].Microseconds()) / 1000
}
