package rpc

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.SetSlowQueryThreshold(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		m.RecordRequest("CreateMemoryBlock", 10*time.Millisecond, false)
	}
	m.RecordRequest("CreateMemoryBlock", 100*time.Millisecond, true)
	m.RecordConnection()
	m.RecordConnection()
	m.RecordRejectedConnection()

	snap := m.Snapshot()
	if snap.TotalRequests != 4 {
		t.Errorf("total_requests = %d, want 4", snap.TotalRequests)
	}
	if snap.TotalErrors != 1 {
		t.Errorf("total_errors = %d, want 1", snap.TotalErrors)
	}
	if snap.TotalConnections != 2 || snap.RejectedConnections != 1 {
		t.Errorf("connections = %d/%d, want 2/1", snap.TotalConnections, snap.RejectedConnections)
	}

	stats, ok := snap.Operations["CreateMemoryBlock"]
	if !ok {
		t.Fatalf("operation missing from snapshot: %+v", snap.Operations)
	}
	if stats.Count != 4 || stats.Errors != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.MaxMS < 100 {
		t.Errorf("max_ms = %f, want >= 100", stats.MaxMS)
	}
	if stats.AvgMS < 10 || stats.AvgMS > 100 {
		t.Errorf("avg_ms = %f out of range", stats.AvgMS)
	}
	if stats.SlowCnt != 1 {
		t.Errorf("slow_count = %d, want 1", stats.SlowCnt)
	}
}

func TestMetricsSlowQueryCallback(t *testing.T) {
	m := NewMetrics()
	m.SetSlowQueryThreshold(20 * time.Millisecond)

	var mu sync.Mutex
	var slow []string
	m.SetSlowQueryCallback(func(op string, d time.Duration, at time.Time) {
		mu.Lock()
		slow = append(slow, op)
		mu.Unlock()
	})

	m.RecordRequest("fast_op", 5*time.Millisecond, false)
	m.RecordRequest("slow_op", 80*time.Millisecond, false)

	mu.Lock()
	defer mu.Unlock()
	if len(slow) != 1 || slow[0] != "slow_op" {
		t.Errorf("slow callbacks = %v, want [slow_op]", slow)
	}
}

func TestMetricsLatencySamplesBounded(t *testing.T) {
	m := NewMetrics()
	total := m.maxSamples + 200
	for i := 0; i < total; i++ {
		m.RecordRequest("ping", time.Millisecond, false)
	}
	snap := m.Snapshot()
	stats := snap.Operations["ping"]
	if stats.Count != int64(total) {
		t.Errorf("count = %d, want %d", stats.Count, total)
	}
	if len(m.requestLatency["ping"]) > m.maxSamples {
		t.Errorf("latency samples = %d, cap %d", len(m.requestLatency["ping"]), m.maxSamples)
	}
	if stats.AvgMS <= 0 {
		t.Errorf("avg_ms = %f, want > 0", stats.AvgMS)
	}
}
