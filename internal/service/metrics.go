package service

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics implements the domain.Metrics interface for dispatches
type Metrics struct {
	totalRequests  int64
	totalErrors    int64
	unknownTargets int64
	startTime      time.Time

	backendMetrics map[string]*BackendMetrics
	latencyBuckets map[string]*LatencyBuckets
	mu             sync.RWMutex
}

// BackendMetrics holds dispatch metrics for a single backend name
type BackendMetrics struct {
	Requests     int64     `json:"requests"`
	Errors       int64     `json:"errors"`
	TotalLatency int64     `json:"total_latency_us"`
	MinLatency   int64     `json:"min_latency_us"`
	MaxLatency   int64     `json:"max_latency_us"`
	LastRequest  time.Time `json:"last_request"`
}

// LatencyBuckets holds the latency distribution of a backend
type LatencyBuckets struct {
	Under1ms    int64 `json:"under_1ms"`
	Under10ms   int64 `json:"under_10ms"`
	Under100ms  int64 `json:"under_100ms"`
	Under1000ms int64 `json:"under_1000ms"`
	Over1000ms  int64 `json:"over_1000ms"`
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		startTime:      time.Now(),
		backendMetrics: make(map[string]*BackendMetrics),
		latencyBuckets: make(map[string]*LatencyBuckets),
	}
}

// backendLocked returns the metrics of backend, creating them if needed.
// Callers hold mu for writing.
func (m *Metrics) backendLocked(backend string) *BackendMetrics {
	bm := m.backendMetrics[backend]
	if bm == nil {
		bm = &BackendMetrics{MinLatency: -1}
		m.backendMetrics[backend] = bm
		m.latencyBuckets[backend] = &LatencyBuckets{}
	}
	return bm
}

// IncrementRequests increments the request count for a backend
func (m *Metrics) IncrementRequests(backend string) {
	atomic.AddInt64(&m.totalRequests, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	bm := m.backendLocked(backend)
	bm.Requests++
	bm.LastRequest = time.Now()
}

// IncrementErrors increments the error count for a backend
func (m *Metrics) IncrementErrors(backend string) {
	atomic.AddInt64(&m.totalErrors, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.backendLocked(backend).Errors++
}

// IncrementUnknownTargets counts dispatches rejected before reaching a backend
func (m *Metrics) IncrementUnknownTargets() {
	atomic.AddInt64(&m.unknownTargets, 1)
}

// RecordLatency records dispatch latency for a backend
func (m *Metrics) RecordLatency(backend string, duration time.Duration) {
	us := duration.Microseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	bm := m.backendLocked(backend)
	bm.TotalLatency += us
	if bm.MinLatency < 0 || us < bm.MinLatency {
		bm.MinLatency = us
	}
	if us > bm.MaxLatency {
		bm.MaxLatency = us
	}

	buckets := m.latencyBuckets[backend]
	switch {
	case duration < time.Millisecond:
		buckets.Under1ms++
	case duration < 10*time.Millisecond:
		buckets.Under10ms++
	case duration < 100*time.Millisecond:
		buckets.Under100ms++
	case duration < time.Second:
		buckets.Under1000ms++
	default:
		buckets.Over1000ms++
	}
}

// GetStats returns current statistics
func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalRequests := atomic.LoadInt64(&m.totalRequests)
	totalErrors := atomic.LoadInt64(&m.totalErrors)

	backendStats := make(map[string]interface{}, len(m.backendMetrics))
	for name := range m.backendMetrics {
		backendStats[name] = m.backendStatsLocked(name)
	}

	return map[string]interface{}{
		"total_requests":       totalRequests,
		"total_errors":         totalErrors,
		"unknown_targets":      atomic.LoadInt64(&m.unknownTargets),
		"overall_success_rate": successRate(totalRequests, totalErrors),
		"backends":             backendStats,
		"uptime":               time.Since(m.startTime).String(),
	}
}

// GetBackendStats returns statistics for a specific backend
func (m *Metrics) GetBackendStats(backend string) map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, exists := m.backendMetrics[backend]; !exists {
		return map[string]interface{}{
			"requests":       int64(0),
			"errors":         int64(0),
			"success_rate":   0.0,
			"avg_latency_us": 0.0,
		}
	}
	return m.backendStatsLocked(backend)
}

func (m *Metrics) backendStatsLocked(backend string) map[string]interface{} {
	bm := m.backendMetrics[backend]

	var avgLatency float64
	if bm.Requests > 0 {
		avgLatency = float64(bm.TotalLatency) / float64(bm.Requests)
	}
	minLatency := bm.MinLatency
	if minLatency < 0 {
		minLatency = 0
	}

	return map[string]interface{}{
		"requests":             bm.Requests,
		"errors":               bm.Errors,
		"success_rate":         successRate(bm.Requests, bm.Errors),
		"avg_latency_us":       avgLatency,
		"min_latency_us":       minLatency,
		"max_latency_us":       bm.MaxLatency,
		"last_request":         bm.LastRequest,
		"latency_distribution": *m.latencyBuckets[backend],
	}
}

// GetTotalRequests returns the total number of dispatches that reached a backend
func (m *Metrics) GetTotalRequests() int64 {
	return atomic.LoadInt64(&m.totalRequests)
}

// GetTotalErrors returns the total number of failed dispatches
func (m *Metrics) GetTotalErrors() int64 {
	return atomic.LoadInt64(&m.totalErrors)
}

// GetUnknownTargets returns how many dispatches named an unregistered target
func (m *Metrics) GetUnknownTargets() int64 {
	return atomic.LoadInt64(&m.unknownTargets)
}

// Reset clears all metrics
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	atomic.StoreInt64(&m.totalRequests, 0)
	atomic.StoreInt64(&m.totalErrors, 0)
	atomic.StoreInt64(&m.unknownTargets, 0)
	m.backendMetrics = make(map[string]*BackendMetrics)
	m.latencyBuckets = make(map[string]*LatencyBuckets)
}

func successRate(requests, errors int64) float64 {
	if requests == 0 {
		return 0
	}
	return float64(requests-errors) / float64(requests) * 100
}
