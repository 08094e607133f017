package monitoring

import (
	"runtime"
	"sync"
	"time"

	"propcast/apperr"
	"propcast/inference"
)

// Metrics counts prediction outcomes. It implements inference.Observer.
type Metrics struct {
	mu           sync.RWMutex
	startTime    time.Time
	total        int64
	failed       int64
	byKind       map[string]int64
	byDroneType  map[string]int64
	byFamily     map[string]int64
	latencyTotal time.Duration
	latencyMax   time.Duration
	lastSuccess  time.Time
}

// Snapshot is the JSON view served by /api/metrics.
type Snapshot struct {
	Uptime          string           `json:"uptime"`
	Total           int64            `json:"total"`
	Succeeded       int64            `json:"succeeded"`
	Failed          int64            `json:"failed"`
	FailuresByKind  map[string]int64 `json:"failures_by_kind"`
	ByDroneType     map[string]int64 `json:"by_drone_type"`
	ByFamily        map[string]int64 `json:"by_family"`
	MeanLatencyMs   float64          `json:"mean_latency_ms"`
	MaxLatencyMs    float64          `json:"max_latency_ms"`
	LastPredictedAt *time.Time       `json:"last_predicted_at,omitempty"`
	Goroutines      int              `json:"goroutines"`
	HeapAllocBytes  uint64           `json:"heap_alloc_bytes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime:   time.Now(),
		byKind:      make(map[string]int64),
		byDroneType: make(map[string]int64),
		byFamily:    make(map[string]int64),
	}
}

func (m *Metrics) Observe(o inference.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.latencyTotal += o.Latency
	if o.Latency > m.latencyMax {
		m.latencyMax = o.Latency
	}
	if o.Err != nil {
		m.failed++
		m.byKind[apperr.KindOf(o.Err).String()]++
		return
	}
	m.byDroneType[string(o.Prediction.Result.DroneType)]++
	m.byFamily[string(o.Prediction.Family)]++
	m.lastSuccess = time.Now().UTC()
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(m.startTime).Round(time.Second).String(),
		Total:          m.total,
		Succeeded:      m.total - m.failed,
		Failed:         m.failed,
		FailuresByKind: copyCounts(m.byKind),
		ByDroneType:    copyCounts(m.byDroneType),
		ByFamily:       copyCounts(m.byFamily),
		MaxLatencyMs:   float64(m.latencyMax) / float64(time.Millisecond),
		Goroutines:     runtime.NumGoroutine(),
	}
	if m.total > 0 {
		s.MeanLatencyMs = float64(m.latencyTotal) / float64(m.total) / float64(time.Millisecond)
	}
	if !m.lastSuccess.IsZero() {
		last := m.lastSuccess
		s.LastPredictedAt = &last
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	s.HeapAllocBytes = mem.HeapAlloc
	return s
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
