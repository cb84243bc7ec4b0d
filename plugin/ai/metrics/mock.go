package metrics

import (
	"sync"
	"time"
)

// MockMetricsService is a mock implementation of MetricsService for testing.
type MockMetricsService struct {
	mu     sync.RWMutex
	routes []routeRecord
}

type routeRecord struct {
	Method  string
	Tier    string
	Latency time.Duration
	Success bool
}

// NewMockMetricsService creates a new MockMetricsService.
func NewMockMetricsService() *MockMetricsService {
	return &MockMetricsService{routes: make([]routeRecord, 0)}
}

// RecordRoute records a resolution outcome.
func (m *MockMetricsService) RecordRoute(method, tier string, latency time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, routeRecord{
		Method:  method,
		Tier:    tier,
		Latency: latency,
		Success: success,
	})
}

// GetStats retrieves statistics over everything recorded.
func (m *MockMetricsService) GetStats() *RoutingMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &RoutingMetrics{
		MethodStats: make(map[string]*LayerStat),
		TierStats:   make(map[string]*LayerStat),
	}
	latencies := make([]int64, 0, len(m.routes))
	for _, r := range m.routes {
		stats.RequestCount++
		if r.Success {
			stats.SuccessCount++
		}
		latencies = append(latencies, r.Latency.Milliseconds())
		for key, out := range map[string]map[string]*LayerStat{
			r.Method: stats.MethodStats,
			r.Tier:   stats.TierStats,
		} {
			if key == "" {
				continue
			}
			if _, ok := out[key]; !ok {
				out[key] = &LayerStat{}
			}
			out[key].Count++
		}
	}
	stats.LatencyP50 = time.Duration(percentile(latencies, 50)) * time.Millisecond
	stats.LatencyP95 = time.Duration(percentile(latencies, 95)) * time.Millisecond
	return stats
}

// RouteCount returns how many routes were recorded (for testing).
func (m *MockMetricsService) RouteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.routes)
}

// Clear removes all recorded metrics (for testing).
func (m *MockMetricsService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = make([]routeRecord, 0)
}

var _ MetricsService = (*MockMetricsService)(nil)
