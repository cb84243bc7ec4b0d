package metrics

import (
	"time"
)

// Service implements MetricsService over the in-memory aggregator. Buckets
// older than the retention window are evicted by a background loop.
type Service struct {
	aggregator *Aggregator
	retention  time.Duration
	done       chan struct{}
}

// NewService creates a new metrics service. retention bounds how long
// samples stay in memory; zero means 24 hours.
func NewService(retention time.Duration) *Service {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	svc := &Service{
		aggregator: NewAggregator(),
		retention:  retention,
		done:       make(chan struct{}),
	}
	go svc.evictLoop()
	return svc
}

// Close stops the eviction loop.
func (s *Service) Close() {
	close(s.done)
}

// RecordRoute records a resolution outcome.
func (s *Service) RecordRoute(method, tier string, latency time.Duration, success bool) {
	s.aggregator.RecordRoute(method, tier, latency, success)
}

// GetStats returns aggregated statistics over the retention window.
func (s *Service) GetStats() *RoutingMetrics {
	return s.aggregator.GetCurrentStats()
}

func (s *Service) evictLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.aggregator.Evict(truncateToHour(time.Now().Add(-s.retention)))
		case <-s.done:
			return
		}
	}
}

var _ MetricsService = (*Service)(nil)
