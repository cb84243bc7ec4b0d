// Package metrics aggregates routing metrics in memory: request counts,
// success rates and latency percentiles per resolution method and tier.
package metrics

import (
	"time"
)

// MetricsService defines the routing metrics interface.
type MetricsService interface {
	// RecordRoute records one resolution outcome. method is the pipeline
	// layer that produced the result, tier the semantic routing tier.
	RecordRoute(method, tier string, latency time.Duration, success bool)

	// GetStats returns aggregated statistics over the in-memory window.
	GetStats() *RoutingMetrics
}

// RoutingMetrics represents aggregated routing metrics.
type RoutingMetrics struct {
	RequestCount int64                 `json:"request_count"`
	SuccessCount int64                 `json:"success_count"`
	LatencyP50   time.Duration         `json:"latency_p50"`
	LatencyP95   time.Duration         `json:"latency_p95"`
	MethodStats  map[string]*LayerStat `json:"method_stats"`
	TierStats    map[string]*LayerStat `json:"tier_stats"`
}

// LayerStat represents statistics for one method or tier.
type LayerStat struct {
	Count       int64         `json:"count"`
	SuccessRate float32       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
}
