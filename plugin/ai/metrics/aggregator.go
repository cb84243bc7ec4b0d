package metrics

import (
	"sort"
	"sync"
	"time"
)

// Aggregator aggregates routing metrics in memory, bucketed by hour so
// old samples can be evicted without locking the hot path for long.
type Aggregator struct {
	mu sync.RWMutex

	// key = "hourBucket|method|tier"
	buckets map[string]*routeBucket
}

type routeBucket struct {
	hourBucket   time.Time
	method       string
	tier         string
	requestCount int64
	successCount int64
	latencies    []int64 // in milliseconds
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		buckets: make(map[string]*routeBucket),
	}
}

// RecordRoute records a single resolution outcome.
func (a *Aggregator) RecordRoute(method, tier string, latency time.Duration, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	hourBucket := truncateToHour(time.Now())
	key := makeKey(hourBucket, method, tier)

	bucket, exists := a.buckets[key]
	if !exists {
		bucket = &routeBucket{
			hourBucket: hourBucket,
			method:     method,
			tier:       tier,
			latencies:  make([]int64, 0, 100),
		}
		a.buckets[key] = bucket
	}

	bucket.requestCount++
	if success {
		bucket.successCount++
	}
	bucket.latencies = append(bucket.latencies, latency.Milliseconds())
}

// Evict drops all buckets older than the given hour and returns how many
// were removed.
func (a *Aggregator) Evict(beforeHour time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for key, bucket := range a.buckets {
		if bucket.hourBucket.Before(beforeHour) {
			delete(a.buckets, key)
			removed++
		}
	}
	return removed
}

// GetCurrentStats returns aggregated stats across all in-memory buckets.
func (a *Aggregator) GetCurrentStats() *RoutingMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := &RoutingMetrics{
		MethodStats: make(map[string]*LayerStat),
		TierStats:   make(map[string]*LayerStat),
	}

	type layerAgg struct {
		count      int64
		success    int64
		latencySum int64
	}
	methodAggs := make(map[string]*layerAgg)
	tierAggs := make(map[string]*layerAgg)
	allLatencies := make([]int64, 0)

	for _, bucket := range a.buckets {
		stats.RequestCount += bucket.requestCount
		stats.SuccessCount += bucket.successCount
		allLatencies = append(allLatencies, bucket.latencies...)

		for _, pair := range []struct {
			key  string
			aggs map[string]*layerAgg
		}{
			{bucket.method, methodAggs},
			{bucket.tier, tierAggs},
		} {
			if pair.key == "" {
				continue
			}
			agg, exists := pair.aggs[pair.key]
			if !exists {
				agg = &layerAgg{}
				pair.aggs[pair.key] = agg
			}
			agg.count += bucket.requestCount
			agg.success += bucket.successCount
			agg.latencySum += sumLatencies(bucket.latencies)
		}
	}

	fill := func(out map[string]*LayerStat, aggs map[string]*layerAgg) {
		for key, agg := range aggs {
			stat := &LayerStat{Count: agg.count}
			if agg.count > 0 {
				stat.SuccessRate = float32(agg.success) / float32(agg.count)
				stat.AvgLatency = time.Duration(agg.latencySum/agg.count) * time.Millisecond
			}
			out[key] = stat
		}
	}
	fill(stats.MethodStats, methodAggs)
	fill(stats.TierStats, tierAggs)

	stats.LatencyP50 = time.Duration(percentile(allLatencies, 50)) * time.Millisecond
	stats.LatencyP95 = time.Duration(percentile(allLatencies, 95)) * time.Millisecond

	return stats
}

func truncateToHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

func makeKey(hourBucket time.Time, method, tier string) string {
	return hourBucket.Format(time.RFC3339) + "|" + method + "|" + tier
}

func sumLatencies(latencies []int64) int64 {
	var sum int64
	for _, l := range latencies {
		sum += l
	}
	return sum
}

func percentile(latencies []int64, p int) int64 {
	if len(latencies) == 0 {
		return 0
	}

	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}
