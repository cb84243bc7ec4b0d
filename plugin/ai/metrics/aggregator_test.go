package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_RecordAndStats(t *testing.T) {
	a := NewAggregator()

	a.RecordRoute("rule", "DIRECT_EXECUTE", 5*time.Millisecond, true)
	a.RecordRoute("rule", "DIRECT_EXECUTE", 7*time.Millisecond, true)
	a.RecordRoute("vector", "DIRECT_EXECUTE", 40*time.Millisecond, true)
	a.RecordRoute("llm", "NEED_FULL_LLM", 900*time.Millisecond, false)

	stats := a.GetCurrentStats()
	assert.Equal(t, int64(4), stats.RequestCount)
	assert.Equal(t, int64(3), stats.SuccessCount)

	require.Contains(t, stats.MethodStats, "rule")
	assert.Equal(t, int64(2), stats.MethodStats["rule"].Count)
	assert.InDelta(t, 1.0, float64(stats.MethodStats["rule"].SuccessRate), 1e-6)
	assert.Equal(t, 6*time.Millisecond, stats.MethodStats["rule"].AvgLatency)

	require.Contains(t, stats.MethodStats, "llm")
	assert.Zero(t, float64(stats.MethodStats["llm"].SuccessRate))

	require.Contains(t, stats.TierStats, "DIRECT_EXECUTE")
	assert.Equal(t, int64(3), stats.TierStats["DIRECT_EXECUTE"].Count)
}

func TestAggregator_Percentiles(t *testing.T) {
	a := NewAggregator()
	for i := 1; i <= 100; i++ {
		a.RecordRoute("vector", "DIRECT_EXECUTE", time.Duration(i)*time.Millisecond, true)
	}

	stats := a.GetCurrentStats()
	assert.Equal(t, 50*time.Millisecond, stats.LatencyP50)
	assert.Equal(t, 95*time.Millisecond, stats.LatencyP95)
}

func TestAggregator_Evict(t *testing.T) {
	a := NewAggregator()
	a.RecordRoute("rule", "DIRECT_EXECUTE", time.Millisecond, true)

	// Nothing is older than one hour ago.
	assert.Zero(t, a.Evict(time.Now().Add(-time.Hour)))

	// Everything is older than one hour from now.
	removed := a.Evict(time.Now().Add(time.Hour))
	assert.Equal(t, 1, removed)
	assert.Zero(t, a.GetCurrentStats().RequestCount)
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 50))
	assert.Equal(t, int64(3), percentile([]int64{3}, 95))
	assert.Equal(t, int64(2), percentile([]int64{2, 1, 3}, 50))
}

func TestService_RecordsThroughAggregator(t *testing.T) {
	s := NewService(24 * time.Hour)
	defer s.Close()

	s.RecordRoute("agentic", "NEED_FULL_LLM", 10*time.Millisecond, true)
	stats := s.GetStats()
	require.NotNil(t, stats)
	assert.Equal(t, int64(1), stats.RequestCount)
	assert.Contains(t, stats.MethodStats, "agentic")
}
