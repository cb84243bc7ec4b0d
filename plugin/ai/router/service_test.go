package router

import (
	"context"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanbai/mescopilot/plugin/ai/agentic"
	aicache "github.com/hanbai/mescopilot/plugin/ai/cache"
	"github.com/hanbai/mescopilot/plugin/ai/fallback"
	"github.com/hanbai/mescopilot/plugin/ai/fewshot"
	"github.com/hanbai/mescopilot/plugin/ai/metrics"
	"github.com/hanbai/mescopilot/plugin/ai/semantic"
	"github.com/hanbai/mescopilot/store"
	storetest "github.com/hanbai/mescopilot/store/test"
)

type fakeSemantic struct {
	mu         sync.Mutex
	decision   semantic.Decision
	routeCalls int
	refreshed  []int64
}

func (f *fakeSemantic) Route(context.Context, int64, string, int) semantic.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routeCalls++
	return f.decision
}

func (f *fakeSemantic) Refresh(_ context.Context, tenantID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, tenantID)
	return nil
}

type fakeFallback struct {
	result        *fallback.MatchResult
	clarification string
	gotExamples   []fewshot.Example
	gotCandidates []*store.IntentDefinition
}

func (f *fakeFallback) Classify(_ context.Context, _ int64, _ string, candidates []*store.IntentDefinition, examples []fewshot.Example) *fallback.MatchResult {
	f.gotCandidates = candidates
	f.gotExamples = examples
	if f.result == nil {
		return &fallback.MatchResult{}
	}
	return f.result
}

func (f *fakeFallback) GenerateClarification(context.Context, int64, string, []*store.IntentDefinition) string {
	if f.clarification == "" {
		return "请再具体描述一下您想要执行的操作。"
	}
	return f.clarification
}

type fakeSelector struct {
	examples []fewshot.Example
	calls    int
}

func (f *fakeSelector) SelectExamples(context.Context, int64, string, int) []fewshot.Example {
	f.calls++
	return f.examples
}

func pipelineIntent(ctx context.Context, t *testing.T, ts *store.Store, code string, sensitivity store.SensitivityLevel, keywords ...string) *store.IntentDefinition {
	t.Helper()
	def, err := ts.CreateIntentDefinition(ctx, &store.IntentDefinition{
		TenantID:    1,
		Code:        code,
		Name:        code,
		Category:    "PRODUCTION",
		Description: code,
		Keywords:    keywords,
		Sensitivity: sensitivity,
		QuotaCost:   1,
		Active:      true,
	})
	require.NoError(t, err)
	return def
}

func TestService_RuleLayer(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	pipelineIntent(ctx, t, ts, "PRODUCTION_REPORT", store.SensitivityNormal, "报工")
	pipelineIntent(ctx, t, ts, "ORDER_CANCEL", store.SensitivityHigh, "取消工单")

	sem := &fakeSemantic{}
	svc := NewService(Dependencies{
		Store:    ts,
		Semantic: sem,
		Fallback: &fakeFallback{},
	}, DefaultConfig())

	t.Run("KeywordHit", func(t *testing.T) {
		resolution, err := svc.ResolveIntent(ctx, 1, "我要报工，今天300件")
		require.NoError(t, err)
		assert.True(t, resolution.Resolved())
		assert.Equal(t, "PRODUCTION_REPORT", resolution.IntentCode)
		assert.Equal(t, store.MatchMethodRule, resolution.Method)
		assert.Equal(t, semantic.TierDirectExecute, resolution.Tier)
		assert.InDelta(t, 0.95, resolution.Confidence, 1e-9)
		assert.False(t, resolution.RequiresConfirmation)
		// Layer 1 settled it; the semantic layer never ran.
		assert.Zero(t, sem.routeCalls)
	})

	t.Run("SensitiveIntentForcesConfirmation", func(t *testing.T) {
		resolution, err := svc.ResolveIntent(ctx, 1, "帮我取消工单 WO-100")
		require.NoError(t, err)
		assert.Equal(t, "ORDER_CANCEL", resolution.IntentCode)
		assert.True(t, resolution.RequiresConfirmation)
	})
}

func TestService_SemanticLayer(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	def := pipelineIntent(ctx, t, ts, "ORDER_QUERY", store.SensitivityNormal)

	sem := &fakeSemantic{
		decision: semantic.Decision{
			Tier:       semantic.TierDirectExecute,
			Best:       &semantic.Candidate{Intent: def, Score: 0.91},
			Candidates: []semantic.Candidate{{Intent: def, Score: 0.91}},
			TopScore:   0.91,
		},
	}
	svc := NewService(Dependencies{
		Store:    ts,
		Semantic: sem,
		Fallback: &fakeFallback{},
	}, DefaultConfig())

	resolution, err := svc.ResolveIntent(ctx, 1, "看看工单的情况")
	require.NoError(t, err)
	assert.Equal(t, "ORDER_QUERY", resolution.IntentCode)
	assert.Equal(t, store.MatchMethodVector, resolution.Method)
	assert.Equal(t, semantic.TierDirectExecute, resolution.Tier)
	assert.InDelta(t, 0.91, resolution.Confidence, 1e-9)
	assert.Equal(t, 1, sem.routeCalls)
}

func TestService_RerankLayer(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	def := pipelineIntent(ctx, t, ts, "ORDER_QUERY", store.SensitivityNormal)

	decision := semantic.Decision{
		Tier:       semantic.TierNeedReranking,
		Best:       &semantic.Candidate{Intent: def, Score: 0.75},
		Candidates: []semantic.Candidate{{Intent: def, Score: 0.75}},
		TopScore:   0.75,
	}
	examples := []fewshot.Example{{Text: "查一下工单", IntentCode: "ORDER_QUERY"}}

	t.Run("StrongSignalResolves", func(t *testing.T) {
		fb := &fakeFallback{result: &fallback.MatchResult{
			IntentCode:   "ORDER_QUERY",
			Intent:       def,
			Confidence:   0.85,
			StrongSignal: true,
		}}
		selector := &fakeSelector{examples: examples}
		svc := NewService(Dependencies{
			Store:    ts,
			Semantic: &fakeSemantic{decision: decision},
			Selector: selector,
			Fallback: fb,
		}, DefaultConfig())

		resolution, err := svc.ResolveIntent(ctx, 1, "那个单子怎么样了")
		require.NoError(t, err)
		assert.Equal(t, "ORDER_QUERY", resolution.IntentCode)
		assert.Equal(t, store.MatchMethodLLM, resolution.Method)
		assert.Equal(t, semantic.TierNeedReranking, resolution.Tier)
		assert.Equal(t, 1, selector.calls)
		// The fallback saw the semantic candidates and the selected examples.
		require.Len(t, fb.gotCandidates, 1)
		assert.Equal(t, "ORDER_QUERY", fb.gotCandidates[0].Code)
		assert.Equal(t, examples, fb.gotExamples)
	})

	t.Run("WeakSignalAsksClarification", func(t *testing.T) {
		fb := &fakeFallback{
			result:        &fallback.MatchResult{IntentCode: "ORDER_QUERY", Intent: def, Confidence: 0.5},
			clarification: "您是想查询工单进度吗？",
		}
		svc := NewService(Dependencies{
			Store:    ts,
			Semantic: &fakeSemantic{decision: decision},
			Fallback: fb,
		}, DefaultConfig())

		resolution, err := svc.ResolveIntent(ctx, 1, "那个单子怎么样了")
		require.NoError(t, err)
		assert.False(t, resolution.Resolved())
		assert.Equal(t, "您是想查询工单进度吗？", resolution.Clarification)
		assert.Equal(t, semantic.TierNeedReranking, resolution.Tier)
	})
}

func TestService_FullFallbackLayer(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	def := pipelineIntent(ctx, t, ts, "DEVICE_FAULT", store.SensitivityNormal)

	needFullLLM := semantic.Decision{Tier: semantic.TierNeedFullLLM}

	t.Run("FallbackResolves", func(t *testing.T) {
		fb := &fakeFallback{result: &fallback.MatchResult{
			IntentCode: "DEVICE_FAULT",
			Intent:     def,
			Confidence: 0.82,
		}}
		svc := NewService(Dependencies{
			Store:    ts,
			Semantic: &fakeSemantic{decision: needFullLLM},
			Fallback: fb,
		}, DefaultConfig())

		resolution, err := svc.ResolveIntent(ctx, 1, "三号机有点不对劲")
		require.NoError(t, err)
		assert.Equal(t, "DEVICE_FAULT", resolution.IntentCode)
		assert.Equal(t, store.MatchMethodLLM, resolution.Method)
		assert.Equal(t, semantic.TierNeedFullLLM, resolution.Tier)
	})

	t.Run("AgenticSplitsGeneralBucket", func(t *testing.T) {
		svc := NewService(Dependencies{
			Store:    ts,
			Semantic: &fakeSemantic{decision: needFullLLM},
			Fallback: &fakeFallback{},
		}, DefaultConfig())

		resolution, err := svc.ResolveIntent(ctx, 1, "追溯批次号：PC-20260831-001 的流向")
		require.NoError(t, err)
		assert.Equal(t, store.MatchMethodAgentic, resolution.Method)
		require.NotNil(t, resolution.Agentic)
		assert.Equal(t, agentic.SubIntentTraceability, resolution.Agentic.SubIntent)
		assert.Equal(t, "PC-20260831-001", resolution.Params["batch_no"])
	})

	t.Run("AgenticAsksForMissingBatch", func(t *testing.T) {
		svc := NewService(Dependencies{
			Store:    ts,
			Semantic: &fakeSemantic{decision: needFullLLM},
			Fallback: &fakeFallback{},
		}, DefaultConfig())

		resolution, err := svc.ResolveIntent(ctx, 1, "帮我追溯一下来料")
		require.NoError(t, err)
		assert.False(t, resolution.Resolved())
		assert.Equal(t, "请提供需要追溯的批次号或产品编号。", resolution.Clarification)
	})
}

func TestService_ResolutionCache(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	def := pipelineIntent(ctx, t, ts, "ORDER_QUERY", store.SensitivityNormal)

	cache := aicache.NewService(aicache.DefaultServiceConfig())
	defer cache.Close()

	sem := &fakeSemantic{
		decision: semantic.Decision{
			Tier: semantic.TierDirectExecute,
			Best: &semantic.Candidate{Intent: def, Score: 0.9},
		},
	}
	svc := NewService(Dependencies{
		Store:    ts,
		Semantic: sem,
		Fallback: &fakeFallback{},
		Cache:    cache,
	}, DefaultConfig())

	first, err := svc.ResolveIntent(ctx, 1, "看看工单")
	require.NoError(t, err)
	require.True(t, first.Resolved())
	assert.Equal(t, 1, sem.routeCalls)

	// Same input normalizes to the same key and is served from cache.
	second, err := svc.ResolveIntent(ctx, 1, "  看看工单  ")
	require.NoError(t, err)
	assert.Equal(t, first.IntentCode, second.IntentCode)
	assert.Equal(t, 1, sem.routeCalls)

	t.Run("ClarificationsAreNotCached", func(t *testing.T) {
		weak := &fakeSemantic{decision: semantic.Decision{Tier: semantic.TierNeedFullLLM}}
		weakSvc := NewService(Dependencies{
			Store:    ts,
			Semantic: weak,
			Fallback: &fakeFallback{},
			Cache:    cache,
		}, DefaultConfig())

		for i := 0; i < 2; i++ {
			resolution, err := weakSvc.ResolveIntent(ctx, 1, "帮我追溯一下来料")
			require.NoError(t, err)
			assert.False(t, resolution.Resolved())
		}
		assert.Equal(t, 2, weak.routeCalls)
	})
}

func TestService_DegradesWhenIntentLoadFails(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	// Closing the store makes every query fail.
	require.NoError(t, ts.Close())

	svc := NewService(Dependencies{
		Store:    ts,
		Semantic: &fakeSemantic{},
		Fallback: &fakeFallback{},
	}, DefaultConfig())

	resolution, err := svc.ResolveIntent(ctx, 1, "我要报工")
	require.NoError(t, err)
	assert.False(t, resolution.Resolved())
	assert.Equal(t, genericClarification, resolution.Clarification)
	assert.Equal(t, semantic.TierNeedFullLLM, resolution.Tier)
}

func TestService_ConfirmResolution(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	pipelineIntent(ctx, t, ts, "PRODUCTION_REPORT", store.SensitivityNormal, "报工")

	rec, err := ts.CreateMatchRecord(ctx, &store.MatchRecord{
		TenantID:   1,
		UserInput:  "我要报工",
		IntentCode: "PRODUCTION_REPORT",
		Confidence: 0.95,
		Method:     store.MatchMethodRule,
	})
	require.NoError(t, err)

	svc := NewService(Dependencies{
		Store:    ts,
		Semantic: &fakeSemantic{},
		Fallback: &fakeFallback{},
	}, DefaultConfig())

	require.NoError(t, svc.ConfirmResolution(ctx, 1, rec.ID, "PRODUCTION_REPORT", "我要报工"))

	confirmed := true
	list, err := ts.ListMatchRecords(ctx, &store.FindMatchRecord{UserConfirmed: &confirmed})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)

	t.Run("ZeroRecordIDSkipsConfirm", func(t *testing.T) {
		assert.NoError(t, svc.ConfirmResolution(ctx, 1, 0, "PRODUCTION_REPORT", "我要报工"))
	})
}

func TestService_RefreshTenant(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)

	cache := aicache.NewService(aicache.DefaultServiceConfig())
	defer cache.Close()
	require.NoError(t, cache.Set(ctx, "resolve:1:deadbeef", "stale", 0))

	sem := &fakeSemantic{}
	svc := NewService(Dependencies{
		Store:    ts,
		Semantic: sem,
		Fallback: &fakeFallback{},
		Cache:    cache,
	}, DefaultConfig())

	require.NoError(t, svc.RefreshTenant(ctx, 1))
	assert.Equal(t, []int64{1}, sem.refreshed)
	_, ok := cache.Get(ctx, "resolve:1:deadbeef")
	assert.False(t, ok)
}

func TestService_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	pipelineIntent(ctx, t, ts, "PRODUCTION_REPORT", store.SensitivityNormal, "报工")

	mock := metrics.NewMockMetricsService()
	svc := NewService(Dependencies{
		Store:    ts,
		Semantic: &fakeSemantic{},
		Fallback: &fakeFallback{},
		Metrics:  mock,
	}, DefaultConfig())

	_, err := svc.ResolveIntent(ctx, 1, "我要报工")
	require.NoError(t, err)
	assert.Equal(t, 1, mock.RouteCount())
}

func TestTruncate(t *testing.T) {
	t.Run("ShortInputUnchanged", func(t *testing.T) {
		assert.Equal(t, "查工单", truncate("查工单", 50))
	})

	t.Run("CutsOnRuneBoundary", func(t *testing.T) {
		got := truncate("查询一下今天三号注塑机的生产工单完成情况", 10)
		assert.Equal(t, "查询一下今天三号注塑...", got)
		assert.True(t, utf8.ValidString(got))
	})

	t.Run("MixedWidthInput", func(t *testing.T) {
		got := truncate("追溯批次号PC-20260831-001的流向和质检记录", 12)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, 12+len("..."), len([]rune(got)))
	})
}
