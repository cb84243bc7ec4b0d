package semantic

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanbai/mescopilot/plugin/ai"
	"github.com/hanbai/mescopilot/store"
)

type fakeIntentSource struct {
	mu   sync.Mutex
	defs map[int64][]*store.IntentDefinition
}

func newFakeIntentSource() *fakeIntentSource {
	return &fakeIntentSource{defs: make(map[int64][]*store.IntentDefinition)}
}

func (f *fakeIntentSource) set(tenantID int64, defs ...*store.IntentDefinition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defs[tenantID] = defs
}

func (f *fakeIntentSource) ListIntentDefinitions(_ context.Context, find *store.FindIntentDefinition) ([]*store.IntentDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if find.TenantID == nil {
		return nil, nil
	}
	return f.defs[*find.TenantID], nil
}

func semanticDef(code, description string) *store.IntentDefinition {
	return &store.IntentDefinition{
		Code:        code,
		Name:        code,
		Description: description,
		Active:      true,
	}
}

func TestRouter_TierSelection(t *testing.T) {
	embedding := ai.NewMockEmbeddingService()
	embedding.Default = []float32{0, 0, 1}
	embedding.Vectors = map[string][]float32{
		"查询生产工单":  {1, 0, 0},
		"设备维修保养":  {0, 1, 0},
		"查一下生产工单": {1, 0, 0},
		// cos 0.8 against {1,0,0} lands in the reranking band.
		"生产方面的单子": {0.8, 0.6, 0},
		"今天天气怎么样": {0.1, 0.05, 0.99},
	}
	source := newFakeIntentSource()
	source.set(GlobalTenantID,
		semanticDef("ORDER_QUERY", "查询生产工单"),
		semanticDef("DEVICE_MAINT", "设备维修保养"),
	)
	router := NewRouter(embedding, source, DefaultConfig())

	t.Run("DirectExecute", func(t *testing.T) {
		d := router.Route(context.Background(), GlobalTenantID, "查一下生产工单", 0)
		assert.Equal(t, TierDirectExecute, d.Tier)
		require.NotNil(t, d.Best)
		assert.Equal(t, "ORDER_QUERY", d.Best.Intent.Code)
		assert.InDelta(t, 1.0, d.TopScore, 1e-6)
	})

	t.Run("NeedReranking", func(t *testing.T) {
		d := router.Route(context.Background(), GlobalTenantID, "生产方面的单子", 0)
		assert.Equal(t, TierNeedReranking, d.Tier)
		require.NotNil(t, d.Best)
		assert.Equal(t, "ORDER_QUERY", d.Best.Intent.Code)
		assert.InDelta(t, 0.8, d.TopScore, 1e-6)
		assert.NotEmpty(t, d.Candidates)
	})

	t.Run("NeedFullLLM", func(t *testing.T) {
		d := router.Route(context.Background(), GlobalTenantID, "今天天气怎么样", 0)
		assert.Equal(t, TierNeedFullLLM, d.Tier)
		assert.Nil(t, d.Best)
		assert.Less(t, d.TopScore, 0.70)
	})
}

// A higher similarity never lands in a weaker tier.
func TestRouter_TierMonotonicity(t *testing.T) {
	tierRank := map[Tier]int{
		TierNeedFullLLM:   0,
		TierNeedReranking: 1,
		TierDirectExecute: 2,
	}

	embedding := ai.NewMockEmbeddingService()
	embedding.Default = []float32{0, 0, 1}
	embedding.Vectors = map[string][]float32{"报工": {1, 0, 0}}
	source := newFakeIntentSource()
	source.set(GlobalTenantID, semanticDef("REPORT", "报工"))
	router := NewRouter(embedding, source, DefaultConfig())

	inputs := []struct {
		text string
		vec  []float32
	}{
		{"a", []float32{0, 1, 0}},
		{"b", []float32{0.5, 0.866, 0}},
		{"c", []float32{0.75, 0.6614, 0}},
		{"d", []float32{0.9, 0.4359, 0}},
		{"e", []float32{1, 0, 0}},
	}
	prev := -1
	for _, in := range inputs {
		embedding.Vectors[in.text] = in.vec
		d := router.Route(context.Background(), GlobalTenantID, in.text, 0)
		rank := tierRank[d.Tier]
		assert.GreaterOrEqual(t, rank, prev, "input %q (score %.3f) regressed tier", in.text, d.TopScore)
		prev = rank
	}
}

func TestRouter_TenantShadowsGlobal(t *testing.T) {
	embedding := ai.NewMockEmbeddingService()
	embedding.Default = []float32{0, 0, 1}
	embedding.Vectors = map[string][]float32{
		"全局报工描述": {0, 1, 0},
		"租户报工描述": {1, 0, 0},
		"我要报工":   {1, 0, 0},
	}
	source := newFakeIntentSource()
	source.set(GlobalTenantID, semanticDef("PRODUCTION_REPORT", "全局报工描述"))
	source.set(42, semanticDef("PRODUCTION_REPORT", "租户报工描述"))
	router := NewRouter(embedding, source, DefaultConfig())

	d := router.Route(context.Background(), 42, "我要报工", 0)
	assert.Equal(t, TierDirectExecute, d.Tier)
	require.NotNil(t, d.Best)
	// The tenant definition's vector is scored, not the global one.
	assert.Equal(t, "租户报工描述", d.Best.Intent.Description)
	// No duplicate candidate for the shadowed code.
	assert.Len(t, d.Candidates, 1)
}

func TestRouter_RefreshSwapsPartition(t *testing.T) {
	embedding := ai.NewMockEmbeddingService()
	embedding.Default = []float32{0, 0, 1}
	embedding.Vectors = map[string][]float32{
		"旧描述": {0, 1, 0},
		"新描述": {1, 0, 0},
		"输入":  {1, 0, 0},
	}
	source := newFakeIntentSource()
	source.set(GlobalTenantID, semanticDef("ORDER_QUERY", "旧描述"))
	router := NewRouter(embedding, source, DefaultConfig())

	d := router.Route(context.Background(), GlobalTenantID, "输入", 0)
	assert.Equal(t, TierNeedFullLLM, d.Tier)

	// Source changes alone do not affect the served partition.
	source.set(GlobalTenantID, semanticDef("ORDER_QUERY", "新描述"))
	d = router.Route(context.Background(), GlobalTenantID, "输入", 0)
	assert.Equal(t, TierNeedFullLLM, d.Tier)

	require.NoError(t, router.Refresh(context.Background(), GlobalTenantID))
	d = router.Route(context.Background(), GlobalTenantID, "输入", 0)
	assert.Equal(t, TierDirectExecute, d.Tier)
	assert.Equal(t, 1, router.PartitionSize(GlobalTenantID))
}

func TestRouter_DegradedPaths(t *testing.T) {
	source := newFakeIntentSource()
	source.set(GlobalTenantID, semanticDef("ORDER_QUERY", "查询生产工单"))

	t.Run("EmbeddingUnavailable", func(t *testing.T) {
		embedding := ai.NewMockEmbeddingService()
		embedding.Available = false
		router := NewRouter(embedding, source, DefaultConfig())
		d := router.Route(context.Background(), GlobalTenantID, "查询工单", 0)
		assert.Equal(t, TierNeedFullLLM, d.Tier)
		assert.Zero(t, d.TopScore)
	})

	t.Run("EmbeddingError", func(t *testing.T) {
		embedding := ai.NewMockEmbeddingService()
		embedding.Err = assert.AnError
		router := NewRouter(embedding, source, DefaultConfig())
		d := router.Route(context.Background(), GlobalTenantID, "查询工单", 0)
		assert.Equal(t, TierNeedFullLLM, d.Tier)
	})

	t.Run("NilEmbedding", func(t *testing.T) {
		router := NewRouter(nil, source, DefaultConfig())
		d := router.Route(context.Background(), GlobalTenantID, "查询工单", 0)
		assert.Equal(t, TierNeedFullLLM, d.Tier)
	})

	t.Run("EmptyPartition", func(t *testing.T) {
		embedding := ai.NewMockEmbeddingService()
		router := NewRouter(embedding, newFakeIntentSource(), DefaultConfig())
		d := router.Route(context.Background(), GlobalTenantID, "查询工单", 0)
		assert.Equal(t, TierNeedFullLLM, d.Tier)
		assert.Empty(t, d.Candidates)
	})
}
