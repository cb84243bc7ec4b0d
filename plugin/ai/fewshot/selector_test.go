package fewshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanbai/mescopilot/plugin/ai"
	"github.com/hanbai/mescopilot/store"
)

type fakeExampleSource struct {
	scored  []*store.LearnedExpressionWithScore
	records []*store.MatchRecord
}

func (f *fakeExampleSource) SearchLearnedExpressionsByVector(context.Context, int64, []float32, int) ([]*store.LearnedExpressionWithScore, error) {
	return f.scored, nil
}

func (f *fakeExampleSource) ListMatchRecords(context.Context, *store.FindMatchRecord) ([]*store.MatchRecord, error) {
	return f.records, nil
}

func scoredExpression(phrase, intentCode string, score float32, vector []float32) *store.LearnedExpressionWithScore {
	return &store.LearnedExpressionWithScore{
		Expression: &store.LearnedExpression{
			TenantID:   1,
			IntentCode: intentCode,
			Phrase:     phrase,
			Embedding:  vector,
		},
		Score: score,
	}
}

func TestSelector_MMRPrefersDiversity(t *testing.T) {
	embedding := ai.NewMockEmbeddingService()
	embedding.Default = []float32{1, 0, 0}
	source := &fakeExampleSource{
		scored: []*store.LearnedExpressionWithScore{
			scoredExpression("查一下今天的报工记录", "PRODUCTION_REPORT", 0.95, []float32{1, 0, 0}),
			// Same direction as the first, slightly lower relevance.
			scoredExpression("看一下今天的报工记录", "PRODUCTION_REPORT", 0.94, []float32{1, 0, 0}),
			// Orthogonal direction, lower relevance still.
			scoredExpression("设备故障怎么上报", "DEVICE_FAULT", 0.60, []float32{0, 1, 0}),
		},
	}
	selector := NewSelector(embedding, source, Config{MinCount: 1})

	examples := selector.SelectExamples(context.Background(), 1, "今天报工", 2)
	require.Len(t, examples, 2)
	assert.Equal(t, "查一下今天的报工记录", examples[0].Text)
	// With lambda 0.7 the redundant near-duplicate loses to the orthogonal
	// candidate on the second pick.
	assert.Equal(t, "设备故障怎么上报", examples[1].Text)
	assert.InDelta(t, 1.0, examples[1].Diversity, 1e-6)
	assert.InDelta(t, 0.95, examples[0].Relevance, 1e-6)
}

func TestSelector_VerifiedBreaksNearTie(t *testing.T) {
	embedding := ai.NewMockEmbeddingService()
	verified := scoredExpression("确认过的说法", "ORDER_QUERY", 0.80, []float32{1, 0, 0})
	verified.Expression.Verified = true
	source := &fakeExampleSource{
		scored: []*store.LearnedExpressionWithScore{
			scoredExpression("没确认的说法", "ORDER_QUERY", 0.82, []float32{0, 1, 0}),
			verified,
		},
	}
	selector := NewSelector(embedding, source, Config{MinCount: 1})

	examples := selector.SelectExamples(context.Background(), 1, "查工单", 1)
	require.Len(t, examples, 1)
	assert.Equal(t, "确认过的说法", examples[0].Text)
}

func TestSelector_CountClamping(t *testing.T) {
	embedding := ai.NewMockEmbeddingService()
	source := &fakeExampleSource{}
	for i := 0; i < 10; i++ {
		vec := []float32{float32(i), 1, 0}
		source.scored = append(source.scored,
			scoredExpression(string(rune('a'+i))+" 工单", "ORDER_QUERY", 0.9, vec))
	}
	selector := NewSelector(embedding, source, DefaultConfig())

	t.Run("BelowMinClampsUp", func(t *testing.T) {
		examples := selector.SelectExamples(context.Background(), 1, "查工单", 2)
		assert.Len(t, examples, 5)
	})
	t.Run("AboveMaxClampsDown", func(t *testing.T) {
		examples := selector.SelectExamples(context.Background(), 1, "查工单", 100)
		assert.Len(t, examples, 7)
	})
}

func TestSelector_PoolGating(t *testing.T) {
	embedding := ai.NewMockEmbeddingService()
	source := &fakeExampleSource{
		scored: []*store.LearnedExpressionWithScore{
			scoredExpression("相关的说法", "ORDER_QUERY", 0.70, []float32{1, 0, 0}),
			// Below the similarity floor, never admitted to the pool.
			scoredExpression("不相关的闲聊", "GENERAL_CHAT", 0.40, []float32{0, 0, 1}),
		},
	}
	selector := NewSelector(embedding, source, Config{MinCount: 1})

	examples := selector.SelectExamples(context.Background(), 1, "查工单", 7)
	require.Len(t, examples, 1)
	assert.Equal(t, "相关的说法", examples[0].Text)
}

func TestSelector_DedupAcrossPools(t *testing.T) {
	embedding := ai.NewMockEmbeddingService()
	embedding.Default = []float32{1, 0, 0}
	source := &fakeExampleSource{
		scored: []*store.LearnedExpressionWithScore{
			scoredExpression("查询工单 WO-100", "ORDER_QUERY", 0.9, []float32{1, 0, 0}),
		},
		records: []*store.MatchRecord{
			// Same text as the learned expression, must not appear twice.
			{TenantID: 1, UserInput: "查询工单 WO-100", IntentCode: "ORDER_QUERY", UserConfirmed: true},
			{TenantID: 1, UserInput: "我想报工", IntentCode: "PRODUCTION_REPORT", UserConfirmed: true},
		},
	}
	selector := NewSelector(embedding, source, Config{MinCount: 1})

	examples := selector.SelectExamples(context.Background(), 1, "查询工单", 7)
	require.Len(t, examples, 2)
	texts := []string{examples[0].Text, examples[1].Text}
	assert.Contains(t, texts, "查询工单 WO-100")
	assert.Contains(t, texts, "我想报工")
	for _, ex := range examples {
		if ex.Text == "我想报工" {
			assert.Equal(t, ProvenanceRecord, ex.Provenance)
		}
	}
}

func TestSelector_DegeneratePaths(t *testing.T) {
	source := &fakeExampleSource{}

	t.Run("EmbeddingUnavailable", func(t *testing.T) {
		embedding := ai.NewMockEmbeddingService()
		embedding.Available = false
		selector := NewSelector(embedding, source, DefaultConfig())
		assert.Empty(t, selector.SelectExamples(context.Background(), 1, "查工单", 5))
	})

	t.Run("EmbeddingError", func(t *testing.T) {
		embedding := ai.NewMockEmbeddingService()
		embedding.Err = assert.AnError
		selector := NewSelector(embedding, source, DefaultConfig())
		assert.Empty(t, selector.SelectExamples(context.Background(), 1, "查工单", 5))
	})

	t.Run("EmptyPool", func(t *testing.T) {
		embedding := ai.NewMockEmbeddingService()
		selector := NewSelector(embedding, source, DefaultConfig())
		assert.Empty(t, selector.SelectExamples(context.Background(), 1, "查工单", 5))
	})
}
