package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanbai/mescopilot/store"
)

func createIntent(ctx context.Context, t *testing.T, ts *store.Store, tenantID int64, code, description string, keywords ...string) *store.IntentDefinition {
	t.Helper()
	def, err := ts.CreateIntentDefinition(ctx, &store.IntentDefinition{
		TenantID:    tenantID,
		Code:        code,
		Name:        code,
		Category:    "PRODUCTION",
		Description: description,
		Keywords:    keywords,
		Sensitivity: store.SensitivityNormal,
		QuotaCost:   1,
		Active:      true,
	})
	require.NoError(t, err)
	return def
}

func TestIntentDefinitionStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	def := createIntent(ctx, t, ts, 0, "PRODUCTION_REPORT", "上报生产完工数量", "报工", "产量")
	require.NotZero(t, def.ID)
	assert.Equal(t, []string{"报工", "产量"}, def.Keywords)

	t.Run("FindByCode", func(t *testing.T) {
		code := "PRODUCTION_REPORT"
		list, err := ts.ListIntentDefinitions(ctx, &store.FindIntentDefinition{Code: &code})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, def.ID, list[0].ID)
	})

	t.Run("UpdateKeywords", func(t *testing.T) {
		err := ts.UpdateIntentKeywords(ctx, &store.UpdateIntentKeywords{
			ID:       def.ID,
			Keywords: []string{"报工", "产量", "完工"},
		})
		require.NoError(t, err)

		list, err := ts.ListActiveIntents(ctx, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, []string{"报工", "产量", "完工"}, list[0].Keywords)
	})

	t.Run("Delete", func(t *testing.T) {
		extra := createIntent(ctx, t, ts, 0, "TO_DELETE", "临时意图")
		require.NoError(t, ts.DeleteIntentDefinition(ctx, extra.ID))
		code := "TO_DELETE"
		list, err := ts.ListIntentDefinitions(ctx, &store.FindIntentDefinition{Code: &code})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestListActiveIntents_TenantShadowsGlobal(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	createIntent(ctx, t, ts, 0, "ORDER_QUERY", "查询生产工单")
	createIntent(ctx, t, ts, 0, "DEVICE_FAULT", "上报设备故障")
	tenantDef := createIntent(ctx, t, ts, 42, "ORDER_QUERY", "查询本厂工单")

	effective, err := ts.ListActiveIntents(ctx, 42)
	require.NoError(t, err)
	require.Len(t, effective, 2)

	byCode := make(map[string]*store.IntentDefinition)
	for _, def := range effective {
		byCode[def.Code] = def
	}
	require.Contains(t, byCode, "ORDER_QUERY")
	require.Contains(t, byCode, "DEVICE_FAULT")
	assert.Equal(t, tenantDef.ID, byCode["ORDER_QUERY"].ID)
	assert.Equal(t, int64(42), byCode["ORDER_QUERY"].TenantID)

	// Another tenant sees only the global definitions.
	other, err := ts.ListActiveIntents(ctx, 7)
	require.NoError(t, err)
	require.Len(t, other, 2)
	for _, def := range other {
		assert.Equal(t, int64(0), def.TenantID)
	}
}

func TestListActiveIntents_CacheInvalidatedByKeywordUpdate(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	def := createIntent(ctx, t, ts, 0, "ORDER_QUERY", "查询生产工单", "工单")

	// Prime the cache.
	list, err := ts.ListActiveIntents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	err = ts.UpdateIntentKeywords(ctx, &store.UpdateIntentKeywords{
		ID:       def.ID,
		Keywords: []string{"工单", "排产"},
	})
	require.NoError(t, err)

	list, err = ts.ListActiveIntents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Contains(t, list[0].Keywords, "排产")
}
