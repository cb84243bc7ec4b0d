package fallback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanbai/mescopilot/plugin/ai/fewshot"
	"github.com/hanbai/mescopilot/store"
)

func fallbackIntent(code string, sensitivity store.SensitivityLevel) *store.IntentDefinition {
	return &store.IntentDefinition{
		Code:        code,
		Name:        code,
		Category:    "PRODUCTION",
		Sensitivity: sensitivity,
		Active:      true,
	}
}

func classifyServer(t *testing.T, code string, confidence float64, capture *classifyRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/intent/classify" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		resp := classifyResponse{Success: true}
		resp.Data.MatchedIntentCode = code
		resp.Data.Confidence = confidence
		resp.Data.Reasoning = "test"
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
}

func TestClient_Classify(t *testing.T) {
	candidates := []*store.IntentDefinition{
		fallbackIntent("PRODUCTION_REPORT", store.SensitivityNormal),
		fallbackIntent("ORDER_CANCEL", store.SensitivityHigh),
	}

	t.Run("StrongSignal", func(t *testing.T) {
		var captured classifyRequest
		srv := classifyServer(t, "PRODUCTION_REPORT", 0.92, &captured)
		defer srv.Close()
		client := NewClient(DefaultConfig(srv.URL))

		result := client.Classify(context.Background(), 42, "我要报工", candidates, nil)
		require.False(t, result.Empty())
		assert.Equal(t, "PRODUCTION_REPORT", result.IntentCode)
		assert.True(t, result.StrongSignal)
		assert.False(t, result.RequiresConfirmation)
		assert.Equal(t, int64(42), captured.FactoryID)
		assert.Equal(t, "我要报工", captured.UserInput)
		assert.Len(t, captured.AvailableIntents, 2)
		assert.Empty(t, captured.FewShotExamples)
	})

	t.Run("SensitiveAlwaysConfirms", func(t *testing.T) {
		srv := classifyServer(t, "ORDER_CANCEL", 0.95, nil)
		defer srv.Close()
		client := NewClient(DefaultConfig(srv.URL))

		result := client.Classify(context.Background(), 42, "取消工单", candidates, nil)
		require.False(t, result.Empty())
		assert.True(t, result.StrongSignal)
		assert.True(t, result.RequiresConfirmation)
	})

	t.Run("LowConfidenceConfirms", func(t *testing.T) {
		srv := classifyServer(t, "PRODUCTION_REPORT", 0.55, nil)
		defer srv.Close()
		client := NewClient(DefaultConfig(srv.URL))

		result := client.Classify(context.Background(), 42, "报一下", candidates, nil)
		require.False(t, result.Empty())
		assert.False(t, result.StrongSignal)
		assert.True(t, result.RequiresConfirmation)
	})

	t.Run("UnknownIntentCodeIsNoMatch", func(t *testing.T) {
		srv := classifyServer(t, "NOT_OFFERED", 0.99, nil)
		defer srv.Close()
		client := NewClient(DefaultConfig(srv.URL))

		result := client.Classify(context.Background(), 42, "我要报工", candidates, nil)
		assert.True(t, result.Empty())
	})

	t.Run("FewShotExamplesOnTheWire", func(t *testing.T) {
		var captured classifyRequest
		srv := classifyServer(t, "PRODUCTION_REPORT", 0.9, &captured)
		defer srv.Close()
		client := NewClient(DefaultConfig(srv.URL))

		examples := []fewshot.Example{{Text: "今天报工300件", IntentCode: "PRODUCTION_REPORT"}}
		result := client.Classify(context.Background(), 42, "我要报工", candidates, examples)
		require.False(t, result.Empty())
		require.Len(t, captured.FewShotExamples, 1)
		assert.Equal(t, "今天报工300件", captured.FewShotExamples[0].Text)
	})
}

func TestClient_ClassifyDegrades(t *testing.T) {
	candidates := []*store.IntentDefinition{fallbackIntent("PRODUCTION_REPORT", store.SensitivityNormal)}

	t.Run("ServerError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()
		client := NewClient(DefaultConfig(srv.URL))
		assert.True(t, client.Classify(context.Background(), 1, "报工", candidates, nil).Empty())
	})

	t.Run("MalformedBody", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("not json")) //nolint:errcheck
		}))
		defer srv.Close()
		client := NewClient(DefaultConfig(srv.URL))
		assert.True(t, client.Classify(context.Background(), 1, "报工", candidates, nil).Empty())
	})

	t.Run("UnsuccessfulResponse", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(classifyResponse{Success: false}) //nolint:errcheck
		}))
		defer srv.Close()
		client := NewClient(DefaultConfig(srv.URL))
		assert.True(t, client.Classify(context.Background(), 1, "报工", candidates, nil).Empty())
	})

	t.Run("NoBaseURL", func(t *testing.T) {
		client := NewClient(Config{})
		assert.True(t, client.Classify(context.Background(), 1, "报工", candidates, nil).Empty())
	})

	t.Run("NoCandidates", func(t *testing.T) {
		client := NewClient(DefaultConfig("http://localhost:1"))
		assert.True(t, client.Classify(context.Background(), 1, "报工", nil, nil).Empty())
	})

	t.Run("UnreachableService", func(t *testing.T) {
		client := NewClient(DefaultConfig("http://127.0.0.1:1"))
		assert.True(t, client.Classify(context.Background(), 1, "报工", candidates, nil).Empty())
	})
}

func TestClient_GenerateClarification(t *testing.T) {
	candidates := []*store.IntentDefinition{fallbackIntent("ORDER_QUERY", store.SensitivityNormal)}

	t.Run("UsesServiceQuestion", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/intent/clarify", r.URL.Path)
			resp := clarifyResponse{Success: true}
			resp.Data.ClarificationQuestion = "您是想查工单还是查批次？"
			json.NewEncoder(w).Encode(resp) //nolint:errcheck
		}))
		defer srv.Close()
		client := NewClient(DefaultConfig(srv.URL))
		question := client.GenerateClarification(context.Background(), 1, "查一下", candidates)
		assert.Equal(t, "您是想查工单还是查批次？", question)
	})

	t.Run("DegradesToGeneric", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		client := NewClient(DefaultConfig(srv.URL))
		question := client.GenerateClarification(context.Background(), 1, "查一下", candidates)
		assert.Equal(t, "请再具体描述一下您想要执行的操作。", question)
	})
}

func TestClient_Health(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/intent/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		client := NewClient(DefaultConfig(srv.URL))
		assert.True(t, client.Health(context.Background()))
	})

	t.Run("Unhealthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		client := NewClient(DefaultConfig(srv.URL))
		assert.False(t, client.Health(context.Background()))
	})

	t.Run("NoBaseURL", func(t *testing.T) {
		client := NewClient(Config{})
		assert.False(t, client.Health(context.Background()))
	})
}
