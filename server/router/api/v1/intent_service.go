package v1

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hanbai/mescopilot/internal/observability"
)

// maxInputLength bounds the accepted utterance size.
const maxInputLength = 2000

type resolveIntentRequest struct {
	TenantID int64  `json:"tenant_id"`
	Input    string `json:"input"`
}

type resolveIntentResponse struct {
	IntentCode           string            `json:"intent_code,omitempty"`
	IntentName           string            `json:"intent_name,omitempty"`
	Confidence           float64           `json:"confidence"`
	Method               string            `json:"method,omitempty"`
	Tier                 string            `json:"tier"`
	Params               map[string]string `json:"params,omitempty"`
	RequiresConfirmation bool              `json:"requires_confirmation"`
	Clarification        string            `json:"clarification,omitempty"`
	SubIntent            string            `json:"sub_intent,omitempty"`
	Query                string            `json:"query,omitempty"`
}

// ResolveIntent classifies one user turn.
func (s *APIV1Service) ResolveIntent(c echo.Context) error {
	req := &resolveIntentRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "input is required")
	}
	if len(input) > maxInputLength {
		return echo.NewHTTPError(http.StatusBadRequest, "input too long")
	}
	if req.TenantID < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant_id")
	}
	if !s.limiter.Allow(strconv.FormatInt(req.TenantID, 10)) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	}

	rc := observability.NewRequestContext(slog.Default(), req.TenantID)
	ctx := observability.WithRequestContext(c.Request().Context(), rc)
	rc.Debug("resolving intent", slog.Int(observability.LogFieldInputLen, len(input)))

	resolution, err := s.Router.ResolveIntent(ctx, req.TenantID, input)
	if err != nil {
		rc.Error("intent resolution failed", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve intent")
	}
	rc.Debug("intent resolved",
		slog.String(observability.LogFieldIntentCode, resolution.IntentCode),
		slog.String(observability.LogFieldMethod, string(resolution.Method)),
		slog.String(observability.LogFieldTier, string(resolution.Tier)),
		slog.Float64(observability.LogFieldConfidence, resolution.Confidence),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()))

	resp := &resolveIntentResponse{
		IntentCode:           resolution.IntentCode,
		Confidence:           resolution.Confidence,
		Method:               string(resolution.Method),
		Tier:                 string(resolution.Tier),
		Params:               resolution.Params,
		RequiresConfirmation: resolution.RequiresConfirmation,
		Clarification:        resolution.Clarification,
	}
	if resolution.Intent != nil {
		resp.IntentName = resolution.Intent.Name
	}
	if resolution.Agentic != nil {
		resp.SubIntent = string(resolution.Agentic.SubIntent)
		resp.Query = resolution.Agentic.Query
	}
	return c.JSON(http.StatusOK, resp)
}

type feedbackRequest struct {
	TenantID   int64  `json:"tenant_id"`
	RecordID   int64  `json:"record_id"`
	IntentCode string `json:"intent_code"`
	Input      string `json:"input"`
}

// SubmitFeedback confirms a past resolution and feeds the learning loop.
func (s *APIV1Service) SubmitFeedback(c echo.Context) error {
	req := &feedbackRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.IntentCode == "" && req.RecordID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "record_id or intent_code is required")
	}

	rc := observability.NewRequestContext(slog.Default(), req.TenantID)
	ctx := observability.WithRequestContext(c.Request().Context(), rc)
	if err := s.Router.ConfirmResolution(ctx, req.TenantID, req.RecordID, req.IntentCode, req.Input); err != nil {
		rc.Error("feedback processing failed", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process feedback")
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

type refreshRequest struct {
	TenantID int64 `json:"tenant_id"`
}

// RefreshIntents rebuilds the tenant's semantic partition after intent
// definitions changed.
func (s *APIV1Service) RefreshIntents(c echo.Context) error {
	req := &refreshRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	rc := observability.NewRequestContext(slog.Default(), req.TenantID)
	ctx := observability.WithRequestContext(c.Request().Context(), rc)
	if err := s.Router.RefreshTenant(ctx, req.TenantID); err != nil {
		rc.Warn("partition refresh failed", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to refresh intent vectors")
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// GetRoutingStats returns aggregated routing metrics.
func (s *APIV1Service) GetRoutingStats(c echo.Context) error {
	if s.Metrics == nil {
		return echo.NewHTTPError(http.StatusNotFound, "metrics not enabled")
	}
	return c.JSON(http.StatusOK, s.Metrics.GetStats())
}

type intentHealthResponse struct {
	Status     string `json:"status"`
	Classifier string `json:"classifier"`
}

// GetIntentHealth reports pipeline health. The pipeline itself is healthy
// whenever this handler runs; the classifier field reflects the external
// fallback service.
func (s *APIV1Service) GetIntentHealth(c echo.Context) error {
	resp := &intentHealthResponse{Status: "ok", Classifier: "not_configured"}
	if s.Prober != nil {
		if s.Prober.Health(c.Request().Context()) {
			resp.Classifier = "healthy"
		} else {
			resp.Classifier = "unreachable"
		}
	}
	return c.JSON(http.StatusOK, resp)
}
