// Package fallback is the last-resort classification path: it delegates to
// an external LLM classifier service over HTTP with strict request and
// response contracts, and degrades to empty results instead of failing.
package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hanbai/mescopilot/plugin/ai/fewshot"
	"github.com/hanbai/mescopilot/plugin/ai/timeout"
	"github.com/hanbai/mescopilot/store"
)

// Config holds the fallback client's tunables.
type Config struct {
	BaseURL string
	// ConnectTimeout bounds dialing; ReadTimeout bounds the whole exchange.
	ConnectTimeout time.Duration // default 10s
	ReadTimeout    time.Duration // default 30s
	HealthTimeout  time.Duration // default 5s
	// StrongSignalThreshold marks results confident enough to skip
	// confirmation (sensitivity overrides still apply).
	StrongSignalThreshold float64 // default 0.8
	// ConfirmThreshold marks results uncertain enough to always confirm.
	ConfirmThreshold float64 // default 0.7
	// RequestsPerSecond rate-limits classify calls. 0 disables limiting.
	RequestsPerSecond float64
}

// DefaultConfig returns the default fallback configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:               baseURL,
		ConnectTimeout:        timeout.ClassifyConnectTimeout,
		ReadTimeout:           timeout.ClassifyTimeout,
		HealthTimeout:         timeout.HealthProbeTimeout,
		StrongSignalThreshold: 0.8,
		ConfirmThreshold:      0.7,
	}
}

// MatchResult is the mapped classification outcome. The zero value is the
// "empty" result returned on every degraded path.
type MatchResult struct {
	IntentCode string
	Intent     *store.IntentDefinition
	Confidence float64
	Reasoning  string
	// StrongSignal is set when confidence cleared the strong threshold.
	StrongSignal bool
	// RequiresConfirmation is set for low confidence or sensitive intents.
	// Sensitive operations always require confirmation, however sure the
	// model is.
	RequiresConfirmation bool
}

// Empty reports whether the result carries no usable classification.
func (r *MatchResult) Empty() bool {
	return r == nil || r.IntentCode == ""
}

// Client talks to the external classifier service.
type Client struct {
	config Config
	// client is for classification; healthClient is a separate short-lived
	// probe that shares no state with classification calls.
	client       *http.Client
	healthClient *http.Client
	limiter      *rate.Limiter
}

// NewClient creates a fallback classifier client.
func NewClient(config Config) *Client {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = timeout.ClassifyConnectTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = timeout.ClassifyTimeout
	}
	if config.HealthTimeout <= 0 {
		config.HealthTimeout = timeout.HealthProbeTimeout
	}
	if config.StrongSignalThreshold <= 0 {
		config.StrongSignalThreshold = 0.8
	}
	if config.ConfirmThreshold <= 0 {
		config.ConfirmThreshold = 0.7
	}

	dialer := &net.Dialer{Timeout: config.ConnectTimeout}
	c := &Client{
		config: config,
		client: &http.Client{
			Timeout: config.ReadTimeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				MaxIdleConnsPerHost: 4,
			},
		},
		healthClient: &http.Client{Timeout: config.HealthTimeout},
	}
	if config.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}
	return c
}

// candidatePayload is the simplified intent view sent over the wire.
// Full entity records never leave the process.
type candidatePayload struct {
	IntentCode     string   `json:"intent_code"`
	IntentName     string   `json:"intent_name"`
	IntentCategory string   `json:"intent_category"`
	Description    string   `json:"description"`
	Keywords       []string `json:"keywords"`
}

type classifyRequest struct {
	UserInput        string             `json:"user_input"`
	FactoryID        int64              `json:"factory_id"`
	AvailableIntents []candidatePayload `json:"available_intents"`
	// FewShotExamples ground the model when reranking; omitted when none
	// were selected.
	FewShotExamples []examplePayload `json:"few_shot_examples,omitempty"`
}

type examplePayload struct {
	Text       string `json:"text"`
	IntentCode string `json:"intent_code"`
}

type classifyResponse struct {
	Success bool `json:"success"`
	Data    struct {
		MatchedIntentCode string  `json:"matched_intent_code"`
		Confidence        float64 `json:"confidence"`
		Reasoning         string  `json:"reasoning"`
		OtherCandidates   []struct {
			IntentCode string  `json:"intent_code"`
			Confidence float64 `json:"confidence"`
		} `json:"other_candidates"`
	} `json:"data"`
}

type clarifyRequest struct {
	UserInput        string             `json:"user_input"`
	FactoryID        int64              `json:"factory_id"`
	CandidateIntents []candidatePayload `json:"candidate_intents"`
}

type clarifyResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ClarificationQuestion string `json:"clarification_question"`
	} `json:"data"`
}

// Classify asks the external service to pick among the candidate intents.
// All failure modes (transport error, non-2xx, malformed payload, unknown
// intent code) return an empty result, never an error past the caller.
func (c *Client) Classify(ctx context.Context, tenantID int64, input string, candidates []*store.IntentDefinition, examples []fewshot.Example) *MatchResult {
	empty := &MatchResult{}
	if c.config.BaseURL == "" || len(candidates) == 0 {
		return empty
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return empty
		}
	}

	req := classifyRequest{
		UserInput:        input,
		FactoryID:        tenantID,
		AvailableIntents: toPayloads(candidates),
	}
	for _, ex := range examples {
		req.FewShotExamples = append(req.FewShotExamples, examplePayload{
			Text:       ex.Text,
			IntentCode: ex.IntentCode,
		})
	}
	var resp classifyResponse
	if err := c.post(ctx, c.client, "/intent/classify", req, &resp); err != nil {
		slog.Warn("fallback classify failed, returning empty result", "error", err)
		return empty
	}
	if !resp.Success || resp.Data.MatchedIntentCode == "" {
		return empty
	}

	// The result must name an intent the caller offered.
	var matched *store.IntentDefinition
	for _, cand := range candidates {
		if cand.Code == resp.Data.MatchedIntentCode {
			matched = cand
			break
		}
	}
	if matched == nil {
		slog.Warn("fallback named an unknown intent code, treating as no match",
			"intent_code", resp.Data.MatchedIntentCode)
		return empty
	}

	result := &MatchResult{
		IntentCode: matched.Code,
		Intent:     matched,
		Confidence: resp.Data.Confidence,
		Reasoning:  resp.Data.Reasoning,
	}
	result.StrongSignal = result.Confidence >= c.config.StrongSignalThreshold
	sensitive := matched.Sensitivity == store.SensitivityHigh || matched.Sensitivity == store.SensitivityCritical
	result.RequiresConfirmation = result.Confidence < c.config.ConfirmThreshold || sensitive
	return result
}

// GenerateClarification asks the service to phrase a disambiguation
// question over the candidates. Degrades to a generic question.
func (c *Client) GenerateClarification(ctx context.Context, tenantID int64, input string, candidates []*store.IntentDefinition) string {
	const generic = "请再具体描述一下您想要执行的操作。"
	if c.config.BaseURL == "" {
		return generic
	}

	req := clarifyRequest{
		UserInput:        input,
		FactoryID:        tenantID,
		CandidateIntents: toPayloads(candidates),
	}
	var resp clarifyResponse
	if err := c.post(ctx, c.client, "/intent/clarify", req, &resp); err != nil {
		slog.Debug("clarification generation failed, using generic question", "error", err)
		return generic
	}
	if !resp.Success || resp.Data.ClarificationQuestion == "" {
		return generic
	}
	return resp.Data.ClarificationQuestion
}

// Health probes the service with its own short timeout. It is
// side-effect-free and shares no state with classification.
func (c *Client) Health(ctx context.Context) bool {
	if c.config.BaseURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/intent/health"), nil)
	if err != nil {
		return false
	}
	resp, err := c.healthClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return resp.StatusCode == http.StatusOK
}

func (c *Client) post(ctx context.Context, client *http.Client, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return &StatusError{Code: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) url(path string) string {
	return strings.TrimSuffix(c.config.BaseURL, "/") + path
}

func toPayloads(candidates []*store.IntentDefinition) []candidatePayload {
	payloads := make([]candidatePayload, 0, len(candidates))
	for _, cand := range candidates {
		payloads = append(payloads, candidatePayload{
			IntentCode:     cand.Code,
			IntentName:     cand.Name,
			IntentCategory: cand.Category,
			Description:    cand.Description,
			Keywords:       cand.Keywords,
		})
	}
	return payloads
}

// StatusError reports a non-2xx response from the classifier service.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "classifier service returned status " + http.StatusText(e.Code)
}
