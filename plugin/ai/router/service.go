package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"time"

	"github.com/hanbai/mescopilot/plugin/ai/agentic"
	aicache "github.com/hanbai/mescopilot/plugin/ai/cache"
	"github.com/hanbai/mescopilot/plugin/ai/complexity"
	"github.com/hanbai/mescopilot/plugin/ai/fallback"
	"github.com/hanbai/mescopilot/plugin/ai/fewshot"
	"github.com/hanbai/mescopilot/plugin/ai/learning"
	"github.com/hanbai/mescopilot/plugin/ai/matcher"
	"github.com/hanbai/mescopilot/plugin/ai/metrics"
	"github.com/hanbai/mescopilot/plugin/ai/semantic"
	"github.com/hanbai/mescopilot/plugin/ai/timeout"
	"github.com/hanbai/mescopilot/store"
)

// SemanticRouter is the slice of the semantic router the pipeline needs.
type SemanticRouter interface {
	Route(ctx context.Context, tenantID int64, input string, topN int) semantic.Decision
	Refresh(ctx context.Context, tenantID int64) error
}

// ExampleSelector is the slice of the few-shot selector the pipeline needs.
type ExampleSelector interface {
	SelectExamples(ctx context.Context, tenantID int64, input string, targetCount int) []fewshot.Example
}

// FallbackClassifier is the slice of the fallback client the pipeline needs.
type FallbackClassifier interface {
	Classify(ctx context.Context, tenantID int64, input string, candidates []*store.IntentDefinition, examples []fewshot.Example) *fallback.MatchResult
	GenerateClarification(ctx context.Context, tenantID int64, input string, candidates []*store.IntentDefinition) string
}

// EmbeddingProvider is the slice of the embedding service the pipeline
// needs for complexity grading.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	IsAvailable() bool
}

// Config contains the configuration for the pipeline service.
type Config struct {
	// RuleConfidence is assigned to keyword/regex matches.
	RuleConfidence float64 // default 0.95
	// TopN bounds the candidate list passed downstream.
	TopN int // default 5
	// ComplexTopN replaces TopN when the input grades COMPLEX.
	ComplexTopN int // default 8
	// FewShotTarget is the requested example count for reranking.
	FewShotTarget int // default 5
	// DefaultCacheTTL applies to resolutions of intents without their own
	// cache TTL. Zero disables resolution caching.
	DefaultCacheTTL time.Duration
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		RuleConfidence:  0.95,
		TopN:            5,
		ComplexTopN:     8,
		FewShotTarget:   5,
		DefaultCacheTTL: time.Minute,
	}
}

const genericClarification = "抱歉，我没有理解您的意思，请换一种说法描述您的需求。"

// Service implements the resolution pipeline.
// Layer 1: keyword/regex matching, local and deterministic.
// Layer 2: semantic routing over cached intent vectors.
// Layer 3: LLM fallback, grounded by few-shot examples when reranking.
type Service struct {
	store      *store.Store
	matcher    *matcher.Matcher
	semantic   SemanticRouter
	selector   ExampleSelector
	fallback   FallbackClassifier
	learning   learning.Service
	agentic    *agentic.Router
	embedding  EmbeddingProvider
	complexity *complexity.Classifier
	cache      aicache.CacheService
	metrics    metrics.MetricsService
	config     Config
}

// Dependencies wires the pipeline's collaborators. Learning, complexity,
// cache and metrics are optional; the pipeline degrades without them.
type Dependencies struct {
	Store      *store.Store
	Semantic   SemanticRouter
	Selector   ExampleSelector
	Fallback   FallbackClassifier
	Learning   learning.Service
	Embedding  EmbeddingProvider
	Complexity *complexity.Classifier
	Cache      aicache.CacheService
	Metrics    metrics.MetricsService
}

// NewService creates the pipeline service.
func NewService(deps Dependencies, config Config) *Service {
	if config.RuleConfidence <= 0 {
		config.RuleConfidence = 0.95
	}
	if config.TopN <= 0 {
		config.TopN = 5
	}
	if config.ComplexTopN <= 0 {
		config.ComplexTopN = 8
	}
	if config.FewShotTarget <= 0 {
		config.FewShotTarget = 5
	}
	return &Service{
		store:      deps.Store,
		matcher:    matcher.NewMatcher(),
		semantic:   deps.Semantic,
		selector:   deps.Selector,
		fallback:   deps.Fallback,
		learning:   deps.Learning,
		agentic:    agentic.NewRouter(),
		embedding:  deps.Embedding,
		complexity: deps.Complexity,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		config:     config,
	}
}

// ResolveIntent classifies one user turn through the three layers. It
// always returns a usable resolution; the worst case is a generic
// clarification question.
func (s *Service) ResolveIntent(ctx context.Context, tenantID int64, input string) (*Resolution, error) {
	start := time.Now()
	normalized := matcher.Normalize(input)

	if cached, ok := s.cachedResolution(ctx, tenantID, normalized); ok {
		slog.Debug("intent resolved from cache",
			"tenant_id", tenantID,
			"input", truncate(input, 50),
			"intent_code", cached.IntentCode,
			"latency_ms", time.Since(start).Milliseconds())
		return cached, nil
	}

	intents, err := s.store.ListActiveIntents(ctx, tenantID)
	if err != nil {
		slog.Warn("failed to load active intents, degrading to clarification",
			"tenant_id", tenantID, "error", err)
		return s.finish(ctx, tenantID, input, normalized, start, &Resolution{
			Tier:          semantic.TierNeedFullLLM,
			Clarification: genericClarification,
		}), nil
	}

	// Layer 1: keyword/regex matching.
	if hit := s.matcher.Match(input, intents); hit != nil {
		resolution := &Resolution{
			Intent:     hit.Intent,
			IntentCode: hit.Intent.Code,
			Confidence: s.config.RuleConfidence,
			Method:     store.MatchMethodRule,
			Tier:       semantic.TierDirectExecute,
			Params:     hit.Params,
		}
		s.applySensitivity(resolution)
		s.learnAsync(tenantID, hit.Intent.Code, input)
		slog.Debug("intent resolved by rule matcher",
			"tenant_id", tenantID,
			"input", truncate(input, 50),
			"intent_code", hit.Intent.Code,
			"by_regex", hit.ByRegex,
			"latency_ms", time.Since(start).Milliseconds())
		return s.finish(ctx, tenantID, input, normalized, start, resolution), nil
	}

	// Layer 2: semantic routing. Complexity grading sizes the candidate
	// set and decides whether reranking is worth its latency.
	grade := s.grade(ctx, normalized)
	topN := s.config.TopN
	if grade == complexity.LabelComplex {
		topN = s.config.ComplexTopN
	}
	decision := s.semantic.Route(ctx, tenantID, normalized, topN)

	switch decision.Tier {
	case semantic.TierDirectExecute:
		resolution := &Resolution{
			Intent:     decision.Best.Intent,
			IntentCode: decision.Best.Intent.Code,
			Confidence: decision.Best.Score,
			Method:     store.MatchMethodVector,
			Tier:       semantic.TierDirectExecute,
		}
		s.applySensitivity(resolution)
		s.learnAsync(tenantID, resolution.IntentCode, input)
		slog.Debug("intent resolved by semantic router",
			"tenant_id", tenantID,
			"input", truncate(input, 50),
			"intent_code", resolution.IntentCode,
			"confidence", resolution.Confidence,
			"latency_ms", time.Since(start).Milliseconds())
		return s.finish(ctx, tenantID, input, normalized, start, resolution), nil

	case semantic.TierNeedReranking:
		return s.finish(ctx, tenantID, input, normalized, start,
			s.rerank(ctx, tenantID, input, normalized, grade, decision, start)), nil

	default:
		return s.finish(ctx, tenantID, input, normalized, start,
			s.fullFallback(ctx, tenantID, input, intents, start)), nil
	}
}

// rerank runs layer 3 for the uncertain middle tier: few-shot examples
// ground a fallback call restricted to the semantic candidates.
func (s *Service) rerank(ctx context.Context, tenantID int64, input, normalized string, grade complexity.Label, decision semantic.Decision, start time.Time) *Resolution {
	candidates := make([]*store.IntentDefinition, 0, len(decision.Candidates))
	for _, cand := range decision.Candidates {
		candidates = append(candidates, cand.Intent)
	}

	// Simple inputs skip example selection; the candidate list alone is
	// enough context for them.
	var examples []fewshot.Example
	if grade != complexity.LabelSimple && s.selector != nil {
		examples = s.selector.SelectExamples(ctx, tenantID, normalized, s.config.FewShotTarget)
	}

	result := s.fallback.Classify(ctx, tenantID, input, candidates, examples)
	if !result.Empty() && result.StrongSignal {
		resolution := &Resolution{
			Intent:               result.Intent,
			IntentCode:           result.IntentCode,
			Confidence:           result.Confidence,
			Method:               store.MatchMethodLLM,
			Tier:                 semantic.TierNeedReranking,
			RequiresConfirmation: result.RequiresConfirmation,
			Examples:             examples,
		}
		s.learnAsync(tenantID, resolution.IntentCode, input)
		slog.Debug("intent resolved by reranking",
			"tenant_id", tenantID,
			"input", truncate(input, 50),
			"intent_code", resolution.IntentCode,
			"confidence", resolution.Confidence,
			"examples", len(examples),
			"latency_ms", time.Since(start).Milliseconds())
		return resolution
	}

	question := s.fallback.GenerateClarification(ctx, tenantID, input, candidates)
	slog.Debug("reranking inconclusive, asking for clarification",
		"tenant_id", tenantID,
		"input", truncate(input, 50),
		"candidates", len(candidates),
		"latency_ms", time.Since(start).Milliseconds())
	return &Resolution{
		Tier:          semantic.TierNeedReranking,
		Clarification: question,
		Examples:      examples,
	}
}

// fullFallback runs layer 3 over every active intent and refines unknowns
// through the agentic sub-router.
func (s *Service) fullFallback(ctx context.Context, tenantID int64, input string, intents []*store.IntentDefinition, start time.Time) *Resolution {
	result := s.fallback.Classify(ctx, tenantID, input, intents, nil)
	if !result.Empty() {
		resolution := &Resolution{
			Intent:               result.Intent,
			IntentCode:           result.IntentCode,
			Confidence:           result.Confidence,
			Method:               store.MatchMethodLLM,
			Tier:                 semantic.TierNeedFullLLM,
			RequiresConfirmation: result.RequiresConfirmation,
		}
		s.learnAsync(tenantID, resolution.IntentCode, input)
		slog.Debug("intent resolved by full fallback",
			"tenant_id", tenantID,
			"input", truncate(input, 50),
			"intent_code", resolution.IntentCode,
			"confidence", resolution.Confidence,
			"latency_ms", time.Since(start).Milliseconds())
		return resolution
	}

	// Nothing operational matched: split the general-question bucket.
	sub := s.agentic.Route(input)
	resolution := &Resolution{
		Confidence: sub.Confidence,
		Method:     store.MatchMethodAgentic,
		Tier:       semantic.TierNeedFullLLM,
		Params:     sub.Params,
		Agentic:    sub,
	}
	if sub.NeedsClarification {
		resolution.Clarification = sub.Clarification
	}
	slog.Debug("request routed to agent capability",
		"tenant_id", tenantID,
		"input", truncate(input, 50),
		"sub_intent", sub.SubIntent,
		"confidence", sub.Confidence,
		"latency_ms", time.Since(start).Milliseconds())
	return resolution
}

// ConfirmResolution records positive user feedback. When recordID is zero
// only the learning signal is applied.
func (s *Service) ConfirmResolution(ctx context.Context, tenantID, recordID int64, intentCode, input string) error {
	if recordID > 0 {
		if err := s.store.ConfirmMatchRecord(ctx, recordID); err != nil {
			return err
		}
	}
	if s.learning != nil && intentCode != "" {
		if _, err := s.learning.LearnFromFeedback(ctx, tenantID, intentCode, input); err != nil {
			slog.Warn("feedback learning failed",
				"tenant_id", tenantID, "intent_code", intentCode, "error", err)
		}
	}
	return nil
}

// RefreshTenant rebuilds the tenant's semantic partition and drops its
// cached resolutions.
func (s *Service) RefreshTenant(ctx context.Context, tenantID int64) error {
	s.store.InvalidateIntentLists()
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, resolutionKeyPrefix(tenantID)+"*"); err != nil {
			slog.Debug("resolution cache invalidation failed", "tenant_id", tenantID, "error", err)
		}
	}
	return s.semantic.Refresh(ctx, tenantID)
}

// finish records the outcome, caches executable resolutions, and reports
// metrics. It returns the resolution unchanged.
func (s *Service) finish(ctx context.Context, tenantID int64, input, normalized string, start time.Time, resolution *Resolution) *Resolution {
	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordRoute(string(resolution.Method), string(resolution.Tier), elapsed, resolution.Resolved())
	}
	s.recordAsync(tenantID, input, resolution)
	s.cacheResolution(ctx, tenantID, normalized, resolution)
	return resolution
}

// recordAsync appends the match record off the request path.
func (s *Service) recordAsync(tenantID int64, input string, resolution *Resolution) {
	if resolution.IntentCode == "" {
		return
	}
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), timeout.BackgroundTimeout)
		defer cancel()
		if _, err := s.store.CreateMatchRecord(bgCtx, &store.MatchRecord{
			TenantID:   tenantID,
			UserInput:  input,
			IntentCode: resolution.IntentCode,
			Confidence: resolution.Confidence,
			Method:     resolution.Method,
		}); err != nil {
			slog.Warn("failed to record match", "tenant_id", tenantID, "error", err)
		}
	}()
}

// learnAsync feeds the learning loop off the request path.
func (s *Service) learnAsync(tenantID int64, intentCode, input string) {
	if s.learning == nil {
		return
	}
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), timeout.BackgroundTimeout)
		defer cancel()
		if _, err := s.learning.LearnFromMatch(bgCtx, tenantID, intentCode, input); err != nil {
			slog.Warn("background learning failed",
				"tenant_id", tenantID, "intent_code", intentCode, "error", err)
		}
	}()
}

// grade predicts the input's complexity, defaulting to MEDIUM whenever the
// classifier or the embedding service is unavailable.
func (s *Service) grade(ctx context.Context, normalized string) complexity.Label {
	if s.complexity == nil || s.embedding == nil || !s.embedding.IsAvailable() {
		return complexity.LabelMedium
	}
	vec, err := s.embedding.Embed(ctx, normalized)
	if err != nil {
		return complexity.LabelMedium
	}
	label, _, err := s.complexity.Predict(vec)
	if err != nil {
		return complexity.LabelMedium
	}
	return label
}

// applySensitivity forces confirmation on sensitive intents regardless of
// how confidently they matched.
func (s *Service) applySensitivity(resolution *Resolution) {
	if resolution.Intent == nil {
		return
	}
	switch resolution.Intent.Sensitivity {
	case store.SensitivityHigh, store.SensitivityCritical:
		resolution.RequiresConfirmation = true
	}
}

func (s *Service) cachedResolution(ctx context.Context, tenantID int64, normalized string) (*Resolution, bool) {
	if s.cache == nil || s.config.DefaultCacheTTL <= 0 {
		return nil, false
	}
	value, ok := s.cache.Get(ctx, resolutionKey(tenantID, normalized))
	if !ok {
		return nil, false
	}
	resolution, ok := value.(*Resolution)
	return resolution, ok
}

// cacheResolution stores executable resolutions only. Clarifications are
// conversational state and must not be replayed.
func (s *Service) cacheResolution(ctx context.Context, tenantID int64, normalized string, resolution *Resolution) {
	if s.cache == nil || s.config.DefaultCacheTTL <= 0 || !resolution.Resolved() {
		return
	}
	ttl := s.config.DefaultCacheTTL
	if resolution.Intent != nil && resolution.Intent.CacheTTLSec > 0 {
		ttl = time.Duration(resolution.Intent.CacheTTLSec) * time.Second
	}
	if err := s.cache.Set(ctx, resolutionKey(tenantID, normalized), resolution, ttl); err != nil {
		slog.Debug("failed to cache resolution", "tenant_id", tenantID, "error", err)
	}
}

func resolutionKey(tenantID int64, normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return resolutionKeyPrefix(tenantID) + hex.EncodeToString(sum[:8])
}

func resolutionKeyPrefix(tenantID int64) string {
	return "resolve:" + strconv.FormatInt(tenantID, 10) + ":"
}

// truncate shortens a string for log output without splitting a rune.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

var _ RouterService = (*Service)(nil)
