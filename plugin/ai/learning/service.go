// Package learning closes the feedback loop: confirmed resolutions feed new
// keywords back into intent definitions and new phrases into the learned
// expression table, within per-tenant caps.
package learning

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	aicache "github.com/hanbai/mescopilot/plugin/ai/cache"
	"github.com/hanbai/mescopilot/store"
)

// Service learns keywords and expressions from resolution outcomes.
type Service interface {
	// LearnFromMatch records an automatic (unconfirmed) learning signal.
	// Returns the number of keywords added.
	LearnFromMatch(ctx context.Context, tenantID int64, intentCode, input string) (int, error)

	// LearnFromFeedback records a user-confirmed signal. Confirmed phrases
	// are stored as verified expressions and their keywords carry the
	// feedback provenance.
	LearnFromFeedback(ctx context.Context, tenantID int64, intentCode, input string) (int, error)
}

// EmbeddingProvider is the slice of the embedding service learning needs.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	IsAvailable() bool
}

// Config holds the learning loop's tunables.
type Config struct {
	// MaxPerInput caps how many keywords a single utterance may contribute.
	MaxPerInput int // default 3
	// DefaultMaxPerIntent applies when a tenant has no stored config.
	DefaultMaxPerIntent int // default 30
	// DefaultInitialWeight applies when a tenant has no stored config.
	DefaultInitialWeight float64 // default 0.6
	// StopWords overrides the built-in stop word set when non-nil.
	StopWords map[string]struct{}
}

// DefaultConfig returns the default learning configuration.
func DefaultConfig() Config {
	return Config{
		MaxPerInput:          3,
		DefaultMaxPerIntent:  30,
		DefaultInitialWeight: 0.6,
	}
}

type service struct {
	store     *store.Store
	embedder  EmbeddingProvider
	cache     aicache.CacheService
	config    Config
	stopWords map[string]struct{}
}

// NewService creates the learning service. The cache may be nil when no
// resolution cache is in use.
func NewService(s *store.Store, embedder EmbeddingProvider, cache aicache.CacheService, config Config) Service {
	if config.MaxPerInput <= 0 {
		config.MaxPerInput = 3
	}
	if config.DefaultMaxPerIntent <= 0 {
		config.DefaultMaxPerIntent = 30
	}
	if config.DefaultInitialWeight <= 0 {
		config.DefaultInitialWeight = 0.6
	}
	stopWords := config.StopWords
	if stopWords == nil {
		stopWords = defaultStopWords
	}
	return &service{
		store:     s,
		embedder:  embedder,
		cache:     cache,
		config:    config,
		stopWords: stopWords,
	}
}

func (s *service) LearnFromMatch(ctx context.Context, tenantID int64, intentCode, input string) (int, error) {
	return s.learn(ctx, tenantID, intentCode, input, store.KeywordSourceAutoLearned, false)
}

func (s *service) LearnFromFeedback(ctx context.Context, tenantID int64, intentCode, input string) (int, error) {
	return s.learn(ctx, tenantID, intentCode, input, store.KeywordSourceFeedbackLearned, true)
}

func (s *service) learn(ctx context.Context, tenantID int64, intentCode, input string, source store.KeywordSource, verified bool) (int, error) {
	cfg, err := s.store.GetTenantConfig(ctx, tenantID, store.TenantConfig{
		AutoLearnEnabled:     true,
		MaxKeywordsPerIntent: s.config.DefaultMaxPerIntent,
		InitialKeywordWeight: s.config.DefaultInitialWeight,
	})
	if err != nil {
		return 0, err
	}
	// The tenant flag gates all learning, feedback included.
	if !cfg.AutoLearnEnabled {
		return 0, nil
	}

	def, err := s.findIntent(ctx, tenantID, intentCode)
	if err != nil || def == nil {
		return 0, err
	}

	added := s.learnKeywords(ctx, tenantID, def, input, source, cfg)
	s.storeExpression(ctx, tenantID, intentCode, input, verified, cfg.InitialKeywordWeight)

	if added > 0 || verified {
		s.invalidate(ctx, tenantID)
	}
	return added, nil
}

// learnKeywords extracts candidate keywords from the input and appends them
// to the intent definition, honoring the per-input and per-intent caps.
// The per-intent cap is a silent stop, not an error.
func (s *service) learnKeywords(ctx context.Context, tenantID int64, def *store.IntentDefinition, input string, source store.KeywordSource, cfg *store.TenantConfig) int {
	var fresh []string
	seen := make(map[string]struct{})
	for _, token := range tokenize(input) {
		if !eligibleKeyword(token, s.stopWords) {
			continue
		}
		lower := strings.ToLower(token)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		if def.HasKeyword(token) {
			continue
		}
		fresh = append(fresh, token)
		if len(fresh) >= s.config.MaxPerInput {
			break
		}
	}
	if len(fresh) == 0 {
		return 0
	}

	room := cfg.MaxKeywordsPerIntent - len(def.Keywords)
	if room <= 0 {
		slog.Debug("keyword cap reached, skipping learning",
			"tenant_id", tenantID, "intent_code", def.Code, "cap", cfg.MaxKeywordsPerIntent)
		return 0
	}
	if len(fresh) > room {
		fresh = fresh[:room]
	}

	updated := append(append([]string{}, def.Keywords...), fresh...)
	if err := s.store.UpdateIntentKeywords(ctx, &store.UpdateIntentKeywords{
		ID:       def.ID,
		Keywords: updated,
	}); err != nil {
		slog.Warn("failed to persist learned keywords",
			"tenant_id", tenantID, "intent_code", def.Code, "error", err)
		return 0
	}

	for _, kw := range fresh {
		if _, err := s.store.UpsertKeywordEffectiveness(ctx, &store.KeywordEffectivenessRecord{
			TenantID:   tenantID,
			IntentCode: def.Code,
			Keyword:    kw,
			Source:     source,
			Weight:     cfg.InitialKeywordWeight,
		}); err != nil {
			slog.Warn("failed to record keyword effectiveness",
				"tenant_id", tenantID, "keyword", kw, "error", err)
		}
	}

	slog.Debug("learned keywords",
		"tenant_id", tenantID, "intent_code", def.Code, "count", len(fresh))
	return len(fresh)
}

// storeExpression upserts the full utterance as a learned expression so the
// semantic layer and few-shot selector benefit from it. Best effort.
func (s *service) storeExpression(ctx context.Context, tenantID int64, intentCode, input string, verified bool, weight float64) {
	phrase := strings.TrimSpace(input)
	if phrase == "" {
		return
	}

	var embedding []float32
	if s.embedder != nil && s.embedder.IsAvailable() {
		vec, err := s.embedder.Embed(ctx, phrase)
		if err != nil {
			slog.Debug("expression embedding failed, storing without vector", "error", err)
		} else {
			embedding = vec
		}
	}

	if _, err := s.store.UpsertLearnedExpression(ctx, &store.LearnedExpression{
		TenantID:   tenantID,
		IntentCode: intentCode,
		Phrase:     phrase,
		Weight:     weight,
		Verified:   verified,
		HitCount:   1,
		Embedding:  embedding,
	}); err != nil {
		slog.Warn("failed to store learned expression",
			"tenant_id", tenantID, "intent_code", intentCode, "error", err)
	}
}

// invalidate drops the tenant's cached resolutions so subsequent requests
// see the new keywords. Intent list caches are invalidated by the store on
// keyword update already.
func (s *service) invalidate(ctx context.Context, tenantID int64) {
	if s.cache == nil {
		return
	}
	pattern := "resolve:" + strconv.FormatInt(tenantID, 10) + ":*"
	if err := s.cache.Invalidate(ctx, pattern); err != nil {
		slog.Debug("resolution cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
}

func (s *service) findIntent(ctx context.Context, tenantID int64, intentCode string) (*store.IntentDefinition, error) {
	defs, err := s.store.ListActiveIntents(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if def.Code == intentCode {
			return def, nil
		}
	}
	return nil, nil
}
