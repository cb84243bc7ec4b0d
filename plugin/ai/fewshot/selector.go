// Package fewshot selects grounding examples for uncertain classifications
// using Maximal Marginal Relevance over learned expressions and confirmed
// match records.
package fewshot

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hanbai/mescopilot/plugin/ai"
	"github.com/hanbai/mescopilot/plugin/ai/semantic"
	"github.com/hanbai/mescopilot/store"
)

// Provenance says which pool an example came from.
type Provenance string

const (
	ProvenanceLearned Provenance = "learned_expression"
	ProvenanceRecord  Provenance = "match_record"
)

// Example is one selected few-shot example.
type Example struct {
	Text       string
	IntentCode string
	// Relevance is cosine similarity to the query input.
	Relevance float64
	// Diversity is 1 - max similarity to the examples selected before it.
	Diversity  float64
	Provenance Provenance
}

// ExampleSource is the store access the selector needs.
type ExampleSource interface {
	SearchLearnedExpressionsByVector(ctx context.Context, tenantID int64, vector []float32, limit int) ([]*store.LearnedExpressionWithScore, error)
	ListMatchRecords(ctx context.Context, find *store.FindMatchRecord) ([]*store.MatchRecord, error)
}

// Config holds the selector's tunables.
type Config struct {
	// Lambda balances relevance against diversity. 1.0 is pure relevance.
	Lambda float64 // default 0.7
	// MinSimilarity gates pool admission.
	MinSimilarity float64 // default 0.55
	PoolSize      int     // default 30
	// MinCount/MaxCount clamp the caller's requested example count.
	MinCount          int // default 5
	MaxCount          int // default 7
	RecordWindowDays  int // default 30
	RecordWindowLimit int // default 50

	// Near-tie bonuses favouring higher-trust examples.
	VerifiedBonus float64 // default 0.05
	HitCountBonus float64 // default 0.02, applied at >= HitCountFloor hits
	HitCountFloor int     // default 5
}

// DefaultConfig returns the default selector configuration.
func DefaultConfig() Config {
	return Config{
		Lambda:            0.7,
		MinSimilarity:     0.55,
		PoolSize:          30,
		MinCount:          5,
		MaxCount:          7,
		RecordWindowDays:  30,
		RecordWindowLimit: 50,
		VerifiedBonus:     0.05,
		HitCountBonus:     0.02,
		HitCountFloor:     5,
	}
}

// Selector picks diverse, relevant examples with greedy MMR.
type Selector struct {
	embedding ai.EmbeddingService
	source    ExampleSource
	config    Config
}

// NewSelector creates a selector.
func NewSelector(embedding ai.EmbeddingService, source ExampleSource, config Config) *Selector {
	def := DefaultConfig()
	if config.Lambda <= 0 {
		config.Lambda = def.Lambda
	}
	if config.MinSimilarity <= 0 {
		config.MinSimilarity = def.MinSimilarity
	}
	if config.PoolSize <= 0 {
		config.PoolSize = def.PoolSize
	}
	if config.MinCount <= 0 {
		config.MinCount = def.MinCount
	}
	if config.MaxCount <= 0 {
		config.MaxCount = def.MaxCount
	}
	if config.RecordWindowDays <= 0 {
		config.RecordWindowDays = def.RecordWindowDays
	}
	if config.RecordWindowLimit <= 0 {
		config.RecordWindowLimit = def.RecordWindowLimit
	}
	if config.VerifiedBonus <= 0 {
		config.VerifiedBonus = def.VerifiedBonus
	}
	if config.HitCountBonus <= 0 {
		config.HitCountBonus = def.HitCountBonus
	}
	if config.HitCountFloor <= 0 {
		config.HitCountFloor = def.HitCountFloor
	}
	return &Selector{embedding: embedding, source: source, config: config}
}

type candidate struct {
	text       string
	intentCode string
	vector     []float32
	relevance  float64
	verified   bool
	hitCount   int
	provenance Provenance
}

// SelectExamples returns up to targetCount examples for the input.
// targetCount is clamped to the configured [MinCount, MaxCount] window.
// Degenerate cases are not errors: an empty pool or an unavailable
// embedding service yields an empty slice.
func (s *Selector) SelectExamples(ctx context.Context, tenantID int64, input string, targetCount int) []Example {
	if targetCount < s.config.MinCount {
		targetCount = s.config.MinCount
	}
	if targetCount > s.config.MaxCount {
		targetCount = s.config.MaxCount
	}

	if s.embedding == nil || !s.embedding.IsAvailable() {
		slog.Debug("embedding unavailable, skipping few-shot selection")
		return nil
	}
	queryVec, err := s.embedding.Embed(ctx, input)
	if err != nil {
		slog.Debug("query embedding failed, skipping few-shot selection", "error", err)
		return nil
	}

	pool := s.buildPool(ctx, tenantID, queryVec)
	if len(pool) == 0 {
		return nil
	}

	return s.selectMMR(pool, targetCount)
}

// buildPool gathers candidates from learned expressions and confirmed
// match records, deduplicated by normalized text, sorted by relevance and
// truncated to the pool size.
func (s *Selector) buildPool(ctx context.Context, tenantID int64, queryVec []float32) []candidate {
	pool := make([]candidate, 0, s.config.PoolSize)
	seen := make(map[string]bool)

	scored, err := s.source.SearchLearnedExpressionsByVector(ctx, tenantID, queryVec, s.config.PoolSize)
	if err != nil {
		slog.Debug("learned expression search failed", "error", err)
	}
	for _, item := range scored {
		if float64(item.Score) < s.config.MinSimilarity {
			continue
		}
		key := matcherNormalize(item.Expression.Phrase)
		if seen[key] {
			continue
		}
		seen[key] = true
		pool = append(pool, candidate{
			text:       item.Expression.Phrase,
			intentCode: item.Expression.IntentCode,
			vector:     item.Expression.Embedding,
			relevance:  float64(item.Score),
			verified:   item.Expression.Verified,
			hitCount:   item.Expression.HitCount,
			provenance: ProvenanceLearned,
		})
	}

	confirmed := true
	since := time.Now().AddDate(0, 0, -s.config.RecordWindowDays).Unix()
	records, err := s.source.ListMatchRecords(ctx, &store.FindMatchRecord{
		TenantID:      &tenantID,
		UserConfirmed: &confirmed,
		CreatedAfter:  &since,
		Limit:         s.config.RecordWindowLimit,
	})
	if err != nil {
		slog.Debug("match record query failed", "error", err)
	}
	if len(records) > 0 {
		texts := make([]string, len(records))
		for i, rec := range records {
			texts[i] = rec.UserInput
		}
		vectors, err := s.embedding.EmbedBatch(ctx, texts)
		if err != nil {
			slog.Debug("record embedding failed", "error", err)
			vectors = nil
		}
		for i, rec := range records {
			if vectors == nil || i >= len(vectors) {
				break
			}
			relevance := semantic.CosineSimilarity(queryVec, vectors[i])
			if relevance < s.config.MinSimilarity {
				continue
			}
			key := matcherNormalize(rec.UserInput)
			if seen[key] {
				continue
			}
			seen[key] = true
			pool = append(pool, candidate{
				text:       rec.UserInput,
				intentCode: rec.IntentCode,
				vector:     vectors[i],
				relevance:  relevance,
				provenance: ProvenanceRecord,
			})
		}
	}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].relevance > pool[j].relevance })
	if len(pool) > s.config.PoolSize {
		pool = pool[:s.config.PoolSize]
	}
	return pool
}

// selectMMR runs the greedy MMR loop:
//
//	MMR(d) = λ·relevance(d) − (1−λ)·max sim(d, s) over selected s
//
// plus small additive bonuses for verified and frequently-hit candidates,
// which break near-ties toward higher-trust examples without overwhelming
// the relevance/diversity balance.
func (s *Selector) selectMMR(pool []candidate, targetCount int) []Example {
	selected := make([]Example, 0, targetCount)
	selectedVecs := make([][]float32, 0, targetCount)
	used := make([]bool, len(pool))

	for len(selected) < targetCount {
		bestIdx := -1
		bestScore := 0.0
		bestMaxSim := 0.0

		for i, cand := range pool {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, vec := range selectedVecs {
				if sim := semantic.CosineSimilarity(cand.vector, vec); sim > maxSim {
					maxSim = sim
				}
			}
			score := s.config.Lambda*cand.relevance - (1-s.config.Lambda)*maxSim
			if cand.verified {
				score += s.config.VerifiedBonus
			}
			if cand.hitCount >= s.config.HitCountFloor {
				score += s.config.HitCountBonus
			}
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
				bestMaxSim = maxSim
			}
		}
		if bestIdx == -1 {
			break
		}

		used[bestIdx] = true
		cand := pool[bestIdx]
		selected = append(selected, Example{
			Text:       cand.text,
			IntentCode: cand.intentCode,
			Relevance:  cand.relevance,
			Diversity:  1 - bestMaxSim,
			Provenance: cand.provenance,
		})
		selectedVecs = append(selectedVecs, cand.vector)
	}
	return selected
}

func matcherNormalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
