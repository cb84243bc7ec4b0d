// Package semantic implements the vector-similarity fast path of the
// intent pipeline: cached per-tenant intent vectors, cosine scoring and
// the three-tier escalation decision.
package semantic

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hanbai/mescopilot/plugin/ai"
	"github.com/hanbai/mescopilot/store"
)

// GlobalTenantID is the partition key for platform-wide intents.
const GlobalTenantID int64 = 0

// IntentSource supplies the active intent definitions for one partition.
type IntentSource interface {
	ListIntentDefinitions(ctx context.Context, find *store.FindIntentDefinition) ([]*store.IntentDefinition, error)
}

// Config holds the router's tunables. The thresholds are deployment
// configuration, not constants: they are recalibrated whenever the
// embedding model changes.
type Config struct {
	DirectExecuteThreshold float64 // default 0.88
	RerankingThreshold     float64 // default 0.70
	TopN                   int     // default 5
}

// DefaultConfig returns the default router configuration.
func DefaultConfig() Config {
	return Config{
		DirectExecuteThreshold: 0.88,
		RerankingThreshold:     0.70,
		TopN:                   5,
	}
}

// partition is one tenant's immutable vector snapshot. Refresh builds a
// brand-new partition and swaps the pointer, so concurrent readers never
// observe a partially populated map.
type partition struct {
	intents map[string]*store.IntentDefinition
	vectors map[string][]float32
	builtAt time.Time
}

// Router is the semantic fast path. One partition per tenant key plus the
// global partition; partitions refresh independently so one tenant's
// rebuild never blocks routing for another.
type Router struct {
	embedding ai.EmbeddingService
	source    IntentSource
	config    Config

	mu         sync.RWMutex
	partitions map[int64]*partition

	group singleflight.Group
}

// NewRouter creates a semantic router.
func NewRouter(embedding ai.EmbeddingService, source IntentSource, config Config) *Router {
	if config.DirectExecuteThreshold <= 0 {
		config.DirectExecuteThreshold = 0.88
	}
	if config.RerankingThreshold <= 0 {
		config.RerankingThreshold = 0.70
	}
	if config.TopN <= 0 {
		config.TopN = 5
	}
	return &Router{
		embedding:  embedding,
		source:     source,
		config:     config,
		partitions: make(map[int64]*partition),
	}
}

// Route embeds the input once, scores it against the effective intent set
// (global ∪ tenant, tenant entries shadowing global codes) and classifies
// the top score into one of three tiers. Routing never propagates an
// error: any failure degrades to NEED_FULL_LLM with score 0.
func (r *Router) Route(ctx context.Context, tenantID int64, input string, topN int) Decision {
	start := time.Now()
	if topN <= 0 {
		topN = r.config.TopN
	}

	if r.embedding == nil || !r.embedding.IsAvailable() {
		slog.Debug("embedding service unavailable, degrading to full LLM tier")
		return needFullLLM(nil, 0, time.Since(start))
	}

	inputVec, err := r.embedding.Embed(ctx, input)
	if err != nil {
		slog.Warn("input embedding failed, degrading to full LLM tier", "error", err)
		return needFullLLM(nil, 0, time.Since(start))
	}

	global := r.getOrBuild(ctx, GlobalTenantID)
	tenant := global
	if tenantID != GlobalTenantID {
		tenant = r.getOrBuild(ctx, tenantID)
	}

	// Effective set: tenant entries override global entries of the same code.
	candidates := make([]Candidate, 0, 16)
	seen := make(map[string]bool)
	score := func(p *partition, skipSeen bool) {
		if p == nil {
			return
		}
		for code, vec := range p.vectors {
			if skipSeen && seen[code] {
				continue
			}
			seen[code] = true
			candidates = append(candidates, Candidate{
				Intent: p.intents[code],
				Score:  CosineSimilarity(inputVec, vec),
			})
		}
	}
	if tenantID != GlobalTenantID {
		score(tenant, false)
		score(global, true)
	} else {
		score(global, false)
	}

	if len(candidates) == 0 {
		return needFullLLM(nil, 0, time.Since(start))
	}

	// Single consistent snapshot of scores: sort once, decide once.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	best := candidates[0]
	elapsed := time.Since(start)
	switch {
	case best.Score >= r.config.DirectExecuteThreshold:
		return directExecute(best, candidates, elapsed)
	case best.Score >= r.config.RerankingThreshold:
		return needReranking(best, candidates, elapsed)
	default:
		return needFullLLM(candidates, best.Score, elapsed)
	}
}

// Refresh rebuilds one tenant's partition from the intent store. Call it
// after any intent's keyword list changes. If the rebuild fails the stale
// partition is kept: serving stale-but-present vectors beats serving none.
func (r *Router) Refresh(ctx context.Context, tenantID int64) error {
	fresh, err := r.build(ctx, tenantID)
	if err != nil {
		slog.Warn("intent vector refresh failed, keeping stale partition",
			"tenant_id", tenantID, "error", err)
		return err
	}

	r.mu.Lock()
	r.partitions[tenantID] = fresh
	r.mu.Unlock()
	return nil
}

// PartitionSize returns the number of vectors cached for a tenant. Used
// for observability and tests.
func (r *Router) PartitionSize(tenantID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.partitions[tenantID]; ok {
		return len(p.vectors)
	}
	return 0
}

// getOrBuild returns the tenant's partition, building it lazily on first
// miss. Concurrent first misses for the same tenant collapse into one
// build via singleflight; a failed build yields an empty partition for
// this request without caching the failure.
func (r *Router) getOrBuild(ctx context.Context, tenantID int64) *partition {
	r.mu.RLock()
	p, ok := r.partitions[tenantID]
	r.mu.RUnlock()
	if ok {
		return p
	}

	result, err, _ := r.group.Do(strconv.FormatInt(tenantID, 10), func() (any, error) {
		fresh, err := r.build(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.partitions[tenantID] = fresh
		r.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		slog.Warn("lazy partition build failed", "tenant_id", tenantID, "error", err)
		return nil
	}
	return result.(*partition)
}

// build constructs a brand-new partition for the tenant. The returned map
// is never mutated after build, which is what makes the copy-then-swap in
// Refresh safe for concurrent readers.
func (r *Router) build(ctx context.Context, tenantID int64) (*partition, error) {
	active := true
	defs, err := r.source.ListIntentDefinitions(ctx, &store.FindIntentDefinition{
		TenantID: &tenantID,
		Active:   &active,
	})
	if err != nil {
		return nil, err
	}

	p := &partition{
		intents: make(map[string]*store.IntentDefinition, len(defs)),
		vectors: make(map[string][]float32, len(defs)),
		builtAt: time.Now(),
	}
	if len(defs) == 0 {
		return p, nil
	}

	texts := make([]string, len(defs))
	for i, def := range defs {
		texts[i] = def.EmbeddingText()
	}
	vectors, err := r.embedding.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, def := range defs {
		if i >= len(vectors) {
			break
		}
		p.intents[def.Code] = def
		p.vectors[def.Code] = vectors[i]
	}
	return p, nil
}
