package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CachedEmbeddingService memoizes embeddings per text so identical lookups
// within a request, and across intent-vector refreshes, hit the backend
// only once. Concurrent lookups for the same text are collapsed with
// singleflight.
type CachedEmbeddingService struct {
	inner EmbeddingService

	mu       sync.RWMutex
	cache    map[string][]float32
	order    []string
	maxItems int

	group singleflight.Group
}

// NewCachedEmbeddingService wraps an embedding service with memoization.
func NewCachedEmbeddingService(inner EmbeddingService, maxItems int) *CachedEmbeddingService {
	if maxItems <= 0 {
		maxItems = 2048
	}
	return &CachedEmbeddingService{
		inner:    inner,
		cache:    make(map[string][]float32),
		maxItems: maxItems,
	}
}

func (s *CachedEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embeddingKey(text)

	s.mu.RLock()
	vec, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return vec, nil
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		vec, err := s.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		s.put(key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

func (s *CachedEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	missing := []int{}
	missingTexts := []string{}

	s.mu.RLock()
	for i, text := range texts {
		if vec, ok := s.cache[embeddingKey(text)]; ok {
			vectors[i] = vec
		} else {
			missing = append(missing, i)
			missingTexts = append(missingTexts, text)
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return vectors, nil
	}

	fetched, err := s.inner.EmbedBatch(ctx, missingTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missing {
		if j < len(fetched) {
			vectors[idx] = fetched[j]
			s.put(embeddingKey(texts[idx]), fetched[j])
		}
	}
	return vectors, nil
}

func (s *CachedEmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

func (s *CachedEmbeddingService) IsAvailable() bool {
	return s.inner.IsAvailable()
}

// Size returns the number of memoized vectors.
func (s *CachedEmbeddingService) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// put inserts a vector, evicting the oldest entries past capacity.
func (s *CachedEmbeddingService) put(key string, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cache[key]; exists {
		return
	}
	for len(s.cache) >= s.maxItems && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.cache, oldest)
	}
	s.cache[key] = vec
	s.order = append(s.order, key)
}

func embeddingKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

var _ EmbeddingService = (*CachedEmbeddingService)(nil)
