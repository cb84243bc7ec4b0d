// Package server hosts the HTTP server and wires the resolution pipeline.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hanbai/mescopilot/internal/profile"
	"github.com/hanbai/mescopilot/plugin/ai"
	aicache "github.com/hanbai/mescopilot/plugin/ai/cache"
	"github.com/hanbai/mescopilot/plugin/ai/complexity"
	"github.com/hanbai/mescopilot/plugin/ai/fallback"
	"github.com/hanbai/mescopilot/plugin/ai/fewshot"
	"github.com/hanbai/mescopilot/plugin/ai/learning"
	"github.com/hanbai/mescopilot/plugin/ai/metrics"
	"github.com/hanbai/mescopilot/plugin/ai/router"
	"github.com/hanbai/mescopilot/plugin/ai/semantic"
	apiv1 "github.com/hanbai/mescopilot/server/router/api/v1"
	"github.com/hanbai/mescopilot/store"
)

// complexityModelFile is the optional pre-trained complexity model in the
// data directory.
const complexityModelFile = "complexity_model.json"

// Server is the mescopilot HTTP server.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	cache      *aicache.Service
	metrics    *metrics.Service
	fallback   *fallback.Client
}

// NewServer creates the server and wires the full pipeline.
func NewServer(ctx context.Context, p *profile.Profile, s *store.Store) (*Server, error) {
	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomw.Recover())

	srv := &Server{
		Profile:    p,
		Store:      s,
		echoServer: echoServer,
	}

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	routerService, err := srv.buildPipeline(ctx, p, s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build resolution pipeline")
	}

	apiService := apiv1.NewAPIV1Service(p, s, routerService, srv.metrics)
	apiService.Prober = srv.fallback
	apiService.Register(echoServer)

	return srv, nil
}

// buildPipeline constructs the pipeline's collaborators from the profile.
func (srv *Server) buildPipeline(ctx context.Context, p *profile.Profile, s *store.Store) (router.RouterService, error) {
	aiConfig := ai.NewConfigFromProfile(p)
	if err := aiConfig.Validate(); err != nil {
		return nil, err
	}

	var embedding ai.EmbeddingService
	if aiConfig.Enabled {
		inner, err := ai.NewEmbeddingService(&aiConfig.Embedding)
		if err != nil {
			return nil, err
		}
		embedding = ai.NewCachedEmbeddingService(inner, 2048)
	} else {
		slog.Warn("AI disabled, semantic routing will degrade to keyword matching and fallback")
		embedding = ai.NewDisabledEmbeddingService()
	}

	srv.cache = aicache.NewService(aicache.DefaultServiceConfig())
	srv.metrics = metrics.NewService(24 * time.Hour)

	semanticRouter := semantic.NewRouter(embedding, s, semantic.Config{
		DirectExecuteThreshold: p.RouteDirectExecuteThreshold,
		RerankingThreshold:     p.RouteRerankingThreshold,
		TopN:                   p.RouteTopN,
	})
	selector := fewshot.NewSelector(embedding, s, fewshot.Config{
		Lambda:            p.FewShotLambda,
		MinSimilarity:     p.FewShotMinSimilarity,
		PoolSize:          p.FewShotPoolSize,
		MinCount:          p.FewShotMinCount,
		MaxCount:          p.FewShotMaxCount,
		RecordWindowDays:  p.LearnRecordWindowDays,
		RecordWindowLimit: p.LearnRecordWindowLimit,
	})

	srv.fallback = fallback.NewClient(fallback.DefaultConfig(p.AIClassifierBaseURL))
	if p.AIClassifierBaseURL != "" && !srv.fallback.Health(ctx) {
		slog.Warn("fallback classifier service unhealthy at startup",
			"base_url", p.AIClassifierBaseURL)
	}

	learningService := learning.NewService(s, embedding, srv.cache, learning.Config{
		MaxPerInput:          p.LearnMaxPerInput,
		DefaultMaxPerIntent:  p.LearnMaxPerIntent,
		DefaultInitialWeight: p.LearnInitialWeight,
	})

	return router.NewService(router.Dependencies{
		Store:      s,
		Semantic:   semanticRouter,
		Selector:   selector,
		Fallback:   srv.fallback,
		Learning:   learningService,
		Embedding:  embedding,
		Complexity: loadComplexityModel(p.Data),
		Cache:      srv.cache,
		Metrics:    srv.metrics,
	}, router.Config{
		TopN:            p.RouteTopN,
		FewShotTarget:   p.FewShotMinCount,
		DefaultCacheTTL: time.Minute,
	}), nil
}

// loadComplexityModel reads a pre-trained model from the data directory.
// A missing model just disables complexity grading.
func loadComplexityModel(dataDir string) *complexity.Classifier {
	data, err := os.ReadFile(filepath.Join(dataDir, complexityModelFile))
	if err != nil {
		return nil
	}
	model, err := complexity.Unmarshal(data)
	if err != nil {
		slog.Warn("ignoring malformed complexity model", "error", err)
		return nil
	}
	return model
}

// Start begins serving requests.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	return s.echoServer.Start(address)
}

// Shutdown gracefully stops the server and releases resources.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.metrics != nil {
		s.metrics.Close()
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("mescopilot stopped properly")
}
