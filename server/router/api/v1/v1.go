// Package v1 exposes the intent pipeline over HTTP.
package v1

import (
	"context"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/hanbai/mescopilot/internal/profile"
	"github.com/hanbai/mescopilot/plugin/ai/metrics"
	"github.com/hanbai/mescopilot/plugin/ai/router"
	"github.com/hanbai/mescopilot/server/middleware"
	"github.com/hanbai/mescopilot/store"
)

// ClassifierProber probes the external classifier service.
type ClassifierProber interface {
	Health(ctx context.Context) bool
}

// APIV1Service wires the v1 REST endpoints.
type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Router  router.RouterService
	Metrics metrics.MetricsService
	// Prober is optional; without it the health endpoint reports the
	// classifier as not configured.
	Prober ClassifierProber

	limiter *middleware.RateLimiter
}

// NewAPIV1Service creates the v1 API service.
func NewAPIV1Service(p *profile.Profile, s *store.Store, r router.RouterService, m metrics.MetricsService) *APIV1Service {
	return &APIV1Service{
		Profile: p,
		Store:   s,
		Router:  r,
		Metrics: m,
		limiter: middleware.NewRateLimiter(10, 20),
	}
}

// Register mounts the v1 routes on the echo instance.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	group := echoServer.Group("/api/v1")
	group.Use(echomw.CORS())

	group.POST("/intent/resolve", s.ResolveIntent)
	group.POST("/intent/feedback", s.SubmitFeedback)
	group.POST("/intent/refresh", s.RefreshIntents)
	group.GET("/intent/stats", s.GetRoutingStats)
	group.GET("/intent/health", s.GetIntentHealth)
}
