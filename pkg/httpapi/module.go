package httpapi

import (
	"fmt"
	"net/http"

	"offerwall/pkg/config"
	"offerwall/pkg/health"
	"offerwall/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewEngine,
		NewRouter,
		func(e *gin.Engine) http.Handler { return e },
	),
	fx.Invoke(registerHealthEndpoint),
)

// Router exposes the route groups services mount their handlers on.
type Router struct {
	// Root is for provider facing endpoints that answer outside /api.
	Root gin.IRouter
	// Public is /api/v1 without authentication.
	Public gin.IRouter
	// Private is /api/v1 behind the bearer token check.
	Private gin.IRouter
}

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.Error(),
	)
	return engine
}

func NewRouter(cfg *config.Config, engine *gin.Engine) (*Router, error) {
	if err := middleware.CheckSecret(cfg.Auth.JWTSecret); err != nil {
		return nil, fmt.Errorf("AUTH.JWT_SECRET: %w", err)
	}

	v1 := engine.Group("/api/v1")
	return &Router{
		Root:    engine,
		Public:  v1,
		Private: v1.Group("", middleware.Auth(cfg.Auth.JWTSecret, cfg.Auth.Issuer)),
	}, nil
}

func registerHealthEndpoint(engine *gin.Engine, h health.HealthService) {
	engine.GET("/healthz", h.Liveness)
	engine.GET("/readyz", h.Readiness)
}
