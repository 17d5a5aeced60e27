package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/accountd/internal/app"
	iauth "github.com/charlesng35/accountd/internal/auth"
	"github.com/charlesng35/accountd/internal/handlers"
	"github.com/charlesng35/accountd/internal/middleware"
	"github.com/charlesng35/accountd/internal/monitoring"
	"github.com/charlesng35/accountd/internal/services"
)

// Dependencies are the services the HTTP surface is built from.
type Dependencies struct {
	Accounts *services.AccountService
	Tokens   *iauth.TokenIssuer
	// Health is optional. Without it health routes report success with no checks.
	Health *monitoring.HealthManager
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}
	if deps.Accounts == nil {
		return nil, errors.New("account service must be provided")
	}
	if deps.Tokens == nil {
		return nil, errors.New("token issuer must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	authHandler, err := handlers.NewAuthHandler(deps.Accounts)
	if err != nil {
		return nil, err
	}
	userHandler, err := handlers.NewUserHandler(deps.Accounts)
	if err != nil {
		return nil, err
	}

	registerHealthRoutes(r, cfg, handlers.NewHealthHandler(deps.Health))

	api := r.Group("/api")
	requireAuth := middleware.Auth(deps.Tokens)

	registerAuthRoutes(api, authHandler, requireAuth)
	registerUserRoutes(api, userHandler, deps.Accounts, requireAuth)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
