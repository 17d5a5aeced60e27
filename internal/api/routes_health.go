package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accountd/internal/app"
	"github.com/charlesng35/accountd/internal/handlers"
	"github.com/charlesng35/accountd/pkg/errors"
	"github.com/charlesng35/accountd/pkg/response"
)

// registerHealthRoutes mounts the probes at the engine root so orchestrators can reach
// them without the /api prefix. With health checks disabled the paths answer 404.
func registerHealthRoutes(r *gin.Engine, cfg *app.Config, handler *handlers.HealthHandler) {
	routes := map[string]gin.HandlerFunc{
		"/health":       handler.Overall,
		"/health/live":  handler.Live,
		"/health/ready": handler.Ready,
	}
	for path, h := range routes {
		if !cfg.Monitoring.Health.Enabled {
			h = healthDisabled
		}
		r.GET(path, h)
	}
}

var errHealthDisabled = errors.New("HEALTH_DISABLED", "Health checks are disabled", http.StatusNotFound)

func healthDisabled(c *gin.Context) {
	response.Error(c, errHealthDisabled)
}
