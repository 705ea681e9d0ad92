package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"storefleet.dev/storefleet/internal/api/handlers"
	"storefleet.dev/storefleet/internal/api/middleware"
	"storefleet.dev/storefleet/internal/config"
	"storefleet.dev/storefleet/internal/metrics"
)

// defaultOrigins are allowed when no origins are configured.
var defaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
}

func newRouter(cfg *config.Config, server *handlers.Server, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(m),
		cors.New(buildCORSConfig(cfg)),
		middleware.ErrorHandler(),
	)
	router.NoRoute(middleware.NoRoute())

	server.RegisterHealthRoutes(router)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	server.RegisterRoutes(router)
	return router
}

// buildCORSConfig keeps credentials and a wildcard origin mutually
// exclusive. "*" is honored only with UnsafeAllowAllOrigins.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	if cfg.Server.UnsafeAllowAllOrigins {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
		return c
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" {
			continue
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		origins = append(origins, defaultOrigins...)
	}
	c.AllowOrigins = origins
	c.AllowCredentials = cfg.Server.AllowCredentials
	return c
}
