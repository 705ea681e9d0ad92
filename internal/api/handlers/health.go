package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health is the probe response body.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// GetLiveness handles GET /healthz.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, Health{Status: "ok"})
}

// GetReadiness handles GET /readyz. Only the database gates readiness;
// cluster health is reported for visibility.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string)
	healthy := true

	if s.db == nil {
		checks["database"] = "unconfigured"
		healthy = false
	} else if err := s.db.Ping(c.Request.Context()); err != nil {
		checks["database"] = "error"
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if s.cluster != nil {
		checks["cluster"] = string(s.cluster.Health().Status)
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, Health{Status: "degraded", Checks: checks})
		return
	}
	c.JSON(http.StatusOK, Health{Status: "ok", Checks: checks})
}
