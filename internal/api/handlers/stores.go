package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefleet.dev/storefleet/internal/domain"
	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
	"storefleet.dev/storefleet/internal/repository"
	"storefleet.dev/storefleet/internal/service"
)

// CreateStoreRequest is the POST /api/stores body.
type CreateStoreRequest struct {
	Name       string `json:"name"`
	AdminEmail string `json:"admin_email"`
	Plan       string `json:"plan"`
}

// ListStores handles GET /api/stores.
func (s *Server) ListStores(c *gin.Context) {
	list, err := s.stores.ListStores(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateStore handles POST /api/stores.
func (s *Server) CreateStore(c *gin.Context) {
	var req CreateStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeValidationFailed, "Request body must be a JSON object", http.StatusBadRequest))
		return
	}

	store, err := s.stores.CreateStore(c.Request.Context(), service.CreateStoreInput{
		Name:       req.Name,
		AdminEmail: req.AdminEmail,
		Plan:       domain.Plan(req.Plan),
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, store)
}

// GetStore handles GET /api/stores/:id.
func (s *Server) GetStore(c *gin.Context) {
	store, err := s.stores.GetStore(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, store)
}

// DeleteStore handles DELETE /api/stores/:id. Teardown continues in the
// background; the response only confirms it started.
func (s *Server) DeleteStore(c *gin.Context) {
	id := c.Param("id")
	if err := s.stores.RequestDeletion(c.Request.Context(), id, c.ClientIP()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"id":      id,
		"status":  domain.StoreStatusDeleting,
		"message": "Store deletion initiated",
	})
}

// ListStoreEvents handles GET /api/stores/:id/events.
func (s *Server) ListStoreEvents(c *gin.Context) {
	events, err := s.stores.ListEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// GetStoreLogs handles GET /api/stores/:id/logs/:component?tail=N.
func (s *Server) GetStoreLogs(c *gin.Context) {
	tail := int64(service.DefaultLogTail)
	if raw := c.Query("tail"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			_ = c.Error(apperrors.ErrValidation([]apperrors.FieldError{{
				Field:   "tail",
				Code:    "gt",
				Message: "tail must be a positive integer",
			}}))
			return
		}
		tail = n
	}

	component := c.Param("component")
	logs, err := s.stores.StoreLogs(c.Request.Context(), c.Param("id"), component, tail)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"component": component, "logs": logs})
}

// GetStoreHealth handles GET /api/stores/:id/health.
func (s *Server) GetStoreHealth(c *gin.Context) {
	health, err := s.stores.StoreHealth(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, health)
}

// RestartStore handles POST /api/stores/:id/actions/restart?target=.
func (s *Server) RestartStore(c *gin.Context) {
	restarted, err := s.stores.RestartStore(c.Request.Context(), c.Param("id"), c.Query("target"), c.ClientIP())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restarted": restarted})
}

// ListAudit handles GET /api/audit?limit=N.
func (s *Server) ListAudit(c *gin.Context) {
	limit := repository.DefaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			_ = c.Error(apperrors.ErrValidation([]apperrors.FieldError{{
				Field:   "limit",
				Code:    "gt",
				Message: "limit must be a positive integer",
			}}))
			return
		}
		limit = n
	}

	entries, err := s.stores.ListAudit(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
