// Package handlers implements the HTTP API. Handlers stay thin: they bind
// the request, call StoreAPI and hand errors to the ErrorHandler
// middleware through c.Error.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/provider"
	"storefleet.dev/storefleet/internal/service"
)

// StoreAPI is the store surface served over HTTP.
type StoreAPI interface {
	CreateStore(ctx context.Context, in service.CreateStoreInput) (*domain.Store, error)
	RequestDeletion(ctx context.Context, storeID, clientIP string) error
	GetStore(ctx context.Context, storeID string) (*domain.Store, error)
	ListStores(ctx context.Context) (*domain.StoreList, error)
	ListEvents(ctx context.Context, storeID string) ([]*domain.ProvisioningEvent, error)
	ListAudit(ctx context.Context, limit int) ([]*domain.AuditEntry, error)
	RestartStore(ctx context.Context, storeID, target, clientIP string) ([]string, error)
	StoreLogs(ctx context.Context, storeID, component string, tail int64) (string, error)
	StoreHealth(ctx context.Context, storeID string) (*domain.StoreHealth, error)
}

var _ StoreAPI = (*service.StoreService)(nil)

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClusterHealth reports the last known API server health.
type ClusterHealth interface {
	Health() *provider.ClusterHealth
}

// Server holds handler dependencies.
type Server struct {
	stores  StoreAPI
	db      Pinger
	cluster ClusterHealth
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Stores  StoreAPI
	DB      Pinger
	Cluster ClusterHealth
}

// NewServer creates a new Server.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		stores:  deps.Stores,
		db:      deps.DB,
		cluster: deps.Cluster,
	}
}

// RegisterRoutes mounts the store API under /api.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")

	stores := api.Group("/stores")
	stores.GET("", s.ListStores)
	stores.POST("", s.CreateStore)
	stores.GET("/:id", s.GetStore)
	stores.DELETE("/:id", s.DeleteStore)
	stores.GET("/:id/events", s.ListStoreEvents)
	stores.GET("/:id/logs/:component", s.GetStoreLogs)
	stores.GET("/:id/health", s.GetStoreHealth)
	stores.POST("/:id/actions/restart", s.RestartStore)

	api.GET("/audit", s.ListAudit)
}

// RegisterHealthRoutes mounts the liveness and readiness probes.
func (s *Server) RegisterHealthRoutes(r gin.IRouter) {
	r.GET("/healthz", s.GetLiveness)
	r.GET("/readyz", s.GetReadiness)
}
