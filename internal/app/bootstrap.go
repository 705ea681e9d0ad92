// Package app is the composition root. Bootstrap only orchestrates module
// construction; behavior lives in the modules.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"storefleet.dev/storefleet/internal/api/handlers"
	"storefleet.dev/storefleet/internal/app/modules"
	"storefleet.dev/storefleet/internal/config"
	"storefleet.dev/storefleet/internal/infrastructure"
	"storefleet.dev/storefleet/internal/metrics"
	"storefleet.dev/storefleet/internal/pkg/worker"
	"storefleet.dev/storefleet/internal/provider"
)

// Application holds composed application dependencies.
type Application struct {
	Config      *config.Config
	Router      *gin.Engine
	DB          *infrastructure.DatabaseClients
	Pools       *worker.Pools
	Metrics     *metrics.Metrics
	HealthCheck *provider.ClusterHealthChecker
	Modules     []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	storeModule := modules.NewStoreModule(infra)
	allModules := []modules.Module{storeModule}

	workers := river.NewWorkers()
	var periodic []*river.PeriodicJob
	for _, mod := range allModules {
		mod.RegisterWorkers(workers)
		periodic = append(periodic, mod.PeriodicJobs()...)
	}
	if err := infra.InitRiver(workers, periodic); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}

	server := handlers.NewServer(handlers.ServerDeps{
		Stores:  storeModule.Service(),
		DB:      infra.DB,
		Cluster: infra.HealthCheck,
	})

	return &Application{
		Config:      cfg,
		Router:      newRouter(cfg, server, infra.Metrics),
		DB:          infra.DB,
		Pools:       infra.Pools,
		Metrics:     infra.Metrics,
		HealthCheck: infra.HealthCheck,
		Modules:     allModules,
	}, nil
}
