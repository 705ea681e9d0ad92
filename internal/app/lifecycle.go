package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/pkg/worker"
)

// Start starts all background services: module loops, the cluster health
// checker and River workers.
func (a *Application) Start(ctx context.Context) error {
	for _, mod := range a.Modules {
		if err := mod.Start(ctx); err != nil {
			return fmt.Errorf("start module %s: %w", mod.Name(), err)
		}
	}

	if a.HealthCheck != nil && a.Pools != nil {
		if err := a.Pools.SubmitDetached(worker.PoolGeneral, a.HealthCheck.Run); err != nil {
			return fmt.Errorf("start cluster health checker: %w", err)
		}
	}

	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		logger.Info("River client started, jobs will now be consumed")
	}
	return nil
}

// Shutdown gracefully shuts down all application components.
func (a *Application) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop river client", zap.Error(err))
		}
		logger.Info("River client stopped")
	}

	for _, mod := range a.Modules {
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(shutdownCtx); err != nil {
			logger.Warn("module shutdown returned error",
				zap.String("module", mod.Name()),
				zap.Error(err),
			)
		}
	}

	if a.HealthCheck != nil {
		a.HealthCheck.Stop()
	}
	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
