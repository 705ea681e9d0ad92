package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"k8s.io/client-go/kubernetes"

	"storefleet.dev/storefleet/internal/config"
	"storefleet.dev/storefleet/internal/governance/audit"
	"storefleet.dev/storefleet/internal/infrastructure"
	"storefleet.dev/storefleet/internal/metrics"
	"storefleet.dev/storefleet/internal/pkg/worker"
	"storefleet.dev/storefleet/internal/provider"
	"storefleet.dev/storefleet/internal/repository"
	"storefleet.dev/storefleet/internal/repository/postgres"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config      *config.Config
	DB          *infrastructure.DatabaseClients
	Pools       *worker.Pools
	Metrics     *metrics.Metrics
	RiverClient *river.Client[pgx.Tx]

	Kube        kubernetes.Interface
	Gateway     provider.ClusterGateway
	HealthCheck *provider.ClusterHealthChecker

	Stores      repository.StoreRepository
	Events      repository.EventRepository
	AuditLogger *audit.Logger
}

// NewInfrastructure connects the database and the cluster and builds the
// worker pools and repositories.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	kube, err := provider.NewKubernetesClient(cfg.K8s)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init kubernetes client: %w", err)
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:      cfg.Worker.GeneralPoolSize,
		K8sPoolSize:          cfg.Worker.K8sPoolSize,
		ProvisioningPoolSize: cfg.Provisioning.Concurrency,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	gateway := provider.NewKubeGateway(kube, cfg.K8s.OperationTimeout)

	return &Infrastructure{
		Config:      cfg,
		DB:          db,
		Pools:       pools,
		Metrics:     metrics.New(),
		Kube:        kube,
		Gateway:     gateway,
		HealthCheck: provider.NewClusterHealthChecker(gateway, cfg.K8s.HealthCheckInterval),
		Stores:      postgres.NewStoreRepository(db.Pool),
		Events:      postgres.NewEventRepository(db.Pool),
		AuditLogger: audit.NewLogger(postgres.NewAuditRepository(db.Pool)),
	}, nil
}

// InitRiver initializes the River client on top of the prepared worker
// registry and periodic jobs.
func (i *Infrastructure) InitRiver(workers *river.Workers, periodic []*river.PeriodicJob) error {
	if i == nil || i.DB == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if err := i.DB.InitRiverClient(workers, periodic, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.HealthCheck != nil {
		i.HealthCheck.Stop()
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
