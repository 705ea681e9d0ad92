package modules

import (
	"context"

	"github.com/riverqueue/river"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/jobs"
	"storefleet.dev/storefleet/internal/provisioner"
	"storefleet.dev/storefleet/internal/queue"
	"storefleet.dev/storefleet/internal/service"
	"storefleet.dev/storefleet/internal/teardown"
)

// StoreModule owns the provisioning queue, the pipelines and the store
// service built on them.
type StoreModule struct {
	infra    *Infrastructure
	registry *provisioner.Registry
	queue    *queue.Queue
	service  *service.StoreService
	sweeper  *jobs.OrphanSweepWorker
}

// NewStoreModule wires the store lifecycle.
func NewStoreModule(infra *Infrastructure) *StoreModule {
	cfg := infra.Config
	recorder := provisioner.NewRecorder(infra.Events, infra.Metrics)

	registry := provisioner.NewRegistry(map[domain.Plan]provisioner.Pipeline{
		domain.PlanWooCommerce: provisioner.NewWooCommercePipeline(
			infra.Gateway, infra.Stores, recorder, cfg.Store, cfg.Provisioning),
		domain.PlanMedusa: provisioner.NewMedusaPipeline(infra.Stores, recorder),
	})

	q := queue.New(registry, infra.Stores, infra.Events, infra.Pools, infra.Metrics, cfg.Provisioning.Concurrency)

	cleaner := teardown.New(infra.Gateway, infra.Stores, infra.Events, infra.Metrics, provisioner.WaitPolicy{
		Interval: cfg.Provisioning.NamespacePollInterval,
		Timeout:  cfg.Provisioning.NamespaceDeleteTimeout,
	})

	svc := service.NewStoreService(service.Deps{
		Stores:    infra.Stores,
		Events:    infra.Events,
		Audit:     infra.AuditLogger,
		Plans:     registry,
		Queue:     q,
		Teardown:  cleaner,
		Runner:    infra.Pools,
		Gateway:   infra.Gateway,
		MaxStores: cfg.Provisioning.MaxStores,
	})

	return &StoreModule{
		infra:    infra,
		registry: registry,
		queue:    q,
		service:  svc,
		sweeper: jobs.NewOrphanSweepWorker(infra.Stores, infra.Events, q, infra.Metrics,
			cfg.Provisioning.OrphanGracePeriod),
	}
}

func (m *StoreModule) Name() string { return "store" }

// Service returns the store service for the HTTP layer.
func (m *StoreModule) Service() *service.StoreService { return m.service }

func (m *StoreModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, m.sweeper)
}

func (m *StoreModule) PeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(m.infra.Config.River.OrphanSweepInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return jobs.OrphanSweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

func (m *StoreModule) Start(context.Context) error {
	return m.queue.Start()
}

func (m *StoreModule) Shutdown(context.Context) error {
	m.queue.Close()
	return nil
}
