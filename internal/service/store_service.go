// Package service implements the store operations exposed to the HTTP API
// and the CLI: create, delete, read accessors and operator actions.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/governance/audit"
	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/pkg/worker"
	"storefleet.dev/storefleet/internal/provider"
	"storefleet.dev/storefleet/internal/provisioner"
	"storefleet.dev/storefleet/internal/repository"
)

// PlanResolver looks up the pipeline for a plan.
type PlanResolver interface {
	Resolve(plan domain.Plan) (provisioner.Pipeline, error)
}

// Scheduler accepts persisted stores for provisioning.
type Scheduler interface {
	Submit(store *domain.Store)
	BacklogSize() int
}

// Cleaner tears a store down.
type Cleaner interface {
	Cleanup(ctx context.Context, storeID string) error
}

// BackgroundRunner runs tasks detached from the calling request.
type BackgroundRunner interface {
	SubmitDetached(poolName string, task worker.Task) error
}

// Deps groups StoreService collaborators.
type Deps struct {
	Stores    repository.StoreRepository
	Events    repository.EventRepository
	Audit     *audit.Logger
	Plans     PlanResolver
	Queue     Scheduler
	Teardown  Cleaner
	Runner    BackgroundRunner
	Gateway   provider.ClusterGateway
	MaxStores int
}

// StoreService owns the externally triggered store lifecycle operations.
// Provisioning itself runs in the queue; this service only persists the
// request and hands it over.
type StoreService struct {
	stores    repository.StoreRepository
	events    repository.EventRepository
	audit     *audit.Logger
	plans     PlanResolver
	queue     Scheduler
	teardown  Cleaner
	runner    BackgroundRunner
	gateway   provider.ClusterGateway
	mapper    *provider.HealthMapper
	maxStores int
	validate  *validator.Validate

	// createMu serializes the count/slug checks with the insert so the
	// store cap holds within one process. The slug unique constraint
	// remains the authority across processes.
	createMu sync.Mutex

	now   func() time.Time
	newID func() string
}

// NewStoreService creates a StoreService.
func NewStoreService(d Deps) *StoreService {
	return &StoreService{
		stores:    d.Stores,
		events:    d.Events,
		audit:     d.Audit,
		plans:     d.Plans,
		queue:     d.Queue,
		teardown:  d.Teardown,
		runner:    d.Runner,
		gateway:   d.Gateway,
		mapper:    provider.NewHealthMapper(),
		maxStores: d.MaxStores,
		validate:  newValidator(),
		now:       time.Now,
		newID:     func() string { return repository.NewID("") },
	}
}

// CreateStore validates the request, persists a Provisioning store and
// submits it to the queue. Nothing touches the cluster before the store
// row exists.
func (s *StoreService) CreateStore(ctx context.Context, in CreateStoreInput) (*domain.Store, error) {
	if in.Plan == "" {
		in.Plan = domain.PlanWooCommerce
	}
	if err := validateCreate(s.validate, &in); err != nil {
		return nil, err
	}
	if _, err := s.plans.Resolve(in.Plan); err != nil {
		var unknown *provisioner.UnknownPlanError
		if errors.As(err, &unknown) {
			return nil, apperrors.ErrUnknownPlan(string(in.Plan))
		}
		return nil, fmt.Errorf("resolve plan: %w", err)
	}

	store := domain.NewStore(s.newID(), in.Name, in.AdminEmail, in.Plan, s.now().UTC())

	if err := s.insert(ctx, store); err != nil {
		return nil, err
	}

	if err := s.audit.LogStoreAction(ctx, domain.AuditActionCreate, store, in.ClientIP,
		"plan", string(store.Plan), "email", store.AdminEmail); err != nil {
		logger.Warn("Store created without audit entry", zap.String("store_id", store.ID), zap.Error(err))
	}

	s.queue.Submit(store)
	logger.ForStore(store.ID, store.Namespace).Info("Store created",
		zap.String("slug", store.Slug),
		zap.String("plan", string(store.Plan)),
	)
	return store, nil
}

func (s *StoreService) insert(ctx context.Context, store *domain.Store) error {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	count, err := s.stores.CountActive(ctx)
	if err != nil {
		return fmt.Errorf("count stores: %w", err)
	}
	if count >= s.maxStores {
		return apperrors.ErrStoreLimitReached(s.maxStores)
	}

	if _, err := s.stores.GetBySlug(ctx, store.Slug); err == nil {
		return apperrors.ErrSlugConflict(store.Slug)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("check slug: %w", err)
	}

	if err := s.stores.Create(ctx, store); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return apperrors.ErrSlugConflict(store.Slug)
		}
		return fmt.Errorf("create store: %w", err)
	}
	return nil
}

// RequestDeletion flips a Ready or Failed store to Deleting and starts the
// teardown in the background. Missing stores are rejected without any
// write.
func (s *StoreService) RequestDeletion(ctx context.Context, storeID, clientIP string) error {
	store, err := s.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	if err := deletable(store); err != nil {
		return err
	}

	if err := s.stores.UpdateStatus(ctx, store.ID, domain.StoreStatusDeleting, nil,
		domain.StoreStatusReady, domain.StoreStatusFailed); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// Lost a race; report against the status that won.
			if current, getErr := s.GetStore(ctx, storeID); getErr == nil {
				if stateErr := deletable(current); stateErr != nil {
					return stateErr
				}
			}
			return apperrors.ErrInvalidState(string(store.Status), "delete")
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrStoreNotFound(storeID)
		}
		return fmt.Errorf("mark store deleting: %w", err)
	}

	if err := s.audit.LogStoreAction(ctx, domain.AuditActionDelete, store, clientIP); err != nil {
		logger.Warn("Store deletion started without audit entry", zap.String("store_id", store.ID), zap.Error(err))
	}

	id := store.ID
	if err := s.runner.SubmitDetached(worker.PoolK8s, func(ctx context.Context) {
		if err := s.teardown.Cleanup(ctx, id); err != nil {
			logger.Error("Background cleanup failed", zap.String("store_id", id), zap.Error(err))
		}
	}); err != nil {
		msg := "Cleanup failed: " + err.Error()
		if upErr := s.stores.UpdateStatus(ctx, id, domain.StoreStatusFailed, &msg, domain.StoreStatusDeleting); upErr != nil {
			logger.Warn("Failed to mark store Failed", zap.String("store_id", id), zap.Error(upErr))
		}
		return apperrors.Wrap(err, apperrors.CodeInternalError, "Could not start store deletion", http.StatusServiceUnavailable)
	}

	logger.ForStore(store.ID, store.Namespace).Info("Store deletion initiated")
	return nil
}

func deletable(store *domain.Store) error {
	switch store.Status {
	case domain.StoreStatusDeleting:
		return apperrors.ErrAlreadyDeleting(store.ID)
	case domain.StoreStatusReady, domain.StoreStatusFailed:
		return nil
	default:
		return apperrors.ErrInvalidState(string(store.Status), "delete")
	}
}

// QueueBacklogSize returns the number of waiting plus running provisioning runs.
func (s *StoreService) QueueBacklogSize() int {
	return s.queue.BacklogSize()
}

// GetStore returns one store.
func (s *StoreService) GetStore(ctx context.Context, storeID string) (*domain.Store, error) {
	store, err := s.stores.Get(ctx, storeID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrStoreNotFound(storeID)
		}
		return nil, fmt.Errorf("get store: %w", err)
	}
	return store, nil
}

// ListStores returns non-deleting stores, newest first, with the queue size.
func (s *StoreService) ListStores(ctx context.Context) (*domain.StoreList, error) {
	stores, err := s.stores.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	if stores == nil {
		stores = []*domain.Store{}
	}
	return &domain.StoreList{Stores: stores, QueueSize: s.queue.BacklogSize()}, nil
}

// ListEvents returns a store's events, oldest first.
func (s *StoreService) ListEvents(ctx context.Context, storeID string) ([]*domain.ProvisioningEvent, error) {
	if _, err := s.GetStore(ctx, storeID); err != nil {
		return nil, err
	}
	events, err := s.events.ListByStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []*domain.ProvisioningEvent{}
	}
	return events, nil
}

// ListAudit returns the newest audit entries.
func (s *StoreService) ListAudit(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	entries, err := s.audit.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	if entries == nil {
		entries = []*domain.AuditEntry{}
	}
	return entries, nil
}
