// Package repository declares the persistence contracts for stores,
// provisioning events and audit entries.
//
// Implementations report missing rows with errors.ErrNotFound, unique
// violations with errors.ErrAlreadyExists and lost status races with
// errors.ErrConflict, all wrapped so callers match with errors.Is.
package repository

import (
	"context"
	"time"

	"storefleet.dev/storefleet/internal/domain"
)

// StoreRepository persists Store records.
type StoreRepository interface {
	Create(ctx context.Context, store *domain.Store) error
	Get(ctx context.Context, id string) (*domain.Store, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Store, error)

	// ListActive returns stores not in Deleting, newest first.
	ListActive(ctx context.Context) ([]*domain.Store, error)
	ListByStatus(ctx context.Context, status domain.StoreStatus) ([]*domain.Store, error)
	CountActive(ctx context.Context) (int, error)

	// UpdateStatus moves the store to status "to" only if its current
	// status is one of "from". errMsg replaces error_message (nil clears it).
	UpdateStatus(ctx context.Context, id string, to domain.StoreStatus, errMsg *string, from ...domain.StoreStatus) error

	// MarkReady records the Ready transition from Provisioning.
	MarkReady(ctx context.Context, id string, details domain.ReadyDetails, at time.Time) error

	Delete(ctx context.Context, id string) error
}

// EventRepository is the append-only provisioning event log.
type EventRepository interface {
	// Append assigns ID and CreatedAt when unset.
	Append(ctx context.Context, event *domain.ProvisioningEvent) error
	// ListByStore returns a store's events oldest first.
	ListByStore(ctx context.Context, storeID string) ([]*domain.ProvisioningEvent, error)
	DeleteByStore(ctx context.Context, storeID string) (int64, error)
}

// AuditRepository is the append-only audit log.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	// List returns the newest entries first.
	List(ctx context.Context, limit int) ([]*domain.AuditEntry, error)
}

// DefaultAuditLimit bounds List when the caller passes a non-positive limit.
const DefaultAuditLimit = 50
