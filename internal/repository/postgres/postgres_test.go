package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/infrastructure"
	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/repository"
	"storefleet.dev/storefleet/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

func openMigrated(t *testing.T, prefix string) *pgxpool.Pool {
	t.Helper()
	pool, dsn := testutil.OpenPGXPool(t, prefix)
	version, err := infrastructure.MigrateSchema(dsn)
	require.NoError(t, err)
	require.EqualValues(t, 1, version)
	return pool
}

func newStore(name string) *domain.Store {
	return domain.NewStore(repository.NewID(""), name, "owner@example.com", domain.PlanWooCommerce, time.Now().UTC())
}

func TestStoreRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pool := openMigrated(t, "store_lifecycle")
	stores := NewStoreRepository(pool)

	s := newStore("Lifecycle Shop")
	require.NoError(t, stores.Create(ctx, s))

	got, err := stores.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, "lifecycle-shop", got.Slug)
	require.Equal(t, domain.StoreStatusProvisioning, got.Status)
	require.Nil(t, got.URL)

	bySlug, err := stores.GetBySlug(ctx, "lifecycle-shop")
	require.NoError(t, err)
	require.Equal(t, s.ID, bySlug.ID)

	// Ready is only reachable from Provisioning.
	require.NoError(t, stores.MarkReady(ctx, s.ID, domain.ReadyDetails{
		URL: "http://lifecycle-shop.local", AdminURL: "http://lifecycle-shop.local/wp-admin", AdminPassword: "pw",
	}, time.Now().UTC()))
	err = stores.MarkReady(ctx, s.ID, domain.ReadyDetails{}, time.Now().UTC())
	require.ErrorIs(t, err, apperrors.ErrConflict)

	got, err = stores.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StoreStatusReady, got.Status)
	require.NotNil(t, got.ProvisionedAt)
	require.Equal(t, "http://lifecycle-shop.local/wp-admin", *got.AdminURL)

	// Ready cannot go back to Provisioning-era Failed via the Failed edge.
	msg := "boom"
	err = stores.UpdateStatus(ctx, s.ID, domain.StoreStatusFailed, &msg, domain.StoreStatusProvisioning)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, stores.UpdateStatus(ctx, s.ID, domain.StoreStatusDeleting, nil))
	count, err := stores.CountActive(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	active, err := stores.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	require.NoError(t, stores.Delete(ctx, s.ID))
	_, err = stores.Get(ctx, s.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.ErrorIs(t, stores.Delete(ctx, s.ID), apperrors.ErrNotFound)
	require.ErrorIs(t, stores.UpdateStatus(ctx, s.ID, domain.StoreStatusFailed, nil), apperrors.ErrNotFound)
}

func TestStoreRepository_ConcurrentSameSlug(t *testing.T) {
	ctx := context.Background()
	pool := openMigrated(t, "store_same_slug")
	stores := NewStoreRepository(pool)

	names := []string{"Race Shop", "race shop", "RACE-SHOP", "Race  Shop!"}
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = stores.Create(ctx, newStore(name))
		}()
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperrors.ErrAlreadyExists):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, len(names)-1, conflicts)
}

func TestStoreRepository_ListOrdering(t *testing.T) {
	ctx := context.Background()
	pool := openMigrated(t, "store_list")
	stores := NewStoreRepository(pool)

	base := time.Now().UTC().Add(-time.Hour)
	for i, name := range []string{"First Shop", "Second Shop", "Third Shop"} {
		s := newStore(name)
		s.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, stores.Create(ctx, s))
	}

	active, err := stores.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	require.Equal(t, "third-shop", active[0].Slug)
	require.Equal(t, "first-shop", active[2].Slug)

	provisioning, err := stores.ListByStatus(ctx, domain.StoreStatusProvisioning)
	require.NoError(t, err)
	require.Equal(t, "first-shop", provisioning[0].Slug)
}

func TestEventRepository_AppendListPurge(t *testing.T) {
	ctx := context.Background()
	pool := openMigrated(t, "events")
	stores := NewStoreRepository(pool)
	events := NewEventRepository(pool)

	a, b := newStore("Alpha Shop"), newStore("Beta Shop")
	require.NoError(t, stores.Create(ctx, a))
	require.NoError(t, stores.Create(ctx, b))

	for _, step := range []string{domain.StepCreateNamespace, domain.StepCreateSecrets, domain.StepReady} {
		require.NoError(t, events.Append(ctx, &domain.ProvisioningEvent{
			StoreID: a.ID, Step: step, Status: domain.EventStatusCompleted,
		}))
	}
	require.NoError(t, events.Append(ctx, &domain.ProvisioningEvent{
		StoreID: b.ID, Step: domain.StepCreateNamespace, Status: domain.EventStatusStarted, Message: "Creating namespace",
	}))

	list, err := events.ListByStore(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, domain.StepCreateNamespace, list[0].Step)
	require.Equal(t, domain.StepReady, list[2].Step)

	err = events.Append(ctx, &domain.ProvisioningEvent{StoreID: "missing", Step: "x", Status: domain.EventStatusFailed})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	n, err := events.DeleteByStore(ctx, a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	other, err := events.ListByStore(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, other, 1)
	require.Equal(t, "Creating namespace", other[0].Message)

	// Store deletion cascades to the remaining events.
	require.NoError(t, stores.Delete(ctx, b.ID))
	other, err = events.ListByStore(ctx, b.ID)
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestAuditRepository_AppendList(t *testing.T) {
	ctx := context.Background()
	pool := openMigrated(t, "audit")
	audit := NewAuditRepository(pool)

	for _, action := range []string{domain.AuditActionCreate, domain.AuditActionRestart, domain.AuditActionDelete} {
		require.NoError(t, audit.Append(ctx, &domain.AuditEntry{
			Action: action, ResourceType: domain.AuditResourceStore, ResourceID: "s1", IPAddress: "10.0.0.1",
		}))
	}

	entries, err := audit.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, domain.AuditActionDelete, entries[0].Action)
	require.Equal(t, "10.0.0.1", entries[0].IPAddress)

	all, err := audit.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}
