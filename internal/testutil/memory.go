package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefleet.dev/storefleet/internal/domain"
	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
	"storefleet.dev/storefleet/internal/repository"
)

// MemoryDB is an in-memory implementation of the three repositories with
// the same uniqueness, ordering and cascade rules as the PostgreSQL schema.
type MemoryDB struct {
	mu     sync.Mutex
	stores map[string]*domain.Store
	events []*domain.ProvisioningEvent
	audit  []*domain.AuditEntry
	seq    int64
	base   time.Time

	history map[string][]domain.StoreStatus
}

// NewMemoryDB creates an empty MemoryDB.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		stores:  make(map[string]*domain.Store),
		history: make(map[string][]domain.StoreStatus),
		base:    time.Now().UTC(),
	}
}

// Stores returns the StoreRepository view.
func (m *MemoryDB) Stores() *MemoryStores { return &MemoryStores{m} }

// Events returns the EventRepository view.
func (m *MemoryDB) Events() *MemoryEvents { return &MemoryEvents{m} }

// Audit returns the AuditRepository view.
func (m *MemoryDB) Audit() *MemoryAudit { return &MemoryAudit{m} }

// StatusHistory returns the statuses a store passed through, starting with
// its initial status.
func (m *MemoryDB) StatusHistory(storeID string) []domain.StoreStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StoreStatus(nil), m.history[storeID]...)
}

// EventCount returns the total number of stored events.
func (m *MemoryDB) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *MemoryDB) next() time.Time {
	m.seq++
	return m.base.Add(time.Duration(m.seq) * time.Microsecond)
}

func clone(s *domain.Store) *domain.Store {
	c := *s
	return &c
}

// MemoryStores implements repository.StoreRepository.
type MemoryStores struct{ m *MemoryDB }

var _ repository.StoreRepository = (*MemoryStores)(nil)

func (r *MemoryStores) Create(_ context.Context, s *domain.Store) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.stores {
		if existing.Slug == s.Slug || existing.Namespace == s.Namespace {
			return fmt.Errorf("%w: insert store %q (stores_slug_key)", apperrors.ErrAlreadyExists, s.Slug)
		}
	}
	if _, ok := r.m.stores[s.ID]; ok {
		return fmt.Errorf("%w: insert store %q (stores_pkey)", apperrors.ErrAlreadyExists, s.ID)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	r.m.stores[s.ID] = clone(s)
	r.m.history[s.ID] = []domain.StoreStatus{s.Status}
	return nil
}

func (r *MemoryStores) Get(_ context.Context, id string) (*domain.Store, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.stores[id]
	if !ok {
		return nil, fmt.Errorf("%w: store %s", apperrors.ErrNotFound, id)
	}
	return clone(s), nil
}

func (r *MemoryStores) GetBySlug(_ context.Context, slug string) (*domain.Store, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.stores {
		if s.Slug == slug {
			return clone(s), nil
		}
	}
	return nil, fmt.Errorf("%w: store slug %q", apperrors.ErrNotFound, slug)
}

func (r *MemoryStores) ListActive(_ context.Context) ([]*domain.Store, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.Store
	for _, s := range r.m.stores {
		if s.Status != domain.StoreStatusDeleting {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryStores) ListByStatus(_ context.Context, status domain.StoreStatus) ([]*domain.Store, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.Store
	for _, s := range r.m.stores {
		if s.Status == status {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryStores) CountActive(_ context.Context) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, s := range r.m.stores {
		if s.Status != domain.StoreStatusDeleting {
			n++
		}
	}
	return n, nil
}

func (r *MemoryStores) UpdateStatus(_ context.Context, id string, to domain.StoreStatus, errMsg *string, from ...domain.StoreStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.stores[id]
	if !ok {
		return fmt.Errorf("%w: store %s", apperrors.ErrNotFound, id)
	}
	if len(from) == 0 {
		from = domain.Predecessors(to)
	}
	allowed := false
	for _, f := range from {
		if s.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: store %s is %s, cannot move to %s", apperrors.ErrConflict, id, s.Status, to)
	}
	s.Status = to
	if errMsg != nil {
		msg := *errMsg
		s.ErrorMessage = &msg
	} else {
		s.ErrorMessage = nil
	}
	r.m.history[id] = append(r.m.history[id], to)
	return nil
}

func (r *MemoryStores) MarkReady(_ context.Context, id string, d domain.ReadyDetails, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.stores[id]
	if !ok {
		return fmt.Errorf("%w: store %s", apperrors.ErrNotFound, id)
	}
	if s.Status != domain.StoreStatusProvisioning {
		return fmt.Errorf("%w: store %s is %s, cannot move to %s", apperrors.ErrConflict, id, s.Status, domain.StoreStatusReady)
	}
	url, adminURL, pw := d.URL, d.AdminURL, d.AdminPassword
	s.Status = domain.StoreStatusReady
	s.URL, s.AdminURL, s.AdminPassword = &url, &adminURL, &pw
	s.ErrorMessage = nil
	s.ProvisionedAt = &at
	r.m.history[id] = append(r.m.history[id], domain.StoreStatusReady)
	return nil
}

func (r *MemoryStores) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.stores[id]; !ok {
		return fmt.Errorf("%w: store %s", apperrors.ErrNotFound, id)
	}
	delete(r.m.stores, id)
	kept := r.m.events[:0]
	for _, e := range r.m.events {
		if e.StoreID != id {
			kept = append(kept, e)
		}
	}
	r.m.events = kept
	return nil
}

// MemoryEvents implements repository.EventRepository.
type MemoryEvents struct{ m *MemoryDB }

var _ repository.EventRepository = (*MemoryEvents)(nil)

func (r *MemoryEvents) Append(_ context.Context, e *domain.ProvisioningEvent) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.stores[e.StoreID]; !ok {
		return fmt.Errorf("%w: append event for store %s", apperrors.ErrNotFound, e.StoreID)
	}
	if e.ID == "" {
		e.ID = repository.NewID("evt")
	}
	e.CreatedAt = r.m.next()
	c := *e
	r.m.events = append(r.m.events, &c)
	return nil
}

func (r *MemoryEvents) ListByStore(_ context.Context, storeID string) ([]*domain.ProvisioningEvent, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.ProvisioningEvent
	for _, e := range r.m.events {
		if e.StoreID == storeID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *MemoryEvents) DeleteByStore(_ context.Context, storeID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	kept := r.m.events[:0]
	for _, e := range r.m.events {
		if e.StoreID == storeID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.m.events = kept
	return n, nil
}

// MemoryAudit implements repository.AuditRepository.
type MemoryAudit struct{ m *MemoryDB }

var _ repository.AuditRepository = (*MemoryAudit)(nil)

func (r *MemoryAudit) Append(_ context.Context, a *domain.AuditEntry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if a.ID == "" {
		a.ID = repository.NewID("audit")
	}
	a.CreatedAt = r.m.next()
	c := *a
	r.m.audit = append(r.m.audit, &c)
	return nil
}

func (r *MemoryAudit) List(_ context.Context, limit int) ([]*domain.AuditEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if limit <= 0 {
		limit = repository.DefaultAuditLimit
	}
	var out []*domain.AuditEntry
	for i := len(r.m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		c := *r.m.audit[i]
		out = append(out, &c)
	}
	return out, nil
}
