package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"storefleet.dev/storefleet/internal/domain"
	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
	"storefleet.dev/storefleet/internal/repository"
)

const storeColumns = `id, name, slug, namespace, status, plan, url, admin_url, admin_email,
	admin_password, error_message, created_at, provisioned_at`

// StoreRepository implements repository.StoreRepository.
type StoreRepository struct {
	db DBTX
}

var _ repository.StoreRepository = (*StoreRepository)(nil)

// NewStoreRepository creates a StoreRepository.
func NewStoreRepository(db DBTX) *StoreRepository {
	return &StoreRepository{db: db}
}

// Create inserts a store. Slug or namespace collisions return ErrAlreadyExists.
func (r *StoreRepository) Create(ctx context.Context, s *domain.Store) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO stores (id, name, slug, namespace, status, plan, admin_email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Name, s.Slug, s.Namespace, string(s.Status), string(s.Plan), s.AdminEmail, s.CreatedAt,
	)
	return translate(err, fmt.Sprintf("insert store %q", s.Slug))
}

// Get returns a store by id.
func (r *StoreRepository) Get(ctx context.Context, id string) (*domain.Store, error) {
	row := r.db.QueryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id)
	s, err := scanStore(row)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("store %s", id))
	}
	return s, nil
}

// GetBySlug returns a store by slug.
func (r *StoreRepository) GetBySlug(ctx context.Context, slug string) (*domain.Store, error) {
	row := r.db.QueryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE slug = $1`, slug)
	s, err := scanStore(row)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("store slug %q", slug))
	}
	return s, nil
}

// ListActive returns stores not being deleted, newest first.
func (r *StoreRepository) ListActive(ctx context.Context) ([]*domain.Store, error) {
	return r.list(ctx, `SELECT `+storeColumns+` FROM stores
		WHERE status <> $1 ORDER BY created_at DESC, id DESC`, string(domain.StoreStatusDeleting))
}

// ListByStatus returns stores in the given status, oldest first.
func (r *StoreRepository) ListByStatus(ctx context.Context, status domain.StoreStatus) ([]*domain.Store, error) {
	return r.list(ctx, `SELECT `+storeColumns+` FROM stores
		WHERE status = $1 ORDER BY created_at ASC, id ASC`, string(status))
}

func (r *StoreRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Store, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "list stores")
	}
	defer rows.Close()

	var out []*domain.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, translate(err, "scan store")
		}
		out = append(out, s)
	}
	return out, translate(rows.Err(), "list stores")
}

// CountActive counts stores not in Deleting.
func (r *StoreRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM stores WHERE status <> $1`,
		string(domain.StoreStatusDeleting)).Scan(&n)
	if err != nil {
		return 0, translate(err, "count stores")
	}
	return n, nil
}

// UpdateStatus performs a conditional status change.
func (r *StoreRepository) UpdateStatus(ctx context.Context, id string, to domain.StoreStatus, errMsg *string, from ...domain.StoreStatus) error {
	if len(from) == 0 {
		from = domain.Predecessors(to)
	}
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE stores SET status = $2, error_message = $3
		WHERE id = $1 AND status = ANY($4)`,
		id, string(to), errMsg, allowed,
	)
	if err != nil {
		return translate(err, fmt.Sprintf("update store %s status", id))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.staleStatus(ctx, id, to)
}

// MarkReady records the Ready transition.
func (r *StoreRepository) MarkReady(ctx context.Context, id string, d domain.ReadyDetails, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE stores
		SET status = $2, url = $3, admin_url = $4, admin_password = $5,
		    error_message = NULL, provisioned_at = $6
		WHERE id = $1 AND status = $7`,
		id, string(domain.StoreStatusReady), d.URL, d.AdminURL, d.AdminPassword, at,
		string(domain.StoreStatusProvisioning),
	)
	if err != nil {
		return translate(err, fmt.Sprintf("mark store %s ready", id))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.staleStatus(ctx, id, domain.StoreStatusReady)
}

// staleStatus explains why a conditional update matched no row.
func (r *StoreRepository) staleStatus(ctx context.Context, id string, to domain.StoreStatus) error {
	var current string
	err := r.db.QueryRow(ctx, `SELECT status FROM stores WHERE id = $1`, id).Scan(&current)
	if err != nil {
		return translate(err, fmt.Sprintf("store %s", id))
	}
	return fmt.Errorf("%w: store %s is %s, cannot move to %s", apperrors.ErrConflict, id, current, to)
}

// Delete removes the store record. Its events cascade.
func (r *StoreRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM stores WHERE id = $1`, id)
	if err != nil {
		return translate(err, fmt.Sprintf("delete store %s", id))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: store %s", apperrors.ErrNotFound, id)
	}
	return nil
}

func scanStore(row pgx.Row) (*domain.Store, error) {
	var (
		s      domain.Store
		status string
		plan   string
	)
	if err := row.Scan(
		&s.ID, &s.Name, &s.Slug, &s.Namespace, &status, &plan,
		&s.URL, &s.AdminURL, &s.AdminEmail, &s.AdminPassword, &s.ErrorMessage,
		&s.CreatedAt, &s.ProvisionedAt,
	); err != nil {
		return nil, err
	}
	s.Status = domain.StoreStatus(status)
	s.Plan = domain.Plan(plan)
	return &s, nil
}
