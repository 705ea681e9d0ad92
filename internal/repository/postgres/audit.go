package postgres

import (
	"context"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/repository"
)

// AuditRepository implements repository.AuditRepository.
type AuditRepository struct {
	db DBTX
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts an audit entry.
func (r *AuditRepository) Append(ctx context.Context, a *domain.AuditEntry) error {
	if a.ID == "" {
		a.ID = repository.NewID("audit")
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO audit_log (id, action, resource_type, resource_id, resource_name, details, ip_address)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		RETURNING created_at`,
		a.ID, a.Action, a.ResourceType, a.ResourceID, a.ResourceName, a.Details, a.IPAddress,
	).Scan(&a.CreatedAt)
	return translate(err, "append audit entry")
}

// List returns the newest entries first.
func (r *AuditRepository) List(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	if limit <= 0 {
		limit = repository.DefaultAuditLimit
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, action, resource_type, COALESCE(resource_id, ''), COALESCE(resource_name, ''),
		       COALESCE(details, ''), COALESCE(ip_address, ''), created_at
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, translate(err, "list audit entries")
	}
	defer rows.Close()

	var out []*domain.AuditEntry
	for rows.Next() {
		var a domain.AuditEntry
		if err := rows.Scan(&a.ID, &a.Action, &a.ResourceType, &a.ResourceID, &a.ResourceName,
			&a.Details, &a.IPAddress, &a.CreatedAt); err != nil {
			return nil, translate(err, "scan audit entry")
		}
		out = append(out, &a)
	}
	return out, translate(rows.Err(), "list audit entries")
}
