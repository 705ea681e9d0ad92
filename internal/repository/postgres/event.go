package postgres

import (
	"context"
	"fmt"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/repository"
)

// EventRepository implements repository.EventRepository.
type EventRepository struct {
	db DBTX
}

var _ repository.EventRepository = (*EventRepository)(nil)

// NewEventRepository creates an EventRepository.
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts an event. created_at comes from the database clock so
// events of one store order by insertion.
func (r *EventRepository) Append(ctx context.Context, e *domain.ProvisioningEvent) error {
	if e.ID == "" {
		e.ID = repository.NewID("evt")
	}
	var message *string
	if e.Message != "" {
		message = &e.Message
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO provisioning_events (id, store_id, step, status, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		e.ID, e.StoreID, e.Step, string(e.Status), message,
	).Scan(&e.CreatedAt)
	return translate(err, fmt.Sprintf("append event %s/%s for store %s", e.Step, e.Status, e.StoreID))
}

// ListByStore returns a store's events oldest first.
func (r *EventRepository) ListByStore(ctx context.Context, storeID string) ([]*domain.ProvisioningEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, store_id, step, status, COALESCE(message, ''), created_at
		FROM provisioning_events
		WHERE store_id = $1
		ORDER BY created_at ASC, id ASC`, storeID)
	if err != nil {
		return nil, translate(err, "list events")
	}
	defer rows.Close()

	var out []*domain.ProvisioningEvent
	for rows.Next() {
		var (
			e      domain.ProvisioningEvent
			status string
		)
		if err := rows.Scan(&e.ID, &e.StoreID, &e.Step, &status, &e.Message, &e.CreatedAt); err != nil {
			return nil, translate(err, "scan event")
		}
		e.Status = domain.EventStatus(status)
		out = append(out, &e)
	}
	return out, translate(rows.Err(), "list events")
}

// DeleteByStore purges all events for a store.
func (r *EventRepository) DeleteByStore(ctx context.Context, storeID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM provisioning_events WHERE store_id = $1`, storeID)
	if err != nil {
		return 0, translate(err, fmt.Sprintf("delete events for store %s", storeID))
	}
	return tag.RowsAffected(), nil
}
