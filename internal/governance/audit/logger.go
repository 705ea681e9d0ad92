// Package audit implements the audit logging service.
//
// Audit entries are append-only records of externally triggered actions.
// They are never updated or deleted, not even when the store they refer
// to is purged.
package audit

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/repository"
)

// Logger writes audit records through an AuditRepository.
type Logger struct {
	repo repository.AuditRepository
}

// NewLogger creates a new audit Logger.
func NewLogger(repo repository.AuditRepository) *Logger {
	return &Logger{repo: repo}
}

// LogAction records an auditable action.
func (l *Logger) LogAction(ctx context.Context, entry domain.AuditEntry) error {
	if err := l.repo.Append(ctx, &entry); err != nil {
		logger.Error("Failed to write audit log",
			zap.String("action", entry.Action),
			zap.String("resource_type", entry.ResourceType),
			zap.String("resource_id", entry.ResourceID),
			zap.Error(err),
		)
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// LogStoreAction records an action against a store. details are rendered
// as "k=v, k=v" in the given order.
func (l *Logger) LogStoreAction(ctx context.Context, action string, store *domain.Store, clientIP string, details ...string) error {
	return l.LogAction(ctx, domain.AuditEntry{
		Action:       action,
		ResourceType: domain.AuditResourceStore,
		ResourceID:   store.ID,
		ResourceName: store.Name,
		Details:      FormatDetails(details...),
		IPAddress:    clientIP,
	})
}

// List returns the most recent entries, newest first.
func (l *Logger) List(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	return l.repo.List(ctx, limit)
}

// FormatDetails joins key/value pairs as "k=v, k=v". A trailing key
// without a value is dropped.
func FormatDetails(kv ...string) string {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, kv[i]+"="+kv[i+1])
	}
	return strings.Join(parts, ", ")
}
