package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

type failingRepo struct{}

func (failingRepo) Append(context.Context, *domain.AuditEntry) error { return errors.New("disk full") }
func (failingRepo) List(context.Context, int) ([]*domain.AuditEntry, error) {
	return nil, nil
}

func TestFormatDetails(t *testing.T) {
	tests := []struct {
		name string
		kv   []string
		want string
	}{
		{"empty", nil, ""},
		{"pairs", []string{"plan", "woocommerce", "email", "a@b.c"}, "plan=woocommerce, email=a@b.c"},
		{"dangling key dropped", []string{"target", "wordpress", "extra"}, "target=wordpress"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FormatDetails(tt.kv...))
		})
	}
}

func TestLogger_LogStoreAction(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewMemoryDB()
	l := NewLogger(db.Audit())

	store := &domain.Store{ID: "s-1", Name: "Audit Shop"}
	require.NoError(t, l.LogStoreAction(ctx, domain.AuditActionCreate, store, "10.1.1.1", "plan", "woocommerce"))
	require.NoError(t, l.LogStoreAction(ctx, domain.AuditActionDelete, store, "10.1.1.1"))

	entries, err := l.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, domain.AuditActionDelete, entries[0].Action)
	require.Equal(t, "plan=woocommerce", entries[1].Details)
	require.Equal(t, "Audit Shop", entries[1].ResourceName)
	require.Equal(t, domain.AuditResourceStore, entries[1].ResourceType)
}

func TestLogger_PropagatesRepositoryError(t *testing.T) {
	l := NewLogger(failingRepo{})
	err := l.LogAction(context.Background(), domain.AuditEntry{Action: "create", ResourceType: "store"})
	require.ErrorContains(t, err, "disk full")
}
