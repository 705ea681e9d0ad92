package testutil

import (
	"strings"
	"testing"
)

func TestDSNWithSearchPath(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"url", "postgres://u:p@localhost:5432/db?sslmode=disable", "postgres://u:p@localhost:5432/db?search_path=s1&sslmode=disable"},
		{"keyword value", "host=localhost dbname=db", "host=localhost dbname=db search_path=s1"},
		{"keyword value replaces existing", "host=localhost search_path=public", "host=localhost search_path=s1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dsnWithSearchPath(tt.dsn, "s1")
			if err != nil {
				t.Fatalf("dsnWithSearchPath() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("dsnWithSearchPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewSchemaName(t *testing.T) {
	name := newSchemaName("Store-Repo Test!")
	if !strings.HasPrefix(name, "t_store_repo_test_") {
		t.Errorf("newSchemaName() = %q, want t_store_repo_test_ prefix", name)
	}
	if len(name) > 63 {
		t.Errorf("newSchemaName() length = %d, want <= 63", len(name))
	}
	if newSchemaName("x") == newSchemaName("x") {
		t.Error("newSchemaName() should be unique per call")
	}
}
