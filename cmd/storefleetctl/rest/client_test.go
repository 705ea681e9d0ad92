package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefleet.dev/storefleet/internal/domain"
)

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewClient("localhost:3000", time.Second)
	assert.Error(t, err)
}

func TestClient_CreateAndErrors(t *testing.T) {
	var gotBody CreateStoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/stores":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(domain.Store{ID: "id-1", Slug: "shop"})
		case r.Method == http.MethodGet && r.URL.Path == "/api/stores/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"STORE_NOT_FOUND","message":"Store not found"}`))
		case r.URL.Path == "/api/stores/id-1/logs/wordpress":
			assert.Equal(t, "20", r.URL.Query().Get("tail"))
			_, _ = w.Write([]byte(`{"component":"wordpress","logs":"hello\n"}`))
		case r.URL.Path == "/api/stores/id-1/actions/restart":
			assert.Equal(t, "mysql", r.URL.Query().Get("target"))
			_, _ = w.Write([]byte(`{"restarted":["mysql"]}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, 5*time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	store, err := c.CreateStore(ctx, CreateStoreRequest{Name: "Shop", AdminEmail: "a@b.co"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", store.ID)
	assert.Equal(t, "a@b.co", gotBody.AdminEmail)

	_, err = c.GetStore(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "STORE_NOT_FOUND", apiErr.Code)

	logs, err := c.StoreLogs(ctx, "id-1", "wordpress", 20)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", logs)

	restarted, err := c.RestartStore(ctx, "id-1", "mysql")
	require.NoError(t, err)
	assert.Equal(t, []string{"mysql"}, restarted)
}
