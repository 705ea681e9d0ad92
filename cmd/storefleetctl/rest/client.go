// Package rest is the HTTP client behind storefleetctl.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefleet.dev/storefleet/internal/domain"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.Status)
}

// CreateStoreRequest is the body of a create call.
type CreateStoreRequest struct {
	Name       string `json:"name"`
	AdminEmail string `json:"admin_email"`
	Plan       string `json:"plan,omitempty"`
}

// Client talks to one storefleet server.
type Client struct {
	base       *url.URL
	httpclient *http.Client
}

// NewClient creates a Client for server, e.g. "http://localhost:3000".
func NewClient(server string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("server url %q must include scheme and host", server)
	}
	return &Client{base: base, httpclient: &http.Client{Timeout: timeout}}, nil
}

func (c *Client) apipath(query url.Values, elem ...string) string {
	u := c.base.JoinPath(append([]string{"api"}, elem...)...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ListStores returns the active stores and the queue size.
func (c *Client) ListStores(ctx context.Context) (*domain.StoreList, error) {
	var out domain.StoreList
	if err := c.do(ctx, http.MethodGet, c.apipath(nil, "stores"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStore returns one store.
func (c *Client) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	var out domain.Store
	if err := c.do(ctx, http.MethodGet, c.apipath(nil, "stores", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateStore requests a new store.
func (c *Client) CreateStore(ctx context.Context, in CreateStoreRequest) (*domain.Store, error) {
	var out domain.Store
	if err := c.do(ctx, http.MethodPost, c.apipath(nil, "stores"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteStore starts a store's teardown.
func (c *Client) DeleteStore(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.apipath(nil, "stores", id), nil, nil)
}

// ListEvents returns a store's provisioning events.
func (c *Client) ListEvents(ctx context.Context, id string) ([]*domain.ProvisioningEvent, error) {
	var out []*domain.ProvisioningEvent
	if err := c.do(ctx, http.MethodGet, c.apipath(nil, "stores", id, "events"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RestartStore restarts a store's deployments.
func (c *Client) RestartStore(ctx context.Context, id, target string) ([]string, error) {
	q := url.Values{}
	if target != "" {
		q.Set("target", target)
	}
	var out struct {
		Restarted []string `json:"restarted"`
	}
	if err := c.do(ctx, http.MethodPost, c.apipath(q, "stores", id, "actions", "restart"), nil, &out); err != nil {
		return nil, err
	}
	return out.Restarted, nil
}

// StoreLogs returns the tail of a component's logs.
func (c *Client) StoreLogs(ctx context.Context, id, component string, tail int) (string, error) {
	q := url.Values{}
	if tail > 0 {
		q.Set("tail", strconv.Itoa(tail))
	}
	var out struct {
		Logs string `json:"logs"`
	}
	if err := c.do(ctx, http.MethodGet, c.apipath(q, "stores", id, "logs", component), nil, &out); err != nil {
		return "", err
	}
	return out.Logs, nil
}

// ListAudit returns the newest audit entries.
func (c *Client) ListAudit(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []*domain.AuditEntry
	if err := c.do(ctx, http.MethodGet, c.apipath(q, "audit"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
