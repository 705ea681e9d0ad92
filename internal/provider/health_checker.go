package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefleet.dev/storefleet/internal/pkg/logger"
)

// ClusterStatus represents cluster health status.
type ClusterStatus string

const (
	ClusterStatusUnknown     ClusterStatus = "UNKNOWN"
	ClusterStatusHealthy     ClusterStatus = "HEALTHY"
	ClusterStatusUnreachable ClusterStatus = "UNREACHABLE"
)

// ClusterHealth contains health check results.
type ClusterHealth struct {
	Status        ClusterStatus `json:"status"`
	ServerVersion string        `json:"server_version,omitempty"`
	LastChecked   time.Time     `json:"last_checked"`
	Error         string        `json:"error,omitempty"`
}

// ClusterHealthChecker periodically probes the API server and caches the
// result for readiness checks.
type ClusterHealthChecker struct {
	gateway  ClusterGateway
	interval time.Duration

	mu     sync.RWMutex
	latest *ClusterHealth

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewClusterHealthChecker creates a new ClusterHealthChecker.
func NewClusterHealthChecker(gateway ClusterGateway, interval time.Duration) *ClusterHealthChecker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ClusterHealthChecker{
		gateway:  gateway,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Check performs a single health check and caches the result.
func (c *ClusterHealthChecker) Check(ctx context.Context) *ClusterHealth {
	health := &ClusterHealth{LastChecked: time.Now()}

	version, err := c.gateway.ServerVersion(ctx)
	if err != nil {
		health.Status = ClusterStatusUnreachable
		health.Error = fmt.Sprintf("api server unreachable: %v", err)
		logger.Warn("Cluster health check failed", zap.Error(err))
	} else {
		health.Status = ClusterStatusHealthy
		health.ServerVersion = version
	}

	c.mu.Lock()
	c.latest = health
	c.mu.Unlock()
	return health
}

// Health returns the cached health status.
func (c *ClusterHealthChecker) Health() *ClusterHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return &ClusterHealth{Status: ClusterStatusUnknown}
	}
	h := *c.latest
	return &h
}

// Run checks immediately and then on every interval until ctx is done or
// Stop is called. It blocks; submit it to a worker pool.
func (c *ClusterHealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ticker.C:
			c.Check(ctx)
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts periodic health checking. Safe to call more than once.
func (c *ClusterHealthChecker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}
