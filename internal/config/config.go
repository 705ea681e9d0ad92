// Package config provides configuration management for storefleet.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, PROVISIONING_CONCURRENCY)
// 3. Default values
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	K8s          K8sConfig          `mapstructure:"k8s"`
	Log          LogConfig          `mapstructure:"log"`
	River        RiverConfig        `mapstructure:"river"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	Store        StoreConfig        `mapstructure:"store"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// One pool is shared by the repositories, golang-migrate and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// K8sConfig contains Kubernetes client settings.
type K8sConfig struct {
	// Kubeconfig is an explicit kubeconfig path. Empty means in-cluster
	// config when available, otherwise the default loading rules.
	Kubeconfig       string        `mapstructure:"kubeconfig"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// HealthCheckInterval is how often the API server is probed for /readyz.
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	QPS                 float32       `mapstructure:"qps"`
	Burst               int           `mapstructure:"burst"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
	OrphanSweepInterval         time.Duration `mapstructure:"orphan_sweep_interval"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	K8sPoolSize     int `mapstructure:"k8s_pool_size"`
}

// ProvisioningConfig bounds the provisioning queue and the readiness waits.
type ProvisioningConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxStores   int `mapstructure:"max_stores"`

	InitTimeout            time.Duration `mapstructure:"init_timeout"`
	DatabaseReadyTimeout   time.Duration `mapstructure:"database_ready_timeout"`
	DeploymentPollInterval time.Duration `mapstructure:"deployment_poll_interval"`
	JobPollInterval        time.Duration `mapstructure:"job_poll_interval"`
	JobFailureLimit        int32         `mapstructure:"job_failure_limit"`

	NamespaceDeleteTimeout time.Duration `mapstructure:"namespace_delete_timeout"`
	NamespacePollInterval  time.Duration `mapstructure:"namespace_poll_interval"`

	// OrphanGracePeriod is how long a Provisioning store may sit untracked
	// by the in-process queue before the sweep marks it Failed.
	OrphanGracePeriod time.Duration `mapstructure:"orphan_grace_period"`
}

// StoreConfig parameterizes the tenant resources created in the cluster.
type StoreConfig struct {
	Domain           string `mapstructure:"domain"`
	ExternalPort     int    `mapstructure:"external_port"`
	IngressClass     string `mapstructure:"ingress_class"`
	IngressNamespace string `mapstructure:"ingress_namespace"`

	MySQLImage      string `mapstructure:"mysql_image"`
	WordPressImage  string `mapstructure:"wordpress_image"`
	ImagePullPolicy string `mapstructure:"image_pull_policy"`

	MySQLStorageSize     string `mapstructure:"mysql_storage_size"`
	WordPressStorageSize string `mapstructure:"wordpress_storage_size"`
	StorageClass         string `mapstructure:"storage_class"`
}

// Load reads configuration from file and environment variables.
// Environment variables carry no prefix (DATABASE_URL, STORE_DOMAIN, ...).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/storefleet")

	// provisioning.max_stores → PROVISIONING_MAX_STORES
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	p := c.Provisioning
	if p.Concurrency <= 0 {
		return fmt.Errorf("provisioning.concurrency must be positive, got %d", p.Concurrency)
	}
	if p.MaxStores <= 0 {
		return fmt.Errorf("provisioning.max_stores must be positive, got %d", p.MaxStores)
	}
	if p.JobFailureLimit <= 0 {
		return fmt.Errorf("provisioning.job_failure_limit must be positive, got %d", p.JobFailureLimit)
	}
	durations := map[string]time.Duration{
		"provisioning.init_timeout":             p.InitTimeout,
		"provisioning.database_ready_timeout":   p.DatabaseReadyTimeout,
		"provisioning.deployment_poll_interval": p.DeploymentPollInterval,
		"provisioning.job_poll_interval":        p.JobPollInterval,
		"provisioning.namespace_delete_timeout": p.NamespaceDeleteTimeout,
		"provisioning.namespace_poll_interval":  p.NamespacePollInterval,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if strings.TrimSpace(c.Store.Domain) == "" {
		return fmt.Errorf("store.domain must not be empty")
	}
	switch c.Store.ImagePullPolicy {
	case "Always", "IfNotPresent", "Never":
	default:
		return fmt.Errorf("store.image_pull_policy %q is not one of Always, IfNotPresent, Never", c.Store.ImagePullPolicy)
	}
	return nil
}

// StoreURL returns the public URL of the store with the given slug.
func (c StoreConfig) StoreURL(slug string) string {
	host := c.StoreHost(slug)
	if c.ExternalPort > 0 && c.ExternalPort != 80 {
		return fmt.Sprintf("http://%s:%d", host, c.ExternalPort)
	}
	return "http://" + host
}

// StoreHost returns the ingress hostname of the store with the given slug.
func (c StoreConfig) StoreHost(slug string) string {
	return slug + "." + c.Domain
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "storefleet")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "storefleet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", true)

	// K8s
	v.SetDefault("k8s.kubeconfig", "")
	v.SetDefault("k8s.operation_timeout", "30s")
	v.SetDefault("k8s.health_check_interval", "60s")
	v.SetDefault("k8s.qps", 20)
	v.SetDefault("k8s.burst", 40)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 5)
	v.SetDefault("river.completed_job_retention_period", "24h")
	v.SetDefault("river.orphan_sweep_interval", "5m")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.k8s_pool_size", 50)

	// Provisioning
	v.SetDefault("provisioning.concurrency", 3)
	v.SetDefault("provisioning.max_stores", 10)
	v.SetDefault("provisioning.init_timeout", "300s")
	v.SetDefault("provisioning.database_ready_timeout", "120s")
	v.SetDefault("provisioning.deployment_poll_interval", "5s")
	v.SetDefault("provisioning.job_poll_interval", "10s")
	v.SetDefault("provisioning.job_failure_limit", 3)
	v.SetDefault("provisioning.namespace_delete_timeout", "120s")
	v.SetDefault("provisioning.namespace_poll_interval", "3s")
	v.SetDefault("provisioning.orphan_grace_period", "15m")

	// Store
	v.SetDefault("store.domain", "store.127.0.0.1.nip.io")
	v.SetDefault("store.external_port", 0)
	v.SetDefault("store.ingress_class", "nginx")
	v.SetDefault("store.ingress_namespace", "ingress-nginx")
	v.SetDefault("store.mysql_image", "mysql:8.0")
	v.SetDefault("store.wordpress_image", "wordpress-store:latest")
	v.SetDefault("store.image_pull_policy", "IfNotPresent")
	v.SetDefault("store.mysql_storage_size", "1Gi")
	v.SetDefault("store.wordpress_storage_size", "1Gi")
	v.SetDefault("store.storage_class", "")
}
