package provisioner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storefleet.dev/storefleet/internal/config"
	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/manifest"
	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/provider"
	"storefleet.dev/storefleet/internal/repository"
)

// EngineWooCommerce is the engine name reported by WooCommercePipeline.
const EngineWooCommerce = "WooCommerce"

// WooCommercePipeline provisions WordPress, WooCommerce and MySQL into the
// store namespace. Every create treats "already exists" as success, so a
// rerun over a partially built namespace converges.
type WooCommercePipeline struct {
	gateway  provider.ClusterGateway
	stores   repository.StoreRepository
	recorder *Recorder
	builder  *manifest.Builder
	storeCfg config.StoreConfig

	dbWait          WaitPolicy
	appWait         WaitPolicy
	jobWait         WaitPolicy
	jobFailureLimit int32

	now             func() time.Time
	generateSecrets func() (*manifest.StoreSecrets, error)
}

// NewWooCommercePipeline wires the pipeline from configuration.
func NewWooCommercePipeline(
	gateway provider.ClusterGateway,
	stores repository.StoreRepository,
	recorder *Recorder,
	storeCfg config.StoreConfig,
	provCfg config.ProvisioningConfig,
) *WooCommercePipeline {
	return &WooCommercePipeline{
		gateway:  gateway,
		stores:   stores,
		recorder: recorder,
		builder:  manifest.NewBuilder(storeCfg),
		storeCfg: storeCfg,
		dbWait: WaitPolicy{
			Interval: provCfg.DeploymentPollInterval,
			Timeout:  provCfg.DatabaseReadyTimeout,
		},
		appWait: WaitPolicy{
			Interval: provCfg.DeploymentPollInterval,
			Timeout:  provCfg.InitTimeout,
		},
		jobWait: WaitPolicy{
			Interval: provCfg.JobPollInterval,
			Timeout:  provCfg.InitTimeout,
		},
		jobFailureLimit: provCfg.JobFailureLimit,
		now:             time.Now,
		generateSecrets: manifest.GenerateStoreSecrets,
	}
}

func (p *WooCommercePipeline) Engine() string { return EngineWooCommerce }

// createFunc is one idempotent create call.
type createFunc func(ctx context.Context) error

// createAll runs creates in order. Conflicts are counted and skipped; any
// other error stops the sequence.
func createAll(ctx context.Context, creates ...createFunc) (skipped int, err error) {
	for _, create := range creates {
		if err := create(ctx); err != nil {
			if provider.IsConflict(err) {
				skipped++
				continue
			}
			return skipped, err
		}
	}
	return skipped, nil
}

func createdMessage(msg string, skipped, total int) string {
	switch {
	case skipped == 0:
		return msg
	case skipped == total:
		return msg + " (already exists, idempotent skip)"
	default:
		return fmt.Sprintf("%s (%d of %d already existed, idempotent skip)", msg, skipped, total)
	}
}

// Provision runs the twelve pipeline steps in order.
func (p *WooCommercePipeline) Provision(ctx context.Context, store *domain.Store) error {
	ns := store.Namespace
	storeURL := p.storeCfg.StoreURL(store.Slug)
	adminURL := storeURL + "/wp-admin"
	host := p.storeCfg.StoreHost(store.Slug)
	params := manifest.StoreParams{
		StoreID:    store.ID,
		StoreName:  store.Name,
		StoreURL:   storeURL,
		AdminEmail: store.AdminEmail,
	}
	b := p.builder
	gw := p.gateway

	logger.ForStore(store.ID, ns).Info("Provisioning store",
		zap.String("engine", EngineWooCommerce),
		zap.String("url", storeURL),
	)

	if err := p.recorder.Step(ctx, store, domain.StepCreateNamespace, "Creating namespace "+ns,
		func(ctx context.Context) (string, error) {
			skipped, err := createAll(ctx, func(ctx context.Context) error {
				return gw.CreateNamespace(ctx, b.Namespace(ns, store.ID))
			})
			return createdMessage("Namespace "+ns+" created", skipped, 1), err
		}); err != nil {
		return err
	}

	var adminPassword string
	if err := p.recorder.Step(ctx, store, domain.StepCreateSecrets, "Generating and creating secrets",
		func(ctx context.Context) (string, error) {
			pw, skipped, err := p.createSecrets(ctx, ns)
			adminPassword = pw
			return createdMessage("Secrets created", skipped, 2), err
		}); err != nil {
		return err
	}

	if err := p.recorder.Step(ctx, store, domain.StepCreateQuota, "Creating resource quota and limit range",
		func(ctx context.Context) (string, error) {
			skipped, err := createAll(ctx,
				func(ctx context.Context) error { return gw.CreateResourceQuota(ctx, ns, b.ResourceQuota(ns)) },
				func(ctx context.Context) error { return gw.CreateLimitRange(ctx, ns, b.LimitRange(ns)) },
			)
			return createdMessage("Resource quota and limit range created", skipped, 2), err
		}); err != nil {
		return err
	}

	if err := p.recorder.Step(ctx, store, domain.StepDeployMySQL, "Deploying MySQL",
		func(ctx context.Context) (string, error) {
			skipped, err := createAll(ctx,
				func(ctx context.Context) error { return gw.CreatePersistentVolumeClaim(ctx, ns, b.MySQLPVC(ns)) },
				func(ctx context.Context) error { return gw.CreateDeployment(ctx, ns, b.MySQLDeployment(ns)) },
				func(ctx context.Context) error { return gw.CreateService(ctx, ns, b.MySQLService(ns)) },
			)
			return createdMessage("MySQL resources created", skipped, 3), err
		}); err != nil {
		return err
	}

	if err := p.recorder.Step(ctx, store, domain.StepWaitMySQL, "Waiting for MySQL to be ready",
		func(ctx context.Context) (string, error) {
			return "MySQL is ready", waitDeploymentReady(ctx, gw, ns, manifest.MySQLName, p.dbWait)
		}); err != nil {
		return err
	}

	if err := p.recorder.Step(ctx, store, domain.StepDeployWordPress, "Deploying WordPress + WooCommerce",
		func(ctx context.Context) (string, error) {
			skipped, err := createAll(ctx,
				func(ctx context.Context) error { return gw.CreatePersistentVolumeClaim(ctx, ns, b.WordPressPVC(ns)) },
				func(ctx context.Context) error {
					return gw.CreateDeployment(ctx, ns, b.WordPressDeployment(ns, params))
				},
				func(ctx context.Context) error { return gw.CreateService(ctx, ns, b.WordPressService(ns)) },
			)
			return createdMessage("WordPress resources created", skipped, 3), err
		}); err != nil {
		return err
	}

	if err := p.recorder.Step(ctx, store, domain.StepWaitWordPress, "Waiting for WordPress to be ready",
		func(ctx context.Context) (string, error) {
			return "WordPress is ready", waitDeploymentReady(ctx, gw, ns, manifest.WordPressName, p.appWait)
		}); err != nil {
		return err
	}

	if err := p.recorder.Step(ctx, store, domain.StepSetupWooCommerce, "Installing WooCommerce and creating sample data",
		func(ctx context.Context) (string, error) {
			skipped, err := createAll(ctx, func(ctx context.Context) error {
				return gw.CreateJob(ctx, ns, b.WooCommerceSetupJob(ns, params))
			})
			if err != nil {
				return "", err
			}
			if err := waitJobComplete(ctx, gw, ns, manifest.SetupJobName, p.jobFailureLimit, p.jobWait); err != nil {
				return "", err
			}
			return createdMessage("WooCommerce installed and configured", skipped, 1), nil
		}); err != nil {
		return err
	}

	if err := p.recorder.Step(ctx, store, domain.StepCreateIngress, "Creating store ingress",
		func(ctx context.Context) (string, error) {
			skipped, err := createAll(ctx, func(ctx context.Context) error {
				return gw.CreateIngress(ctx, ns, b.Ingress(ns, host))
			})
			return createdMessage("Ingress created: "+host, skipped, 1), err
		}); err != nil {
		return err
	}

	if err := p.recorder.Step(ctx, store, domain.StepCreateNetworkPolicy, "Creating network policy",
		func(ctx context.Context) (string, error) {
			skipped, err := createAll(ctx, func(ctx context.Context) error {
				return gw.CreateNetworkPolicy(ctx, ns, b.NetworkPolicy(ns))
			})
			return createdMessage("Network policy created", skipped, 1), err
		}); err != nil {
		return err
	}

	return p.recorder.Step(ctx, store, domain.StepReady, "Marking store ready",
		func(ctx context.Context) (string, error) {
			details := domain.ReadyDetails{URL: storeURL, AdminURL: adminURL, AdminPassword: adminPassword}
			if err := p.stores.MarkReady(ctx, store.ID, details, p.now().UTC()); err != nil {
				return "", fmt.Errorf("mark store ready: %w", err)
			}
			return "Store ready at " + storeURL, nil
		})
}

// createSecrets creates both store secrets and returns the admin password
// that the cluster actually holds. When the wordpress secret survives from
// an earlier run its password wins over the freshly generated one.
func (p *WooCommercePipeline) createSecrets(ctx context.Context, ns string) (string, int, error) {
	secrets, err := p.generateSecrets()
	if err != nil {
		return "", 0, err
	}
	skipped, err := createAll(ctx,
		func(ctx context.Context) error {
			return p.gateway.CreateSecret(ctx, ns, p.builder.MySQLSecret(ns, secrets))
		},
	)
	if err != nil {
		return "", skipped, err
	}

	err = p.gateway.CreateSecret(ctx, ns, p.builder.WordPressSecret(ns, secrets))
	switch {
	case err == nil:
		return secrets.AdminPassword, skipped, nil
	case !provider.IsConflict(err):
		return "", skipped, err
	}
	skipped++

	existing, err := p.gateway.GetSecret(ctx, ns, manifest.WordPressSecretName)
	if err != nil {
		return "", skipped, fmt.Errorf("read existing admin password: %w", err)
	}
	if pw, ok := existing.Data["admin-password"]; ok && len(pw) > 0 {
		return string(pw), skipped, nil
	}
	if pw := existing.StringData["admin-password"]; pw != "" {
		return pw, skipped, nil
	}
	return "", skipped, fmt.Errorf("secret %s/%s has no admin-password", ns, manifest.WordPressSecretName)
}
