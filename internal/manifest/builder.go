// Package manifest builds the Kubernetes objects that make up one store.
//
// Every function is pure: it takes the namespace and store parameters and
// returns a fresh API object for the cluster gateway to create.
package manifest

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"storefleet.dev/storefleet/internal/config"
)

// Label keys and values stamped on every managed object.
const (
	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelStoreID   = "store-platform/store-id"
	LabelApp       = "app"
	ManagedBy      = "store-platform"

	// AnnotationRestartedAt triggers a rollout when patched onto a pod template.
	AnnotationRestartedAt = "store-platform/restartedAt"
)

// Object names inside a store namespace.
const (
	MySQLName           = "mysql"
	MySQLSecretName     = "mysql-credentials"
	MySQLDataName       = "mysql-data"
	WordPressName       = "wordpress"
	WordPressSecretName = "wordpress-secrets"
	WordPressDataName   = "wordpress-data"
	SetupJobName        = "woocommerce-setup"
	IngressName         = "wordpress-ingress"
	NetworkPolicyName   = "store-isolation"
	ResourceQuotaName   = "store-quota"
	LimitRangeName      = "store-limits"
	MySQLDatabase       = "wordpress"
	MySQLUser           = "wordpress"
	WordPressAdminUser  = "admin"
)

// StoreParams are the per-store values baked into the application objects.
type StoreParams struct {
	StoreID    string
	StoreName  string
	StoreURL   string
	AdminEmail string
}

// Builder renders store objects using the platform-wide store settings.
type Builder struct {
	cfg config.StoreConfig
}

// NewBuilder creates a Builder.
func NewBuilder(cfg config.StoreConfig) *Builder {
	return &Builder{cfg: cfg}
}

func managedLabels(app string) map[string]string {
	l := map[string]string{LabelManagedBy: ManagedBy}
	if app != "" {
		l[LabelApp] = app
	}
	return l
}

func (b *Builder) pullPolicy() corev1.PullPolicy {
	return corev1.PullPolicy(b.cfg.ImagePullPolicy)
}

func resources(reqCPU, reqMem, limCPU, limMem string) corev1.ResourceRequirements {
	return corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(reqCPU),
			corev1.ResourceMemory: resource.MustParse(reqMem),
		},
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(limCPU),
			corev1.ResourceMemory: resource.MustParse(limMem),
		},
	}
}

func secretEnv(name, secret, key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: secret},
				Key:                  key,
			},
		},
	}
}

func databaseEnv() []corev1.EnvVar {
	return []corev1.EnvVar{
		{Name: "WORDPRESS_DB_HOST", Value: MySQLName},
		{Name: "WORDPRESS_DB_USER", Value: MySQLUser},
		secretEnv("WORDPRESS_DB_PASSWORD", MySQLSecretName, "wordpress-password"),
		{Name: "WORDPRESS_DB_NAME", Value: MySQLDatabase},
	}
}

func pvcVolume(name string) corev1.Volume {
	return corev1.Volume{
		Name: name,
		VolumeSource: corev1.VolumeSource{
			PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: name},
		},
	}
}

func ptr[T any](v T) *T { return &v }
