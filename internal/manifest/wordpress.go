package manifest

import (
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

const (
	wordpressPort = 80
	wordpressRoot = "/var/www/html"

	setupBackoffLimit = 3
	setupTTLSeconds   = 300
)

// setupScript installs WordPress core, WooCommerce, a sample product and
// cash on delivery. Store values arrive through the environment so no user
// input is interpolated into the script. Individual steps tolerate failure
// so that re-runs over an installed site succeed.
const setupScript = `#!/bin/bash
set -e

echo "Waiting for WordPress to be reachable..."
until curl -sf http://wordpress/wp-login.php > /dev/null 2>&1; do
  echo "WordPress not ready yet, waiting..."
  sleep 5
done

cd /tmp
curl -sO https://raw.githubusercontent.com/wp-cli/builds/gh-pages/phar/wp-cli.phar
chmod +x wp-cli.phar
WP="php /tmp/wp-cli.phar --allow-root --path=/var/www/html"

$WP core install \
  --url="$STORE_URL" \
  --title="$STORE_NAME" \
  --admin_user="$ADMIN_USER" \
  --admin_password="$ADMIN_PASSWORD" \
  --admin_email="$ADMIN_EMAIL" \
  --skip-email || true

$WP plugin install woocommerce --activate || true
$WP rewrite structure '/%postname%/' || true

$WP wc product create \
  --name="Sample Product" \
  --regular_price="19.99" \
  --description="A sample product for testing." \
  --short_description="Sample product" \
  --status=publish \
  --user="$ADMIN_USER" || true

$WP option update woocommerce_cod_settings '{"enabled":"yes","title":"Cash on Delivery","description":"Pay with cash upon delivery.","instructions":"Pay with cash upon delivery."}' --format=json || true
$WP wc tool run install_pages --user="$ADMIN_USER" || true

echo "WooCommerce setup complete"
`

// wordpressKeyEnv maps the salts in the wordpress secret onto the variables
// the official image reads into wp-config.php.
var wordpressKeyEnv = []string{
	"AUTH_KEY", "SECURE_AUTH_KEY", "LOGGED_IN_KEY", "NONCE_KEY",
	"AUTH_SALT", "SECURE_AUTH_SALT", "LOGGED_IN_SALT", "NONCE_SALT",
}

func storeEnv(p StoreParams) []corev1.EnvVar {
	return []corev1.EnvVar{
		{Name: "STORE_NAME", Value: p.StoreName},
		{Name: "STORE_URL", Value: p.StoreURL},
		{Name: "ADMIN_EMAIL", Value: p.AdminEmail},
		{Name: "ADMIN_USER", Value: WordPressAdminUser},
		secretEnv("ADMIN_PASSWORD", WordPressSecretName, "admin-password"),
	}
}

// WordPressPVC returns the claim holding wp-content and core files.
func (b *Builder) WordPressPVC(namespace string) *corev1.PersistentVolumeClaim {
	return b.pvc(namespace, WordPressDataName, WordPressName, b.cfg.WordPressStorageSize)
}

// WordPressDeployment returns the storefront deployment.
func (b *Builder) WordPressDeployment(namespace string, p StoreParams) *appsv1.Deployment {
	login := corev1.ProbeHandler{
		HTTPGet: &corev1.HTTPGetAction{Path: "/wp-login.php", Port: intstr.FromInt32(wordpressPort)},
	}
	env := databaseEnv()
	for _, key := range wordpressKeyEnv {
		env = append(env, secretEnv("WORDPRESS_"+key, WordPressSecretName, key))
	}
	env = append(env, storeEnv(p)...)

	container := corev1.Container{
		Name:            WordPressName,
		Image:           b.cfg.WordPressImage,
		ImagePullPolicy: b.pullPolicy(),
		Ports:           []corev1.ContainerPort{{ContainerPort: wordpressPort}},
		Env:             env,
		VolumeMounts:    []corev1.VolumeMount{{Name: WordPressDataName, MountPath: wordpressRoot}},
		ReadinessProbe: &corev1.Probe{
			ProbeHandler:        login,
			InitialDelaySeconds: 15,
			PeriodSeconds:       10,
			TimeoutSeconds:      5,
		},
		LivenessProbe: &corev1.Probe{
			ProbeHandler:        login,
			InitialDelaySeconds: 60,
			PeriodSeconds:       15,
			TimeoutSeconds:      5,
		},
		Resources: resources("100m", "256Mi", "1000m", "512Mi"),
	}
	return b.deployment(namespace, WordPressName, container, pvcVolume(WordPressDataName))
}

// WordPressService exposes the storefront on port 80.
func (b *Builder) WordPressService(namespace string) *corev1.Service {
	return b.service(namespace, WordPressName, wordpressPort)
}

// WooCommerceSetupJob returns the one-shot job that installs and configures
// WooCommerce against the running WordPress site.
func (b *Builder) WooCommerceSetupJob(namespace string, p StoreParams) *batchv1.Job {
	env := append(databaseEnv(), storeEnv(p)...)
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: SetupJobName, Namespace: namespace, Labels: managedLabels("")},
		Spec: batchv1.JobSpec{
			BackoffLimit:            ptr(int32(setupBackoffLimit)),
			TTLSecondsAfterFinished: ptr(int32(setupTTLSeconds)),
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyOnFailure,
					Containers: []corev1.Container{{
						Name:            "wc-setup",
						Image:           b.cfg.WordPressImage,
						ImagePullPolicy: b.pullPolicy(),
						Command:         []string{"/bin/bash", "-c", setupScript},
						Env:             env,
						VolumeMounts:    []corev1.VolumeMount{{Name: WordPressDataName, MountPath: wordpressRoot}},
						Resources:       resources("100m", "256Mi", "500m", "512Mi"),
					}},
					Volumes: []corev1.Volume{pvcVolume(WordPressDataName)},
				},
			},
		},
	}
}

// Ingress routes the store host to the WordPress service.
func (b *Builder) Ingress(namespace, host string) *networkingv1.Ingress {
	pathType := networkingv1.PathTypePrefix
	ing := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:        IngressName,
			Namespace:   namespace,
			Labels:      managedLabels(""),
			Annotations: map[string]string{"nginx.ingress.kubernetes.io/proxy-body-size": "50m"},
		},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{{
				Host: host,
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path:     "/",
							PathType: &pathType,
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: WordPressName,
									Port: networkingv1.ServiceBackendPort{Number: wordpressPort},
								},
							},
						}},
					},
				},
			}},
		},
	}
	if b.cfg.IngressClass != "" {
		ing.Spec.IngressClassName = ptr(b.cfg.IngressClass)
	}
	return ing
}
