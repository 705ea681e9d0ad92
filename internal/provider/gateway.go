package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"

	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
)

// ClusterGateway is the create/read/patch/delete surface used by the
// provisioning and teardown pipelines.
type ClusterGateway interface {
	CreateNamespace(ctx context.Context, ns *corev1.Namespace) error
	GetNamespace(ctx context.Context, name string) (*corev1.Namespace, error)
	DeleteNamespace(ctx context.Context, name string) error

	CreateSecret(ctx context.Context, namespace string, secret *corev1.Secret) error
	GetSecret(ctx context.Context, namespace, name string) (*corev1.Secret, error)
	CreateResourceQuota(ctx context.Context, namespace string, quota *corev1.ResourceQuota) error
	CreateLimitRange(ctx context.Context, namespace string, lr *corev1.LimitRange) error
	CreatePersistentVolumeClaim(ctx context.Context, namespace string, pvc *corev1.PersistentVolumeClaim) error

	CreateDeployment(ctx context.Context, namespace string, d *appsv1.Deployment) error
	GetDeployment(ctx context.Context, namespace, name string) (*appsv1.Deployment, error)
	PatchDeployment(ctx context.Context, namespace, name string, patch []byte) error
	CreateService(ctx context.Context, namespace string, svc *corev1.Service) error

	CreateJob(ctx context.Context, namespace string, job *batchv1.Job) error
	GetJob(ctx context.Context, namespace, name string) (*batchv1.Job, error)

	CreateIngress(ctx context.Context, namespace string, ing *networkingv1.Ingress) error
	CreateNetworkPolicy(ctx context.Context, namespace string, np *networkingv1.NetworkPolicy) error

	ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error)
	GetPodLogs(ctx context.Context, namespace, pod string, tailLines int64) (string, error)
	ListPersistentVolumeClaims(ctx context.Context, namespace string) ([]corev1.PersistentVolumeClaim, error)
	ListResourceQuotas(ctx context.Context, namespace string) ([]corev1.ResourceQuota, error)

	ServerVersion(ctx context.Context) (string, error)
}

// IsConflict reports whether err means the resource already exists.
func IsConflict(err error) bool {
	return errors.Is(err, apperrors.ErrAlreadyExists)
}

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

// KubeGateway implements ClusterGateway over a typed clientset.
type KubeGateway struct {
	client           kubernetes.Interface
	operationTimeout time.Duration
}

var _ ClusterGateway = (*KubeGateway)(nil)

// NewKubeGateway creates a KubeGateway. Each API call is bounded by
// operationTimeout.
func NewKubeGateway(client kubernetes.Interface, operationTimeout time.Duration) *KubeGateway {
	if operationTimeout <= 0 {
		operationTimeout = 30 * time.Second
	}
	return &KubeGateway{client: client, operationTimeout: operationTimeout}
}

// withTimeout wraps ctx with the configured K8s operation timeout.
func (g *KubeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.operationTimeout)
}

// wrap classifies API errors. AlreadyExists and NotFound wrap the shared
// sentinels; everything else keeps the API server's message.
func wrap(err error, verb, kind, namespace, name string) error {
	if err == nil {
		return nil
	}
	ref := name
	if namespace != "" {
		ref = namespace + "/" + name
	}
	switch {
	case apierrors.IsAlreadyExists(err):
		return fmt.Errorf("%w: %s %s", apperrors.ErrAlreadyExists, kind, ref)
	case apierrors.IsNotFound(err):
		return fmt.Errorf("%w: %s %s", apperrors.ErrNotFound, kind, ref)
	default:
		return fmt.Errorf("%s %s %s: %w", verb, kind, ref, err)
	}
}

func (g *KubeGateway) CreateNamespace(ctx context.Context, ns *corev1.Namespace) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	return wrap(err, "create", "namespace", "", ns.Name)
}

func (g *KubeGateway) GetNamespace(ctx context.Context, name string) (*corev1.Namespace, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	ns, err := g.client.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, wrap(err, "get", "namespace", "", name)
	}
	return ns, nil
}

// DeleteNamespace deletes a namespace in the foreground so dependents are
// removed before the namespace itself disappears.
func (g *KubeGateway) DeleteNamespace(ctx context.Context, name string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	policy := metav1.DeletePropagationForeground
	err := g.client.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
	return wrap(err, "delete", "namespace", "", name)
}

func (g *KubeGateway) CreateSecret(ctx context.Context, namespace string, secret *corev1.Secret) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{})
	return wrap(err, "create", "secret", namespace, secret.Name)
}

func (g *KubeGateway) GetSecret(ctx context.Context, namespace, name string) (*corev1.Secret, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	secret, err := g.client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, wrap(err, "get", "secret", namespace, name)
	}
	return secret, nil
}

func (g *KubeGateway) CreateResourceQuota(ctx context.Context, namespace string, quota *corev1.ResourceQuota) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.CoreV1().ResourceQuotas(namespace).Create(ctx, quota, metav1.CreateOptions{})
	return wrap(err, "create", "resourcequota", namespace, quota.Name)
}

func (g *KubeGateway) CreateLimitRange(ctx context.Context, namespace string, lr *corev1.LimitRange) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.CoreV1().LimitRanges(namespace).Create(ctx, lr, metav1.CreateOptions{})
	return wrap(err, "create", "limitrange", namespace, lr.Name)
}

func (g *KubeGateway) CreatePersistentVolumeClaim(ctx context.Context, namespace string, pvc *corev1.PersistentVolumeClaim) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.CoreV1().PersistentVolumeClaims(namespace).Create(ctx, pvc, metav1.CreateOptions{})
	return wrap(err, "create", "persistentvolumeclaim", namespace, pvc.Name)
}

func (g *KubeGateway) CreateDeployment(ctx context.Context, namespace string, d *appsv1.Deployment) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.AppsV1().Deployments(namespace).Create(ctx, d, metav1.CreateOptions{})
	return wrap(err, "create", "deployment", namespace, d.Name)
}

func (g *KubeGateway) GetDeployment(ctx context.Context, namespace, name string) (*appsv1.Deployment, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	d, err := g.client.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, wrap(err, "get", "deployment", namespace, name)
	}
	return d, nil
}

// PatchDeployment applies a strategic merge patch.
func (g *KubeGateway) PatchDeployment(ctx context.Context, namespace, name string, patch []byte) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.AppsV1().Deployments(namespace).Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	return wrap(err, "patch", "deployment", namespace, name)
}

func (g *KubeGateway) CreateService(ctx context.Context, namespace string, svc *corev1.Service) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.CoreV1().Services(namespace).Create(ctx, svc, metav1.CreateOptions{})
	return wrap(err, "create", "service", namespace, svc.Name)
}

func (g *KubeGateway) CreateJob(ctx context.Context, namespace string, job *batchv1.Job) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.BatchV1().Jobs(namespace).Create(ctx, job, metav1.CreateOptions{})
	return wrap(err, "create", "job", namespace, job.Name)
}

func (g *KubeGateway) GetJob(ctx context.Context, namespace, name string) (*batchv1.Job, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	job, err := g.client.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, wrap(err, "get", "job", namespace, name)
	}
	return job, nil
}

func (g *KubeGateway) CreateIngress(ctx context.Context, namespace string, ing *networkingv1.Ingress) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.NetworkingV1().Ingresses(namespace).Create(ctx, ing, metav1.CreateOptions{})
	return wrap(err, "create", "ingress", namespace, ing.Name)
}

func (g *KubeGateway) CreateNetworkPolicy(ctx context.Context, namespace string, np *networkingv1.NetworkPolicy) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.NetworkingV1().NetworkPolicies(namespace).Create(ctx, np, metav1.CreateOptions{})
	return wrap(err, "create", "networkpolicy", namespace, np.Name)
}

func (g *KubeGateway) ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	list, err := g.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, wrap(err, "list", "pods", namespace, labelSelector)
	}
	return list.Items, nil
}

// GetPodLogs returns the last tailLines lines of the pod's first container.
func (g *KubeGateway) GetPodLogs(ctx context.Context, namespace, pod string, tailLines int64) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	opts := &corev1.PodLogOptions{}
	if tailLines > 0 {
		opts.TailLines = &tailLines
	}
	stream, err := g.client.CoreV1().Pods(namespace).GetLogs(pod, opts).Stream(ctx)
	if err != nil {
		return "", wrap(err, "stream logs", "pod", namespace, pod)
	}
	defer stream.Close()

	const maxLogBytes = 1 << 20
	data, err := io.ReadAll(io.LimitReader(stream, maxLogBytes))
	if err != nil {
		return "", fmt.Errorf("read logs for pod %s/%s: %w", namespace, pod, err)
	}
	return string(data), nil
}

func (g *KubeGateway) ListPersistentVolumeClaims(ctx context.Context, namespace string) ([]corev1.PersistentVolumeClaim, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	list, err := g.client.CoreV1().PersistentVolumeClaims(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, wrap(err, "list", "persistentvolumeclaims", namespace, "")
	}
	return list.Items, nil
}

func (g *KubeGateway) ListResourceQuotas(ctx context.Context, namespace string) ([]corev1.ResourceQuota, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	list, err := g.client.CoreV1().ResourceQuotas(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, wrap(err, "list", "resourcequotas", namespace, "")
	}
	return list.Items, nil
}

// ServerVersion returns the API server's git version.
func (g *KubeGateway) ServerVersion(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := g.client.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("get server version: %w", err)
	}
	return info.GitVersion, nil
}
