package manifest

import (
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Namespace returns the store namespace labeled with its owner.
func (b *Builder) Namespace(namespace, storeID string) *corev1.Namespace {
	labels := managedLabels("")
	labels[LabelStoreID] = storeID
	return &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: namespace, Labels: labels},
	}
}

// ResourceQuota caps the aggregate footprint of one store.
func (b *Builder) ResourceQuota(namespace string) *corev1.ResourceQuota {
	return &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{Name: ResourceQuotaName, Namespace: namespace, Labels: managedLabels("")},
		Spec: corev1.ResourceQuotaSpec{
			Hard: corev1.ResourceList{
				corev1.ResourceRequestsCPU:            resource.MustParse("2"),
				corev1.ResourceRequestsMemory:         resource.MustParse("2Gi"),
				corev1.ResourceLimitsCPU:              resource.MustParse("4"),
				corev1.ResourceLimitsMemory:           resource.MustParse("4Gi"),
				corev1.ResourcePersistentVolumeClaims: resource.MustParse("4"),
				corev1.ResourcePods:                   resource.MustParse("10"),
			},
		},
	}
}

// LimitRange sets per-container defaults and bounds plus PVC size bounds.
func (b *Builder) LimitRange(namespace string) *corev1.LimitRange {
	return &corev1.LimitRange{
		ObjectMeta: metav1.ObjectMeta{Name: LimitRangeName, Namespace: namespace, Labels: managedLabels("")},
		Spec: corev1.LimitRangeSpec{
			Limits: []corev1.LimitRangeItem{
				{
					Type: corev1.LimitTypeContainer,
					Default: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("500m"),
						corev1.ResourceMemory: resource.MustParse("512Mi"),
					},
					DefaultRequest: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("100m"),
						corev1.ResourceMemory: resource.MustParse("256Mi"),
					},
					Max: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("2"),
						corev1.ResourceMemory: resource.MustParse("1Gi"),
					},
					Min: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("50m"),
						corev1.ResourceMemory: resource.MustParse("64Mi"),
					},
				},
				{
					Type: corev1.LimitTypePersistentVolumeClaim,
					Max:  corev1.ResourceList{corev1.ResourceStorage: resource.MustParse("5Gi")},
					Min:  corev1.ResourceList{corev1.ResourceStorage: resource.MustParse("256Mi")},
				},
			},
		},
	}
}

// NetworkPolicy admits traffic only from pods in the same namespace and
// from the ingress controller namespace.
func (b *Builder) NetworkPolicy(namespace string) *networkingv1.NetworkPolicy {
	ingressNS := b.cfg.IngressNamespace
	if ingressNS == "" {
		ingressNS = "ingress-nginx"
	}
	return &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{Name: NetworkPolicyName, Namespace: namespace, Labels: managedLabels("")},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{},
			PolicyTypes: []networkingv1.PolicyType{networkingv1.PolicyTypeIngress},
			Ingress: []networkingv1.NetworkPolicyIngressRule{
				{From: []networkingv1.NetworkPolicyPeer{{
					NamespaceSelector: &metav1.LabelSelector{
						MatchLabels: map[string]string{"kubernetes.io/metadata.name": ingressNS},
					},
				}}},
				{From: []networkingv1.NetworkPolicyPeer{{
					PodSelector: &metav1.LabelSelector{},
				}}},
			},
		},
	}
}
