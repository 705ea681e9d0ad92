package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"storefleet.dev/storefleet/internal/domain"
)

func TestHealthMapper_MapStoreHealth(t *testing.T) {
	store := &domain.Store{ID: "s1", Namespace: "store-demo"}
	pods := []corev1.Pod{{
		ObjectMeta: metav1.ObjectMeta{Name: "wordpress-abc", Labels: map[string]string{"app": "wordpress"}},
		Status: corev1.PodStatus{
			Phase:      corev1.PodRunning,
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
			ContainerStatuses: []corev1.ContainerStatus{
				{RestartCount: 2},
				{RestartCount: 1},
			},
		},
	}}
	pvcs := []corev1.PersistentVolumeClaim{{
		ObjectMeta: metav1.ObjectMeta{Name: "mysql-data"},
		Status: corev1.PersistentVolumeClaimStatus{
			Phase:    corev1.ClaimBound,
			Capacity: corev1.ResourceList{corev1.ResourceStorage: resource.MustParse("1Gi")},
		},
	}}
	quotas := []corev1.ResourceQuota{{
		Status: corev1.ResourceQuotaStatus{
			Hard: corev1.ResourceList{
				corev1.ResourcePods:           resource.MustParse("10"),
				corev1.ResourceRequestsMemory: resource.MustParse("2Gi"),
			},
			Used: corev1.ResourceList{
				corev1.ResourcePods: resource.MustParse("3"),
			},
		},
	}}

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := NewHealthMapper().MapStoreHealth(store, pods, pvcs, quotas, now)

	require.Equal(t, "store-demo", h.Namespace)
	require.Equal(t, now, h.CheckedAt)
	require.Equal(t, []domain.PodHealth{{
		Name: "wordpress-abc", Component: "wordpress", Phase: "Running", Ready: true, Restarts: 3,
	}}, h.Pods)
	require.Equal(t, []domain.VolumeState{{Name: "mysql-data", Phase: "Bound", Capacity: "1Gi"}}, h.Volumes)
	require.Equal(t, []domain.QuotaUsage{
		{Resource: "pods", Used: "3", Hard: "10"},
		{Resource: "requests.memory", Used: "0", Hard: "2Gi"},
	}, h.Quota)
}

func TestHealthMapper_EmptyNamespace(t *testing.T) {
	h := NewHealthMapper().MapStoreHealth(&domain.Store{ID: "s1"}, nil, nil, nil, time.Now())
	require.NotNil(t, h.Pods)
	require.Empty(t, h.Pods)
	require.Empty(t, h.Quota)
}
