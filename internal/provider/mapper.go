package provider

import (
	"sort"
	"time"

	corev1 "k8s.io/api/core/v1"

	"storefleet.dev/storefleet/internal/domain"
)

// HealthMapper maps cluster objects of a store namespace into a
// domain.StoreHealth so callers never see Kubernetes types.
type HealthMapper struct{}

// NewHealthMapper creates a new HealthMapper.
func NewHealthMapper() *HealthMapper {
	return &HealthMapper{}
}

// MapStoreHealth builds the health summary. Nil slices are allowed.
func (m *HealthMapper) MapStoreHealth(
	store *domain.Store,
	pods []corev1.Pod,
	pvcs []corev1.PersistentVolumeClaim,
	quotas []corev1.ResourceQuota,
	now time.Time,
) *domain.StoreHealth {
	h := &domain.StoreHealth{
		StoreID:   store.ID,
		Namespace: store.Namespace,
		Pods:      make([]domain.PodHealth, 0, len(pods)),
		Volumes:   make([]domain.VolumeState, 0, len(pvcs)),
		CheckedAt: now,
	}

	for i := range pods {
		h.Pods = append(h.Pods, mapPod(&pods[i]))
	}
	for i := range pvcs {
		h.Volumes = append(h.Volumes, mapPVC(&pvcs[i]))
	}
	for i := range quotas {
		h.Quota = append(h.Quota, mapQuota(&quotas[i])...)
	}
	return h
}

func mapPod(p *corev1.Pod) domain.PodHealth {
	ph := domain.PodHealth{
		Name:  p.Name,
		Phase: string(p.Status.Phase),
	}
	if p.Labels != nil {
		ph.Component = p.Labels["app"]
	}
	for _, c := range p.Status.Conditions {
		if c.Type == corev1.PodReady {
			ph.Ready = c.Status == corev1.ConditionTrue
		}
	}
	for _, cs := range p.Status.ContainerStatuses {
		ph.Restarts += cs.RestartCount
	}
	return ph
}

func mapPVC(pvc *corev1.PersistentVolumeClaim) domain.VolumeState {
	vs := domain.VolumeState{
		Name:  pvc.Name,
		Phase: string(pvc.Status.Phase),
	}
	if q, ok := pvc.Status.Capacity[corev1.ResourceStorage]; ok {
		vs.Capacity = q.String()
	}
	return vs
}

func mapQuota(q *corev1.ResourceQuota) []domain.QuotaUsage {
	names := make([]string, 0, len(q.Status.Hard))
	for name := range q.Status.Hard {
		names = append(names, string(name))
	}
	sort.Strings(names)

	out := make([]domain.QuotaUsage, 0, len(names))
	for _, name := range names {
		rn := corev1.ResourceName(name)
		hard := q.Status.Hard[rn]
		used := q.Status.Used[rn]
		out = append(out, domain.QuotaUsage{
			Resource: name,
			Used:     used.String(),
			Hard:     hard.String(),
		})
	}
	return out
}
