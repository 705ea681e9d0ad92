package domain

import "time"

// StoreHealth summarizes the cluster-side state of one store.
type StoreHealth struct {
	StoreID   string        `json:"store_id"`
	Namespace string        `json:"namespace"`
	Pods      []PodHealth   `json:"pods"`
	Volumes   []VolumeState `json:"volumes"`
	Quota     []QuotaUsage  `json:"quota,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// PodHealth is the readiness summary of one pod.
type PodHealth struct {
	Name      string `json:"name"`
	Component string `json:"component,omitempty"`
	Phase     string `json:"phase"`
	Ready     bool   `json:"ready"`
	Restarts  int32  `json:"restarts"`
}

// VolumeState is the binding state of one persistent volume claim.
type VolumeState struct {
	Name     string `json:"name"`
	Phase    string `json:"phase"`
	Capacity string `json:"capacity,omitempty"`
}

// QuotaUsage reports used versus hard limit for one quota resource.
type QuotaUsage struct {
	Resource string `json:"resource"`
	Used     string `json:"used"`
	Hard     string `json:"hard"`
}
