// Package domain provides the storefleet domain model.
//
// Types here are persistence- and cluster-agnostic: repositories map rows
// into them and the provisioner never exposes Kubernetes types through them.
package domain

import "time"

// Store is one tenant e-commerce stack living in its own namespace.
type Store struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Slug      string      `json:"slug"`
	Namespace string      `json:"namespace"`
	Status    StoreStatus `json:"status"`
	Plan      Plan        `json:"plan"`

	// Populated on the Ready transition only.
	URL           *string `json:"url"`
	AdminURL      *string `json:"admin_url"`
	AdminPassword *string `json:"admin_password,omitempty"`

	AdminEmail   string  `json:"admin_email"`
	ErrorMessage *string `json:"error_message"`

	CreatedAt     time.Time  `json:"created_at"`
	ProvisionedAt *time.Time `json:"provisioned_at"`
}

// NewStore builds a Store in its initial Provisioning state. Slug and
// namespace are derived from name and fixed for the store's lifetime.
func NewStore(id, name, adminEmail string, plan Plan, now time.Time) *Store {
	slug := GenerateSlug(name)
	return &Store{
		ID:         id,
		Name:       name,
		Slug:       slug,
		Namespace:  GenerateNamespace(slug),
		Status:     StoreStatusProvisioning,
		Plan:       plan,
		AdminEmail: adminEmail,
		CreatedAt:  now,
	}
}

// ReadyDetails carries the fields recorded on the Ready transition.
type ReadyDetails struct {
	URL           string
	AdminURL      string
	AdminPassword string
}

// StoreStatus is the lifecycle state of a store.
type StoreStatus string

const (
	StoreStatusProvisioning StoreStatus = "Provisioning"
	StoreStatusReady        StoreStatus = "Ready"
	StoreStatusFailed       StoreStatus = "Failed"
	StoreStatusDeleting     StoreStatus = "Deleting"
)

// Valid reports whether s is a known status.
func (s StoreStatus) Valid() bool {
	switch s {
	case StoreStatusProvisioning, StoreStatusReady, StoreStatusFailed, StoreStatusDeleting:
		return true
	}
	return false
}

// Settled reports whether the provisioning pipeline is done with the store.
func (s StoreStatus) Settled() bool {
	return s == StoreStatusReady || s == StoreStatusFailed
}

// transitions lists the allowed status edges. Deleting ends in record
// deletion; its only stored successor is Failed when cleanup fails.
// Failed→Failed lets the queue overwrite a pipeline's own failure message.
var transitions = map[StoreStatus][]StoreStatus{
	StoreStatusProvisioning: {StoreStatusReady, StoreStatusFailed},
	StoreStatusReady:        {StoreStatusDeleting},
	StoreStatusFailed:       {StoreStatusDeleting, StoreStatusFailed},
	StoreStatusDeleting:     {StoreStatusFailed},
}

// CanTransition reports whether a store may move from one status to another.
func CanTransition(from, to StoreStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Predecessors returns every status that may transition into to.
func Predecessors(to StoreStatus) []StoreStatus {
	var out []StoreStatus
	for _, from := range []StoreStatus{
		StoreStatusProvisioning, StoreStatusReady, StoreStatusFailed, StoreStatusDeleting,
	} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Plan selects the e-commerce engine a store is provisioned with.
type Plan string

const (
	PlanWooCommerce Plan = "woocommerce"
	PlanMedusa      Plan = "medusa"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	return p == PlanWooCommerce || p == PlanMedusa
}

// StoreList is the list view returned to API clients.
type StoreList struct {
	Stores    []*Store `json:"stores"`
	QueueSize int      `json:"queue_size"`
}
