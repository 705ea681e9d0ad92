package domain

import "time"

// EventStatus is the outcome recorded for a pipeline step.
type EventStatus string

const (
	EventStatusStarted   EventStatus = "started"
	EventStatusCompleted EventStatus = "completed"
	EventStatusFailed    EventStatus = "failed"
)

// Pipeline step identifiers recorded in ProvisioningEvent.Step.
const (
	StepCreateNamespace     = "create_namespace"
	StepCreateSecrets       = "create_secrets"
	StepCreateQuota         = "create_quota"
	StepDeployMySQL         = "deploy_mysql"
	StepWaitMySQL           = "wait_mysql"
	StepDeployWordPress     = "deploy_wordpress"
	StepWaitWordPress       = "wait_wordpress"
	StepSetupWooCommerce    = "setup_woocommerce"
	StepCreateIngress       = "create_ingress"
	StepCreateNetworkPolicy = "create_networkpolicy"
	StepReady               = "ready"

	// StepProvisioning is recorded by the queue when a run fails.
	StepProvisioning = "provisioning"
	// StepCleanup is recorded by the teardown pipeline.
	StepCleanup = "cleanup"
)

// ProvisioningEvent is one append-only step transition for a store.
type ProvisioningEvent struct {
	ID        string      `json:"id"`
	StoreID   string      `json:"store_id"`
	Step      string      `json:"step"`
	Status    EventStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
