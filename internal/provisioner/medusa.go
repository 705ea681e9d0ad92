package provisioner

import (
	"context"
	"errors"
	"fmt"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/repository"
)

// EngineMedusa is the engine name reported by MedusaPipeline.
const EngineMedusa = "MedusaJS"

// ErrMedusaNotImplemented is returned by every Medusa run. Its text is what
// the store's error message ends up showing.
var ErrMedusaNotImplemented = errors.New("MedusaJS engine coming soon. Select WooCommerce for a fully functional store.")

// MedusaPipeline reserves the medusa plan. It touches no cluster state and
// fails every run after recording why.
//
// A full implementation needs PostgreSQL, Redis, the Medusa backend and a
// storefront, each with its own service and ingress.
type MedusaPipeline struct {
	stores   repository.StoreRepository
	recorder *Recorder
}

// NewMedusaPipeline creates a MedusaPipeline.
func NewMedusaPipeline(stores repository.StoreRepository, recorder *Recorder) *MedusaPipeline {
	return &MedusaPipeline{stores: stores, recorder: recorder}
}

func (p *MedusaPipeline) Engine() string { return EngineMedusa }

func (p *MedusaPipeline) Provision(ctx context.Context, store *domain.Store) error {
	p.recorder.Record(ctx, store.ID, domain.StepProvisioning, domain.EventStatusFailed,
		"MedusaJS provisioning is not yet implemented. Requires PostgreSQL, Redis, MedusaJS backend and storefront resource builders.")

	msg := ErrMedusaNotImplemented.Error()
	if err := p.stores.UpdateStatus(ctx, store.ID, domain.StoreStatusFailed, &msg,
		domain.StoreStatusProvisioning, domain.StoreStatusFailed); err != nil {
		return fmt.Errorf("%w: %v", ErrMedusaNotImplemented, err)
	}
	return ErrMedusaNotImplemented
}
