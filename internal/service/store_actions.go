package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/manifest"
	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
	"storefleet.dev/storefleet/internal/pkg/logger"
)

// Restart targets.
const (
	RestartTargetAll       = "all"
	RestartTargetWordPress = manifest.WordPressName
	RestartTargetMySQL     = manifest.MySQLName
)

// DefaultLogTail is the number of log lines returned when none is requested.
const DefaultLogTail = 100

// Log components a caller can read.
var logComponents = map[string]bool{
	manifest.WordPressName: true,
	manifest.MySQLName:     true,
}

// RestartStore triggers a rolling restart of the store's deployments by
// stamping the restart annotation on their pod templates. Only Ready
// stores can be restarted.
func (s *StoreService) RestartStore(ctx context.Context, storeID, target, clientIP string) ([]string, error) {
	if target == "" {
		target = RestartTargetAll
	}
	var deployments []string
	switch target {
	case RestartTargetAll:
		deployments = []string{manifest.WordPressName, manifest.MySQLName}
	case RestartTargetWordPress, RestartTargetMySQL:
		deployments = []string{target}
	default:
		return nil, apperrors.ErrValidation([]apperrors.FieldError{{
			Field:   "target",
			Code:    "oneof",
			Message: "target must be one of all, wordpress, mysql",
		}})
	}

	store, err := s.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store.Status != domain.StoreStatusReady {
		return nil, apperrors.ErrInvalidState(string(store.Status), "restart")
	}

	patch, err := restartPatch(s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("build restart patch: %w", err)
	}
	log := logger.ForStore(store.ID, store.Namespace)
	restarted := make([]string, 0, len(deployments))
	for _, name := range deployments {
		if err := s.gateway.PatchDeployment(ctx, store.Namespace, name, patch); err != nil {
			log.Warn("Failed to restart deployment", zap.String("deployment", name), zap.Error(err))
			continue
		}
		restarted = append(restarted, name)
	}

	if err := s.audit.LogStoreAction(ctx, domain.AuditActionRestart, store, clientIP, "target", target); err != nil {
		log.Warn("Store restarted without audit entry", zap.Error(err))
	}
	log.Info("Store restart requested", zap.Strings("restarted", restarted))
	return restarted, nil
}

func restartPatch(at time.Time) ([]byte, error) {
	return json.Marshal(map[string]any{
		"spec": map[string]any{
			"template": map[string]any{
				"metadata": map[string]any{
					"annotations": map[string]string{
						manifest.AnnotationRestartedAt: at.Format(time.RFC3339),
					},
				},
			},
		},
	})
}

// StoreLogs returns the tail of the logs of the first pod of component.
func (s *StoreService) StoreLogs(ctx context.Context, storeID, component string, tail int64) (string, error) {
	if !logComponents[component] {
		return "", apperrors.ErrValidation([]apperrors.FieldError{{
			Field:   "component",
			Code:    "oneof",
			Message: "component must be one of wordpress, mysql",
		}})
	}
	if tail <= 0 {
		tail = DefaultLogTail
	}

	store, err := s.GetStore(ctx, storeID)
	if err != nil {
		return "", err
	}

	pods, err := s.gateway.ListPods(ctx, store.Namespace, manifest.LabelApp+"="+component)
	if err != nil {
		return "", fmt.Errorf("list %s pods: %w", component, err)
	}
	if len(pods) == 0 {
		return "", apperrors.NotFound(apperrors.CodePodNotFound,
			fmt.Sprintf("No %s pod found", component)).
			WithParams(map[string]any{"store_id": store.ID, "component": component})
	}

	logs, err := s.gateway.GetPodLogs(ctx, store.Namespace, pods[0].Name, tail)
	if err != nil {
		return "", fmt.Errorf("read %s logs: %w", component, err)
	}
	return logs, nil
}

// StoreHealth summarizes pods, volumes and quota usage of a store.
func (s *StoreService) StoreHealth(ctx context.Context, storeID string) (*domain.StoreHealth, error) {
	store, err := s.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}

	pods, err := s.gateway.ListPods(ctx, store.Namespace, "")
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}
	pvcs, err := s.gateway.ListPersistentVolumeClaims(ctx, store.Namespace)
	if err != nil {
		return nil, fmt.Errorf("list volumes: %w", err)
	}
	quotas, err := s.gateway.ListResourceQuotas(ctx, store.Namespace)
	if err != nil {
		return nil, fmt.Errorf("list quotas: %w", err)
	}
	return s.mapper.MapStoreHealth(store, pods, pvcs, quotas, s.now().UTC()), nil
}
