// Package provider is the only component that talks to the Kubernetes
// control plane.
//
// Callers hand it fully built API objects and get back typed objects or
// errors wrapping errors.ErrAlreadyExists / errors.ErrNotFound.
package provider

import (
	"fmt"
	"os"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"storefleet.dev/storefleet/internal/config"
)

// NewRESTConfig resolves cluster credentials: an explicit kubeconfig path
// wins, then in-cluster config when running in a pod, then the default
// kubeconfig loading rules.
func NewRESTConfig(cfg config.K8sConfig) (*rest.Config, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	switch {
	case cfg.Kubeconfig == "" && os.Getenv("KUBERNETES_SERVICE_HOST") != "":
		restCfg, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("load in-cluster config: %w", err)
		}
	default:
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		rules.ExplicitPath = cfg.Kubeconfig
		restCfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			rules, &clientcmd.ConfigOverrides{},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig: %w", err)
		}
	}

	if cfg.QPS > 0 {
		restCfg.QPS = cfg.QPS
	}
	if cfg.Burst > 0 {
		restCfg.Burst = cfg.Burst
	}
	restCfg.UserAgent = "storefleet"
	return restCfg, nil
}

// NewKubernetesClient builds a typed clientset from cfg.
func NewKubernetesClient(cfg config.K8sConfig) (kubernetes.Interface, error) {
	restCfg, err := NewRESTConfig(cfg)
	if err != nil {
		return nil, err
	}
	cs, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes clientset: %w", err)
	}
	return cs, nil
}
