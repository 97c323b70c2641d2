package kube

import (
	"fmt"

	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/manager"
)

// NewManager builds a controller-runtime Manager from a kubeconfig
// path (empty string means controller-runtime's default lookup via
// ctrl.GetConfig: KUBECONFIG, in-cluster config, ~/.kube/config), ready to have a
// Reconciler registered against it via NewReconciler.
func NewManager(kubeconfig string) (manager.Manager, error) {
	var restConfig, err = ctrl.GetConfig()
	if kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("loading kube config: %w", err)
	}

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{})
	if err != nil {
		return nil, fmt.Errorf("building controller-runtime manager: %w", err)
	}
	return mgr, nil
}
