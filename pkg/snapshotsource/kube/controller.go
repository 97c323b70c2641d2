// Package kube implements a snapshotsource backed by Kubernetes
// ConfigMaps: one ConfigMap per node group, selected by a label,
// carrying the same bundle document shape as the file source.
package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	clog "github.com/xds-controlplane/control-plane/pkg/log"
	"github.com/xds-controlplane/control-plane/pkg/snapshotsource/file"
	"github.com/xds-controlplane/control-plane/pkg/xds/cache"
)

// GroupLabel is the ConfigMap label whose value names the node group
// the ConfigMap's data describes.
const GroupLabel = "xds.control-plane/node-group"

// Reconciler installs a Snapshot into c every time a labelled ConfigMap
// is created or updated, converting its "bundle.yaml" data key the same
// way the file source converts a bundle file. It never writes back to
// the cluster: this is a read-only view over ConfigMaps, mirroring the
// read-only ingress config store it's adapted from.
type Reconciler struct {
	client.Client
	cache cache.SnapshotCache
}

// NewReconciler builds a Reconciler and registers it against mgr,
// watching every ConfigMap; Reconcile ignores those without GroupLabel.
func NewReconciler(mgr manager.Manager, c cache.SnapshotCache) (*Reconciler, error) {
	r := &Reconciler{Client: mgr.GetClient(), cache: c}

	err := ctrl.NewControllerManagedBy(mgr).
		For(&corev1.ConfigMap{}).
		Complete(r)
	if err != nil {
		return nil, fmt.Errorf("building configmap controller: %w", err)
	}
	return r, nil
}

// Reconcile implements controller-runtime's reconcile.Reconciler.
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	var cm corev1.ConfigMap
	if err := r.Get(ctx, req.NamespacedName, &cm); err != nil {
		// Deleted: nothing to do. As with a removed file in the file
		// source, a removed ConfigMap does not clear the group's
		// snapshot — a node group
		// losing its config source should keep serving its last known
		// good snapshot until explicitly replaced.
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	group, ok := cm.Labels[GroupLabel]
	if !ok {
		return ctrl.Result{}, nil
	}

	raw, ok := cm.Data["bundle.yaml"]
	if !ok {
		clog.Source.Warnf("configmap %s/%s missing bundle.yaml key", cm.Namespace, cm.Name)
		return ctrl.Result{}, nil
	}

	if err := file.InstallBundle(r.cache, group, []byte(raw)); err != nil {
		clog.Source.Warnf("installing bundle for group %s from configmap %s/%s: %v", group, cm.Namespace, cm.Name, err)
		return ctrl.Result{}, nil
	}

	clog.Source.Infof("installed snapshot group=%s from configmap=%s/%s", group, cm.Namespace, cm.Name)
	return ctrl.Result{}, nil
}
