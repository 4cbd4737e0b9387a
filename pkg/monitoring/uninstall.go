/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package monitoring

import (
	"context"
	"log/slog"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Uninstall removes the monitoring stack in three passes: cluster-scoped
// RBAC first (namespace removal does not touch it), then each component's
// workloads in reverse install order so a failed delete is attributable to
// one component, then the namespace with everything it still contains.
func (i *Installer) Uninstall(ctx context.Context) error {
	for _, name := range []string{prometheusName, kubeStateMetricsName} {
		if err := i.pace(ctx); err != nil {
			return err
		}
		err := i.clientset.RbacV1().ClusterRoleBindings().Delete(ctx, name, metav1.DeleteOptions{})
		if err := wrapDelete(ignoreNotFound(err), "ClusterRoleBinding", name); err != nil {
			return err
		}

		if err := i.pace(ctx); err != nil {
			return err
		}
		err = i.clientset.RbacV1().ClusterRoles().Delete(ctx, name, metav1.DeleteOptions{})
		if err := wrapDelete(ignoreNotFound(err), "ClusterRole", name); err != nil {
			return err
		}
	}

	for _, name := range []string{grafanaName, kubeStateMetricsName, nodeExporterName, prometheusName} {
		if err := i.deleteWorkloads(ctx, name); err != nil {
			return err
		}
	}

	if err := i.deleteNamespace(ctx); err != nil {
		return err
	}

	slog.Info("monitoring stack removed", "namespace", i.namespace)
	return nil
}

// deleteWorkloads removes one component's namespaced workloads: its service
// and its deployment or daemonset, whichever exists.
func (i *Installer) deleteWorkloads(ctx context.Context, name string) error {
	if err := i.pace(ctx); err != nil {
		return err
	}
	err := i.clientset.CoreV1().Services(i.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err := wrapDelete(ignoreNotFound(err), "Service", name); err != nil {
		return err
	}

	if err := i.pace(ctx); err != nil {
		return err
	}
	if name == nodeExporterName {
		err = i.clientset.AppsV1().DaemonSets(i.namespace).Delete(ctx, name, metav1.DeleteOptions{})
		return wrapDelete(ignoreNotFound(err), "DaemonSet", name)
	}
	err = i.clientset.AppsV1().Deployments(i.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	return wrapDelete(ignoreNotFound(err), "Deployment", name)
}
