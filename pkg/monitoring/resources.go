/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package monitoring

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	apperrors "github.com/chatdocs/shipit/pkg/errors"
)

// ignoreAlreadyExists returns nil if the error is "already exists", making
// resource creation idempotent.
func ignoreAlreadyExists(err error) error {
	if k8serrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

// ignoreNotFound returns nil if the error is "not found", making resource
// deletion idempotent.
func ignoreNotFound(err error) error {
	if k8serrors.IsNotFound(err) {
		return nil
	}
	return err
}

func wrapApply(err error, kind, name string) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrCodeApply,
		fmt.Sprintf("failed to create %s %s", kind, name), err)
}

func wrapDelete(err error, kind, name string) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrCodeApply,
		fmt.Sprintf("failed to delete %s %s", kind, name), err)
}

func (i *Installer) ensureServiceAccount(ctx context.Context, sa *corev1.ServiceAccount) error {
	if err := i.pace(ctx); err != nil {
		return err
	}
	_, err := i.clientset.CoreV1().ServiceAccounts(i.namespace).Create(ctx, sa, metav1.CreateOptions{})
	return wrapApply(ignoreAlreadyExists(err), "ServiceAccount", sa.Name)
}

func (i *Installer) ensureClusterRole(ctx context.Context, cr *rbacv1.ClusterRole) error {
	if err := i.pace(ctx); err != nil {
		return err
	}
	_, err := i.clientset.RbacV1().ClusterRoles().Create(ctx, cr, metav1.CreateOptions{})
	return wrapApply(ignoreAlreadyExists(err), "ClusterRole", cr.Name)
}

func (i *Installer) ensureClusterRoleBinding(ctx context.Context, crb *rbacv1.ClusterRoleBinding) error {
	if err := i.pace(ctx); err != nil {
		return err
	}
	_, err := i.clientset.RbacV1().ClusterRoleBindings().Create(ctx, crb, metav1.CreateOptions{})
	return wrapApply(ignoreAlreadyExists(err), "ClusterRoleBinding", crb.Name)
}

func (i *Installer) ensureConfigMap(ctx context.Context, cm *corev1.ConfigMap) error {
	if err := i.pace(ctx); err != nil {
		return err
	}
	_, err := i.clientset.CoreV1().ConfigMaps(i.namespace).Create(ctx, cm, metav1.CreateOptions{})
	return wrapApply(ignoreAlreadyExists(err), "ConfigMap", cm.Name)
}

func (i *Installer) ensureDeployment(ctx context.Context, deploy *appsv1.Deployment) error {
	if err := i.pace(ctx); err != nil {
		return err
	}
	_, err := i.clientset.AppsV1().Deployments(i.namespace).Create(ctx, deploy, metav1.CreateOptions{})
	return wrapApply(ignoreAlreadyExists(err), "Deployment", deploy.Name)
}

func (i *Installer) ensureDaemonSet(ctx context.Context, ds *appsv1.DaemonSet) error {
	if err := i.pace(ctx); err != nil {
		return err
	}
	_, err := i.clientset.AppsV1().DaemonSets(i.namespace).Create(ctx, ds, metav1.CreateOptions{})
	return wrapApply(ignoreAlreadyExists(err), "DaemonSet", ds.Name)
}

func (i *Installer) ensureService(ctx context.Context, svc *corev1.Service) error {
	if err := i.pace(ctx); err != nil {
		return err
	}
	_, err := i.clientset.CoreV1().Services(i.namespace).Create(ctx, svc, metav1.CreateOptions{})
	return wrapApply(ignoreAlreadyExists(err), "Service", svc.Name)
}

// meta builds the standard ObjectMeta for a named monitoring resource.
func (i *Installer) meta(name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:      name,
		Namespace: i.namespace,
		Labels:    map[string]string{labelName: name},
	}
}

// clusterMeta builds ObjectMeta for cluster-scoped monitoring resources.
func clusterMeta(name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:   name,
		Labels: map[string]string{labelName: name},
	}
}

// selector returns the pod selector for a monitoring workload.
func selector(name string) *metav1.LabelSelector {
	return &metav1.LabelSelector{
		MatchLabels: map[string]string{labelName: name},
	}
}

// podMeta returns pod template metadata for a monitoring workload.
func podMeta(name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Labels: map[string]string{labelName: name},
	}
}
