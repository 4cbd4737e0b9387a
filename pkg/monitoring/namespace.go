/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package monitoring

import (
	"context"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	apperrors "github.com/chatdocs/shipit/pkg/errors"
	"github.com/chatdocs/shipit/pkg/waitfor"
)

// finalizerHint is surfaced whenever a namespace refuses to go away; patching
// finalizers automatically is unsupported territory, so the operator decides.
const finalizerHint = "kubectl get namespace %[1]s -o json | jq '.spec.finalizers = []' | " +
	"kubectl replace --raw /api/v1/namespaces/%[1]s/finalize -f -"

// ensureNamespace creates the monitoring namespace, first waiting out a
// previous deletion: applying resources into a terminating namespace is
// rejected by the cluster and must not be attempted.
func (i *Installer) ensureNamespace(ctx context.Context) error {
	ns, err := i.clientset.CoreV1().Namespaces().Get(ctx, i.namespace, metav1.GetOptions{})
	switch {
	case err == nil && ns.Status.Phase == corev1.NamespaceTerminating:
		if err := i.waitNamespaceGone(ctx); err != nil {
			return err
		}
	case err == nil:
		return nil // exists and usable
	case !k8serrors.IsNotFound(err):
		return apperrors.Wrap(apperrors.ErrCodeApply,
			"failed to inspect namespace "+i.namespace, err)
	}

	_, err = i.clientset.CoreV1().Namespaces().Create(ctx, &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: i.namespace},
	}, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		err = nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeApply,
			"failed to create namespace "+i.namespace, err)
	}
	slog.Info("namespace ready", "namespace", i.namespace)
	return nil
}

// waitNamespaceGone polls until the namespace is fully removed. Exhausting
// the bound is fatal and carries the manual finalizer-removal procedure.
func (i *Installer) waitNamespaceGone(ctx context.Context) error {
	slog.Info("namespace is terminating, waiting for removal", "namespace", i.namespace)

	cond := waitfor.Condition{
		Description: "deletion of namespace " + i.namespace,
		Interval:    i.NamespaceInterval,
		Attempts:    i.NamespaceAttempts,
		OnTimeout:   waitfor.Fatal,
	}
	err := cond.Wait(ctx, func(ctx context.Context) (bool, error) {
		_, err := i.clientset.CoreV1().Namespaces().Get(ctx, i.namespace, metav1.GetOptions{})
		if k8serrors.IsNotFound(err) {
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return apperrors.WrapWithContext(apperrors.ErrCodeNamespaceConflict,
			fmt.Sprintf("namespace %s is stuck terminating; remove its finalizers manually:\n  %s",
				i.namespace, fmt.Sprintf(finalizerHint, i.namespace)),
			err,
			map[string]any{"namespace": i.namespace})
	}
	return nil
}

// deleteNamespace forcibly deletes the namespace (zero grace period) and
// waits for it to disappear. A leftover namespace surfaces the manual
// finalizer procedure rather than attempting an automatic patch.
func (i *Installer) deleteNamespace(ctx context.Context) error {
	err := i.clientset.CoreV1().Namespaces().Delete(ctx, i.namespace, metav1.DeleteOptions{
		GracePeriodSeconds: ptr.To(int64(0)),
	})
	if k8serrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeApply,
			"failed to delete namespace "+i.namespace, err)
	}

	if err := i.waitNamespaceGone(ctx); err != nil {
		return err
	}
	slog.Info("namespace removed", "namespace", i.namespace)
	return nil
}
