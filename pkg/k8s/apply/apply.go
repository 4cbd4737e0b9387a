/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package apply decodes rendered manifests into typed objects and applies
// them to the cluster in the pipeline's fixed order. Every apply is
// idempotent (create-or-update, last write wins); re-running the pipeline
// with identical inputs leaves cluster state unchanged.
package apply

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"

	"github.com/chatdocs/shipit/pkg/defaults"
	apperrors "github.com/chatdocs/shipit/pkg/errors"
	"github.com/chatdocs/shipit/pkg/render"
)

// Manifest filenames applied in fixed order. The secret must exist before
// the deployment that mounts it; the service before the optional ingress
// that routes to it.
const (
	SecretManifest     = render.SecretTemplateName
	DeploymentManifest = "deployment.yaml"
	ServiceManifest    = "service.yaml"
	IngressManifest    = "ingress.yaml"
)

// Applier applies rendered manifests to one namespace of the target cluster.
type Applier struct {
	clientset kubernetes.Interface
	namespace string
}

// NewApplier creates an Applier for the given namespace.
func NewApplier(clientset kubernetes.Interface, namespace string) *Applier {
	return &Applier{clientset: clientset, namespace: namespace}
}

// ApplyOrdered applies the rendered manifests from dir in the fixed order
// secret, deployment, service, and (when includeIngress) ingress. It stops
// at the first failure; partial state is left for the next idempotent run.
func (a *Applier) ApplyOrdered(ctx context.Context, dir string, includeIngress bool) error {
	files := []string{SecretManifest, DeploymentManifest, ServiceManifest}
	if includeIngress {
		files = append(files, IngressManifest)
	}

	for _, name := range files {
		if err := a.ApplyFile(ctx, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// ApplyFile decodes one rendered manifest and creates or updates the
// resource it declares.
func (a *Applier) ApplyFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeRender,
			"missing rendered manifest "+filepath.Base(path), err)
	}

	obj, gvk, err := scheme.Codecs.UniversalDeserializer().Decode(raw, nil, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeApply,
			"failed to decode manifest "+filepath.Base(path), err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaults.ApplyTimeout)
	defer cancel()

	if err := a.applyObject(ctx, obj); err != nil {
		return err
	}
	slog.Info("applied manifest", "kind", gvk.Kind, "file", filepath.Base(path))
	return nil
}

func (a *Applier) applyObject(ctx context.Context, obj runtime.Object) error {
	switch o := obj.(type) {
	case *corev1.Secret:
		return a.applySecret(ctx, o)
	case *appsv1.Deployment:
		return a.applyDeployment(ctx, o)
	case *corev1.Service:
		return a.applyService(ctx, o)
	case *networkingv1.Ingress:
		return a.applyIngress(ctx, o)
	default:
		return apperrors.New(apperrors.ErrCodeApply,
			fmt.Sprintf("unsupported resource kind %T", obj))
	}
}

func (a *Applier) namespaceOf(ns string) string {
	if ns != "" {
		return ns
	}
	return a.namespace
}

func (a *Applier) applySecret(ctx context.Context, secret *corev1.Secret) error {
	ns := a.namespaceOf(secret.Namespace)
	secrets := a.clientset.CoreV1().Secrets(ns)

	_, err := secrets.Create(ctx, secret, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		existing, getErr := secrets.Get(ctx, secret.Name, metav1.GetOptions{})
		if getErr != nil {
			return classify(getErr, "Secret", secret.Name)
		}
		secret.ResourceVersion = existing.ResourceVersion
		_, err = secrets.Update(ctx, secret, metav1.UpdateOptions{})
	}
	return classify(err, "Secret", secret.Name)
}

func (a *Applier) applyDeployment(ctx context.Context, deploy *appsv1.Deployment) error {
	ns := a.namespaceOf(deploy.Namespace)
	deployments := a.clientset.AppsV1().Deployments(ns)

	_, err := deployments.Create(ctx, deploy, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		existing, getErr := deployments.Get(ctx, deploy.Name, metav1.GetOptions{})
		if getErr != nil {
			return classify(getErr, "Deployment", deploy.Name)
		}
		deploy.ResourceVersion = existing.ResourceVersion
		_, err = deployments.Update(ctx, deploy, metav1.UpdateOptions{})
	}
	return classify(err, "Deployment", deploy.Name)
}

func (a *Applier) applyService(ctx context.Context, svc *corev1.Service) error {
	ns := a.namespaceOf(svc.Namespace)
	services := a.clientset.CoreV1().Services(ns)

	_, err := services.Create(ctx, svc, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		existing, getErr := services.Get(ctx, svc.Name, metav1.GetOptions{})
		if getErr != nil {
			return classify(getErr, "Service", svc.Name)
		}
		// ClusterIP is immutable after creation.
		svc.ResourceVersion = existing.ResourceVersion
		svc.Spec.ClusterIP = existing.Spec.ClusterIP
		_, err = services.Update(ctx, svc, metav1.UpdateOptions{})
	}
	return classify(err, "Service", svc.Name)
}

func (a *Applier) applyIngress(ctx context.Context, ing *networkingv1.Ingress) error {
	ns := a.namespaceOf(ing.Namespace)
	ingresses := a.clientset.NetworkingV1().Ingresses(ns)

	_, err := ingresses.Create(ctx, ing, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		existing, getErr := ingresses.Get(ctx, ing.Name, metav1.GetOptions{})
		if getErr != nil {
			return classify(getErr, "Ingress", ing.Name)
		}
		ing.ResourceVersion = existing.ResourceVersion
		_, err = ingresses.Update(ctx, ing, metav1.UpdateOptions{})
	}
	return classify(err, "Ingress", ing.Name)
}

// classify maps Kubernetes API errors to the pipeline failure taxonomy:
// authentication and authorization failures are UNAUTHORIZED, everything
// else the cluster rejects is APPLY. Both are fatal.
func classify(err error, kind, name string) error {
	if err == nil {
		return nil
	}
	code := apperrors.ErrCodeApply
	if k8serrors.IsUnauthorized(err) || k8serrors.IsForbidden(err) {
		code = apperrors.ErrCodeUnauthorized
	}
	return apperrors.WrapWithContext(code,
		fmt.Sprintf("failed to apply %s %s", kind, name), err,
		map[string]any{"kind": kind, "name": name})
}
