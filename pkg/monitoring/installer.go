/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package monitoring provisions the observability stack into its own
// namespace: Prometheus with its access-control resources, a node-exporter
// DaemonSet, kube-state-metrics, and Grafana with its datasource
// configuration. Components are installed and awaited strictly one at a
// time so a failure is attributable to exactly one component; a component
// that is not ready within its bound is a warning, not a stop.
package monitoring

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/chatdocs/shipit/pkg/defaults"
	"github.com/chatdocs/shipit/pkg/waitfor"
)

// Workload names inside the monitoring namespace.
const (
	prometheusName       = "prometheus"
	nodeExporterName     = "node-exporter"
	kubeStateMetricsName = "kube-state-metrics"
	grafanaName          = "grafana"
)

// labelName is the app label key shared by all monitoring workloads.
const labelName = "app.kubernetes.io/name"

// Installer installs and removes the monitoring stack.
type Installer struct {
	clientset kubernetes.Interface
	namespace string

	// limiter paces resource writes against the API server; the stack is
	// a few dozen creates in a tight loop.
	limiter *rate.Limiter

	// WaitInterval and WaitAttempts bound each component's availability wait.
	WaitInterval time.Duration
	WaitAttempts int

	// NamespaceInterval and NamespaceAttempts bound the terminating-namespace wait.
	NamespaceInterval time.Duration
	NamespaceAttempts int
}

// NewInstaller creates an Installer for the given namespace with default
// wait bounds.
func NewInstaller(clientset kubernetes.Interface, namespace string) *Installer {
	return &Installer{
		clientset:         clientset,
		namespace:         namespace,
		limiter:           rate.NewLimiter(rate.Limit(10), 5),
		WaitInterval:      defaults.MonitoringComponentInterval,
		WaitAttempts:      defaults.MonitoringComponentAttempts,
		NamespaceInterval: defaults.NamespaceDeleteInterval,
		NamespaceAttempts: defaults.NamespaceDeleteAttempts,
	}
}

// component is one ordered unit of the stack: an install step plus the
// readiness check awaited before the next component starts.
type component struct {
	name    string
	install func(context.Context) error
	ready   func(context.Context) (bool, error)
}

func (i *Installer) components() []component {
	return []component{
		{prometheusName, i.installPrometheus, i.deploymentReady(prometheusName)},
		{nodeExporterName, i.installNodeExporter, i.daemonSetReady(nodeExporterName)},
		{kubeStateMetricsName, i.installKubeStateMetrics, i.deploymentReady(kubeStateMetricsName)},
		{grafanaName, i.installGrafana, i.deploymentReady(grafanaName)},
	}
}

// Install provisions the namespace and the full stack in fixed order. A
// component timeout logs a warning and installation proceeds; only apply
// errors and namespace conflicts abort.
func (i *Installer) Install(ctx context.Context) error {
	if err := i.ensureNamespace(ctx); err != nil {
		return err
	}

	for _, c := range i.components() {
		slog.Info("installing monitoring component", "component", c.name)
		if err := c.install(ctx); err != nil {
			return err
		}

		cond := waitfor.Condition{
			Description: "availability of " + c.name,
			Interval:    i.WaitInterval,
			Attempts:    i.WaitAttempts,
			OnTimeout:   waitfor.Warn,
		}
		if err := cond.Wait(ctx, c.ready); err != nil {
			return err
		}
	}

	slog.Info("monitoring stack installed", "namespace", i.namespace)
	return nil
}

// deploymentReady returns a readiness predicate for a deployment by name.
func (i *Installer) deploymentReady(name string) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		deploy, err := i.clientset.AppsV1().Deployments(i.namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, nil
		}
		desired := int32(1)
		if deploy.Spec.Replicas != nil {
			desired = *deploy.Spec.Replicas
		}
		return deploy.Status.ReadyReplicas == desired, nil
	}
}

// daemonSetReady returns a readiness predicate for a daemonset by name.
// A daemonset with zero scheduled pods (no matching nodes) counts as ready.
func (i *Installer) daemonSetReady(name string) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		ds, err := i.clientset.AppsV1().DaemonSets(i.namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, nil
		}
		if ds.Status.DesiredNumberScheduled == 0 {
			return ds.Status.ObservedGeneration >= ds.Generation, nil
		}
		return ds.Status.NumberReady == ds.Status.DesiredNumberScheduled, nil
	}
}

// pace blocks until the write limiter admits another API call.
func (i *Installer) pace(ctx context.Context) error {
	return i.limiter.Wait(ctx)
}
