/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package status reports the application's external access URL once the
// cluster assigns an address. Reporting is best-effort: exhausting the poll
// bound produces a warning with manual-remediation guidance and never
// affects the pipeline's exit code.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/chatdocs/shipit/pkg/defaults"
	"github.com/chatdocs/shipit/pkg/waitfor"
)

// Reporter polls for the externally assigned address of the application's
// exposed endpoint.
type Reporter struct {
	clientset kubernetes.Interface
	namespace string

	// ServiceName is the LoadBalancer service polled in the default variant.
	ServiceName string
	// IngressName is polled instead when UseIngress is set.
	IngressName string
	UseIngress  bool

	// Interval and Attempts bound the poll; NewReporter sets the defaults
	// (30 attempts at 10s).
	Interval time.Duration
	Attempts int
}

// NewReporter creates a Reporter with the default poll bound.
func NewReporter(clientset kubernetes.Interface, namespace, serviceName string) *Reporter {
	return &Reporter{
		clientset:   clientset,
		namespace:   namespace,
		ServiceName: serviceName,
		Interval:    defaults.AddressPollInterval,
		Attempts:    defaults.AddressPollAttempts,
	}
}

// Report polls for the external address and returns the access URL when
// assigned, or an empty string after exhausting the bound. The returned
// error is non-nil only on context cancellation or an unexpected API
// failure; plain exhaustion logs a warning and returns ("", nil).
func (r *Reporter) Report(ctx context.Context) (string, error) {
	endpoint := r.ServiceName
	if r.UseIngress {
		endpoint = r.IngressName
	}

	var addr string
	cond := waitfor.Condition{
		Description: "external address of " + endpoint,
		Interval:    r.Interval,
		Attempts:    r.Attempts,
		OnTimeout:   waitfor.Warn,
	}

	err := cond.Wait(ctx, func(ctx context.Context) (bool, error) {
		var err error
		if r.UseIngress {
			addr, err = r.ingressAddress(ctx)
		} else {
			addr, err = r.serviceAddress(ctx)
		}
		if err != nil {
			// Transient lookup failures keep polling.
			slog.Debug("address lookup failed, retrying", "endpoint", endpoint, "error", err)
			return false, nil
		}
		return addr != "", nil
	})
	if err != nil {
		return "", err
	}

	if addr == "" {
		slog.Warn("external address not assigned within bound; check later with kubectl",
			"hint", fmt.Sprintf("kubectl get svc %s -n %s -w", r.ServiceName, r.namespace))
		return "", nil
	}

	url := "http://" + addr
	if r.UseIngress {
		url = "https://" + addr
	}
	slog.Info("application is reachable", "url", url)
	return url, nil
}

func (r *Reporter) serviceAddress(ctx context.Context) (string, error) {
	svc, err := r.clientset.CoreV1().Services(r.namespace).Get(ctx, r.ServiceName, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	return lbAddress(svc.Status.LoadBalancer.Ingress), nil
}

func (r *Reporter) ingressAddress(ctx context.Context) (string, error) {
	ing, err := r.clientset.NetworkingV1().Ingresses(r.namespace).Get(ctx, r.IngressName, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	for _, lb := range ing.Status.LoadBalancer.Ingress {
		if lb.IP != "" {
			return lb.IP, nil
		}
		if lb.Hostname != "" {
			return lb.Hostname, nil
		}
	}
	return "", nil
}

func lbAddress(ingress []corev1.LoadBalancerIngress) string {
	for _, lb := range ingress {
		if lb.IP != "" {
			return lb.IP
		}
		if lb.Hostname != "" {
			return lb.Hostname
		}
	}
	return ""
}
