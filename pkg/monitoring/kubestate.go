/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package monitoring

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"
)

const kubeStateMetricsImage = "registry.k8s.io/kube-state-metrics/kube-state-metrics:v2.12.0"

// installKubeStateMetrics provisions the cluster-object metrics exporter.
// Its cluster role is read-only over the object kinds it reports on.
func (i *Installer) installKubeStateMetrics(ctx context.Context) error {
	if err := i.ensureServiceAccount(ctx, &corev1.ServiceAccount{
		ObjectMeta: i.meta(kubeStateMetricsName),
	}); err != nil {
		return err
	}

	if err := i.ensureClusterRole(ctx, &rbacv1.ClusterRole{
		ObjectMeta: clusterMeta(kubeStateMetricsName),
		Rules: []rbacv1.PolicyRule{
			{
				APIGroups: []string{""},
				Resources: []string{
					"nodes", "pods", "services", "endpoints", "namespaces",
					"configmaps", "secrets", "persistentvolumes", "persistentvolumeclaims",
					"replicationcontrollers", "resourcequotas", "limitranges",
				},
				Verbs: []string{"get", "list", "watch"},
			},
			{
				APIGroups: []string{"apps"},
				Resources: []string{"deployments", "daemonsets", "replicasets", "statefulsets"},
				Verbs:     []string{"get", "list", "watch"},
			},
			{
				APIGroups: []string{"batch"},
				Resources: []string{"jobs", "cronjobs"},
				Verbs:     []string{"get", "list", "watch"},
			},
			{
				APIGroups: []string{"autoscaling"},
				Resources: []string{"horizontalpodautoscalers"},
				Verbs:     []string{"get", "list", "watch"},
			},
			{
				APIGroups: []string{"networking.k8s.io"},
				Resources: []string{"ingresses", "networkpolicies"},
				Verbs:     []string{"get", "list", "watch"},
			},
		},
	}); err != nil {
		return err
	}

	if err := i.ensureClusterRoleBinding(ctx, &rbacv1.ClusterRoleBinding{
		ObjectMeta: clusterMeta(kubeStateMetricsName),
		Subjects: []rbacv1.Subject{
			{
				Kind:      "ServiceAccount",
				Name:      kubeStateMetricsName,
				Namespace: i.namespace,
			},
		},
		RoleRef: rbacv1.RoleRef{
			APIGroup: "rbac.authorization.k8s.io",
			Kind:     "ClusterRole",
			Name:     kubeStateMetricsName,
		},
	}); err != nil {
		return err
	}

	if err := i.ensureDeployment(ctx, &appsv1.Deployment{
		ObjectMeta: i.meta(kubeStateMetricsName),
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(1)),
			Selector: selector(kubeStateMetricsName),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: podMeta(kubeStateMetricsName),
				Spec: corev1.PodSpec{
					ServiceAccountName: kubeStateMetricsName,
					Containers: []corev1.Container{
						{
							Name:  kubeStateMetricsName,
							Image: kubeStateMetricsImage,
							Ports: []corev1.ContainerPort{
								{Name: "metrics", ContainerPort: 8080},
								{Name: "telemetry", ContainerPort: 8081},
							},
						},
					},
				},
			},
		},
	}); err != nil {
		return err
	}

	return i.ensureService(ctx, &corev1.Service{
		ObjectMeta: i.meta(kubeStateMetricsName),
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{labelName: kubeStateMetricsName},
			Ports: []corev1.ServicePort{
				{Name: "metrics", Port: 8080, TargetPort: intstr.FromInt32(8080)},
				{Name: "telemetry", Port: 8081, TargetPort: intstr.FromInt32(8081)},
			},
		},
	})
}
