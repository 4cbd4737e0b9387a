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

const prometheusImage = "prom/prometheus:v2.53.0"

// prometheusScrapeConfig discovers nodes, pods, and the monitoring
// services themselves through the Kubernetes API.
const prometheusScrapeConfig = `global:
  scrape_interval: 30s
  evaluation_interval: 30s
scrape_configs:
  - job_name: prometheus
    static_configs:
      - targets: ["localhost:9090"]
  - job_name: kubernetes-nodes
    kubernetes_sd_configs:
      - role: node
    scheme: https
    tls_config:
      ca_file: /var/run/secrets/kubernetes.io/serviceaccount/ca.crt
      insecure_skip_verify: true
    bearer_token_file: /var/run/secrets/kubernetes.io/serviceaccount/token
  - job_name: kubernetes-pods
    kubernetes_sd_configs:
      - role: pod
    relabel_configs:
      - source_labels: [__meta_kubernetes_pod_annotation_prometheus_io_scrape]
        action: keep
        regex: "true"
  - job_name: node-exporter
    kubernetes_sd_configs:
      - role: endpoints
    relabel_configs:
      - source_labels: [__meta_kubernetes_service_name]
        action: keep
        regex: node-exporter
  - job_name: kube-state-metrics
    kubernetes_sd_configs:
      - role: endpoints
    relabel_configs:
      - source_labels: [__meta_kubernetes_service_name]
        action: keep
        regex: kube-state-metrics
`

// installPrometheus provisions the metrics collector: its access-control
// resources first, then configuration, workload, and service.
func (i *Installer) installPrometheus(ctx context.Context) error {
	if err := i.ensureServiceAccount(ctx, &corev1.ServiceAccount{
		ObjectMeta: i.meta(prometheusName),
	}); err != nil {
		return err
	}

	if err := i.ensureClusterRole(ctx, &rbacv1.ClusterRole{
		ObjectMeta: clusterMeta(prometheusName),
		Rules: []rbacv1.PolicyRule{
			{
				APIGroups: []string{""},
				Resources: []string{"nodes", "nodes/proxy", "nodes/metrics", "services", "endpoints", "pods"},
				Verbs:     []string{"get", "list", "watch"},
			},
			{
				NonResourceURLs: []string{"/metrics"},
				Verbs:           []string{"get"},
			},
		},
	}); err != nil {
		return err
	}

	if err := i.ensureClusterRoleBinding(ctx, &rbacv1.ClusterRoleBinding{
		ObjectMeta: clusterMeta(prometheusName),
		Subjects: []rbacv1.Subject{
			{
				Kind:      "ServiceAccount",
				Name:      prometheusName,
				Namespace: i.namespace,
			},
		},
		RoleRef: rbacv1.RoleRef{
			APIGroup: "rbac.authorization.k8s.io",
			Kind:     "ClusterRole",
			Name:     prometheusName,
		},
	}); err != nil {
		return err
	}

	if err := i.ensureConfigMap(ctx, &corev1.ConfigMap{
		ObjectMeta: i.meta(prometheusName + "-config"),
		Data: map[string]string{
			"prometheus.yml": prometheusScrapeConfig,
		},
	}); err != nil {
		return err
	}

	if err := i.ensureDeployment(ctx, &appsv1.Deployment{
		ObjectMeta: i.meta(prometheusName),
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(1)),
			Selector: selector(prometheusName),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: podMeta(prometheusName),
				Spec: corev1.PodSpec{
					ServiceAccountName: prometheusName,
					Containers: []corev1.Container{
						{
							Name:  prometheusName,
							Image: prometheusImage,
							Args: []string{
								"--config.file=/etc/prometheus/prometheus.yml",
								"--storage.tsdb.path=/prometheus",
								"--storage.tsdb.retention.time=7d",
							},
							Ports: []corev1.ContainerPort{
								{Name: "http", ContainerPort: 9090},
							},
							VolumeMounts: []corev1.VolumeMount{
								{Name: "config", MountPath: "/etc/prometheus"},
								{Name: "storage", MountPath: "/prometheus"},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: "config",
							VolumeSource: corev1.VolumeSource{
								ConfigMap: &corev1.ConfigMapVolumeSource{
									LocalObjectReference: corev1.LocalObjectReference{
										Name: prometheusName + "-config",
									},
								},
							},
						},
						{
							Name: "storage",
							VolumeSource: corev1.VolumeSource{
								EmptyDir: &corev1.EmptyDirVolumeSource{},
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
		ObjectMeta: i.meta(prometheusName),
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{labelName: prometheusName},
			Ports: []corev1.ServicePort{
				{Name: "http", Port: 9090, TargetPort: intstr.FromInt32(9090)},
			},
		},
	})
}
