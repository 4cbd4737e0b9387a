/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package monitoring

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"
)

const grafanaImage = "grafana/grafana:11.1.0"

// grafanaDatasource provisions the in-namespace Prometheus service as the
// default datasource so dashboards work without manual setup.
const grafanaDatasource = `apiVersion: 1
datasources:
  - name: Prometheus
    type: prometheus
    access: proxy
    url: http://prometheus:9090
    isDefault: true
`

// installGrafana provisions the dashboard frontend behind a LoadBalancer
// service so it is reachable without port forwarding.
func (i *Installer) installGrafana(ctx context.Context) error {
	if err := i.ensureConfigMap(ctx, &corev1.ConfigMap{
		ObjectMeta: i.meta(grafanaName + "-datasources"),
		Data: map[string]string{
			"datasources.yaml": grafanaDatasource,
		},
	}); err != nil {
		return err
	}

	if err := i.ensureDeployment(ctx, &appsv1.Deployment{
		ObjectMeta: i.meta(grafanaName),
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(1)),
			Selector: selector(grafanaName),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: podMeta(grafanaName),
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  grafanaName,
							Image: grafanaImage,
							Ports: []corev1.ContainerPort{
								{Name: "http", ContainerPort: 3000},
							},
							VolumeMounts: []corev1.VolumeMount{
								{
									Name:      "datasources",
									MountPath: "/etc/grafana/provisioning/datasources",
								},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: "datasources",
							VolumeSource: corev1.VolumeSource{
								ConfigMap: &corev1.ConfigMapVolumeSource{
									LocalObjectReference: corev1.LocalObjectReference{
										Name: grafanaName + "-datasources",
									},
								},
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
		ObjectMeta: i.meta(grafanaName),
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeLoadBalancer,
			Selector: map[string]string{labelName: grafanaName},
			Ports: []corev1.ServicePort{
				{Name: "http", Port: 80, TargetPort: intstr.FromInt32(3000)},
			},
		},
	})
}
