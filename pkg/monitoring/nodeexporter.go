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
)

const nodeExporterImage = "prom/node-exporter:v1.8.1"

// installNodeExporter provisions the per-node metrics exporter as a
// DaemonSet with host filesystem mounts and a headless discovery service.
func (i *Installer) installNodeExporter(ctx context.Context) error {
	hostPathVolume := func(name, path string) corev1.Volume {
		return corev1.Volume{
			Name: name,
			VolumeSource: corev1.VolumeSource{
				HostPath: &corev1.HostPathVolumeSource{Path: path},
			},
		}
	}

	if err := i.ensureDaemonSet(ctx, &appsv1.DaemonSet{
		ObjectMeta: i.meta(nodeExporterName),
		Spec: appsv1.DaemonSetSpec{
			Selector: selector(nodeExporterName),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: podMeta(nodeExporterName),
				Spec: corev1.PodSpec{
					HostNetwork: true,
					HostPID:     true,
					Containers: []corev1.Container{
						{
							Name:  nodeExporterName,
							Image: nodeExporterImage,
							Args: []string{
								"--path.procfs=/host/proc",
								"--path.sysfs=/host/sys",
								"--path.rootfs=/host/root",
							},
							Ports: []corev1.ContainerPort{
								{Name: "metrics", ContainerPort: 9100, HostPort: 9100},
							},
							VolumeMounts: []corev1.VolumeMount{
								{Name: "proc", MountPath: "/host/proc", ReadOnly: true},
								{Name: "sys", MountPath: "/host/sys", ReadOnly: true},
								{Name: "root", MountPath: "/host/root", ReadOnly: true},
							},
						},
					},
					Volumes: []corev1.Volume{
						hostPathVolume("proc", "/proc"),
						hostPathVolume("sys", "/sys"),
						hostPathVolume("root", "/"),
					},
					Tolerations: []corev1.Toleration{
						{Operator: corev1.TolerationOpExists},
					},
				},
			},
		},
	}); err != nil {
		return err
	}

	return i.ensureService(ctx, &corev1.Service{
		ObjectMeta: i.meta(nodeExporterName),
		Spec: corev1.ServiceSpec{
			ClusterIP: corev1.ClusterIPNone,
			Selector:  map[string]string{labelName: nodeExporterName},
			Ports: []corev1.ServicePort{
				{Name: "metrics", Port: 9100, TargetPort: intstr.FromInt32(9100)},
			},
		},
	})
}
