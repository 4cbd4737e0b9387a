/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	k8sclient "github.com/chatdocs/shipit/pkg/k8s/client"
	"github.com/chatdocs/shipit/pkg/monitoring"
)

func monitoringCmd() *cli.Command {
	return &cli.Command{
		Name:                  "monitoring",
		EnableShellCompletion: true,
		Usage:                 "Manage the cluster monitoring stack",
		Description: `Install or remove the monitoring stack (Prometheus, node-exporter,
kube-state-metrics, Grafana) in its own namespace.

Installation is idempotent: existing resources are left in place. If the
namespace is still terminating from a previous removal, installation
waits for it to disappear; a namespace stuck on finalizers fails with
the manual removal procedure in the error message.

During deploys the stack is installed automatically when the change
description contains the configured marker (default "[monitoring]").

# Examples

Install:
  shipit monitoring install

Remove, including cluster-scoped RBAC:
  shipit monitoring uninstall`,
		Commands: []*cli.Command{
			{
				Name:  "install",
				Usage: "Install the monitoring stack",
				Flags: []cli.Flag{
					envFileFlag,
					kubeconfigFlag,
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					installer, err := newInstaller(cmd)
					if err != nil {
						return err
					}
					return installer.Install(ctx)
				},
			},
			{
				Name:  "uninstall",
				Usage: "Remove the monitoring stack and its namespace",
				Flags: []cli.Flag{
					envFileFlag,
					kubeconfigFlag,
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					installer, err := newInstaller(cmd)
					if err != nil {
						return err
					}
					return installer.Uninstall(ctx)
				},
			},
		},
	}
}

func newInstaller(cmd *cli.Command) (*monitoring.Installer, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	clientset, _, err := k8sclient.Build(cmd.String("kubeconfig"))
	if err != nil {
		return nil, err
	}
	return monitoring.NewInstaller(clientset, cfg.MonitoringNamespace), nil
}
