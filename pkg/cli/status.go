/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	k8sclient "github.com/chatdocs/shipit/pkg/k8s/client"
	"github.com/chatdocs/shipit/pkg/status"
)

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:                  "status",
		EnableShellCompletion: true,
		Usage:                 "Report the external application address",
		Description: `Poll the application's external endpoint (the LoadBalancer service, or
the ingress when INGRESS_ENABLED is set) and print the access URL once an
address is assigned. If no address appears within the poll bound the
command prints nothing and exits zero; address assignment on fresh
clusters can take longer than any reasonable wait.`,
		Flags: []cli.Flag{
			envFileFlag,
			kubeconfigFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			clientset, _, err := k8sclient.Build(cmd.String("kubeconfig"))
			if err != nil {
				return err
			}

			reporter := status.NewReporter(clientset, cfg.Namespace, cfg.ImageName)
			if cfg.IngressEnabled {
				reporter.IngressName = cfg.ImageName
				reporter.UseIngress = true
			}

			url, err := reporter.Report(ctx)
			if err != nil {
				return err
			}
			if url != "" {
				fmt.Fprintln(out(cmd), url)
			}
			return nil
		},
	}
}
