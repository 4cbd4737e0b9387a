/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/chatdocs/shipit/pkg/defaults"
	"github.com/chatdocs/shipit/pkg/k8s/apply"
	k8sclient "github.com/chatdocs/shipit/pkg/k8s/client"
	"github.com/chatdocs/shipit/pkg/k8s/rollout"
	"github.com/chatdocs/shipit/pkg/runner"
)

func applyCmd() *cli.Command {
	return &cli.Command{
		Name:                  "apply",
		EnableShellCompletion: true,
		Usage:                 "Apply previously rendered manifests and wait for rollout",
		Description: `Apply the manifests in the output directory to the configured cluster in
fixed order (secret, deployment, service, then ingress when enabled) and
wait for the deployment rollout to settle. Manifests must have been
rendered first; this command performs no build and no render.

# Examples

Apply and wait:
  shipit apply

Apply without the rollout wait:
  shipit apply --skip-wait`,
		Flags: []cli.Flag{
			envFileFlag,
			kubeconfigFlag,
			&cli.BoolFlag{
				Name:  "skip-wait",
				Usage: "apply manifests without waiting for the rollout",
			},
			&cli.BoolFlag{
				Name:  "skip-auth",
				Usage: "use existing kubeconfig credentials without calling gcloud",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if !cmd.Bool("skip-auth") {
				authCtx, cancel := context.WithTimeout(ctx, defaults.ClusterAuthTimeout)
				defer cancel()
				if err := k8sclient.FetchClusterCredentials(authCtx, &runner.Exec{},
					cfg.ProjectID, cfg.ClusterName, cfg.Zone); err != nil {
					return err
				}
			}

			clientset, _, err := k8sclient.Build(cmd.String("kubeconfig"))
			if err != nil {
				return err
			}

			applier := apply.NewApplier(clientset, cfg.Namespace)
			if err := applier.ApplyOrdered(ctx, cfg.OutputDir, cfg.IngressEnabled); err != nil {
				return err
			}

			if cmd.Bool("skip-wait") {
				return nil
			}

			watcher := rollout.NewWatcher(clientset, cfg.Namespace, cfg.ImageName)
			state, err := watcher.Wait(ctx)
			if err != nil {
				return err
			}
			slog.Info("rollout finished", "state", string(state))
			fmt.Fprintln(out(cmd), string(state))
			return nil
		},
	}
}
