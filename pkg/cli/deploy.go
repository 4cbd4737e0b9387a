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

	"github.com/chatdocs/shipit/pkg/pipeline"
	"github.com/chatdocs/shipit/pkg/runner"
)

// lastCommitMessage returns the head commit message, or empty when the
// working directory is not a git checkout. Local runs pick up the monitoring
// marker from the last commit the same way CI does from its trigger payload.
func lastCommitMessage(ctx context.Context, r runner.Runner) string {
	msg, err := r.Output(ctx, "git", "log", "-1", "--pretty=%B")
	if err != nil {
		slog.Debug("no commit message available", "error", err)
		return ""
	}
	return msg
}

func deployCmd() *cli.Command {
	return &cli.Command{
		Name:                  "deploy",
		EnableShellCompletion: true,
		Usage:                 "Run the full deployment pipeline",
		Description: `Run the complete deployment pipeline against the configured GKE cluster:

  1. Build the container image, tagged with the run timestamp and "latest"
  2. Push both tags to the registry
  3. Materialize the secret manifest (base64, never logged)
  4. Render the remaining manifests with the run tag
  5. Authenticate against the cluster and apply in fixed order
  6. Wait for the rollout to settle
  7. Install the monitoring stack when the change description carries
     the configured marker
  8. Report the external application address

Cluster identity (PROJECT_ID, CLUSTER_NAME, ZONE) and the application
secrets come from the env file or the process environment; CI runs
supply everything via environment.

# Examples

Plain deployment:
  shipit deploy

Deployment that also installs monitoring:
  shipit deploy --message "tighten retriever prompts [monitoring]"

Keep a pullable record of the applied manifests:
  shipit deploy --push-manifests`,
		Flags: []cli.Flag{
			envFileFlag,
			kubeconfigFlag,
			&cli.StringFlag{
				Name:    "message",
				Usage:   "change description matched against the monitoring marker (default: head commit message)",
				Sources: cli.EnvVars("SHIPIT_CHANGE_DESCRIPTION", "COMMIT_MESSAGE"),
			},
			&cli.StringFlag{
				Name:  "context",
				Usage: "docker build context directory",
				Value: ".",
			},
			&cli.StringFlag{
				Name:  "dockerfile",
				Usage: "dockerfile path within the build context",
			},
			&cli.BoolFlag{
				Name:  "push-manifests",
				Usage: "publish the rendered manifests as an OCI artifact",
			},
			&cli.StringFlag{
				Name:    "metrics-file",
				Usage:   "write pipeline stage metrics to this textfile-collector path",
				Sources: cli.EnvVars("SHIPIT_METRICS_FILE"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			message := cmd.String("message")
			if message == "" {
				message = lastCommitMessage(ctx, &runner.Exec{})
			}

			p, err := pipeline.NewDeploy(cfg, pipeline.DeployOptions{
				ContextDir:        cmd.String("context"),
				Dockerfile:        cmd.String("dockerfile"),
				Kubeconfig:        cmd.String("kubeconfig"),
				ChangeDescription: message,
				PushManifests:     cmd.Bool("push-manifests"),
				MetricsFile:       cmd.String("metrics-file"),
			})
			if err != nil {
				return err
			}

			run, err := p.Execute(ctx)
			if err != nil {
				return err
			}

			if run.URL != "" {
				fmt.Fprintf(out(cmd), "deployed %s\n%s\n", run.Tag, run.URL)
			} else {
				fmt.Fprintf(out(cmd), "deployed %s (address pending)\n", run.Tag)
			}
			if run.BundleRef != "" {
				slog.Info("manifest bundle available", "reference", run.BundleRef)
			}
			return nil
		},
	}
}
