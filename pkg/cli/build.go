/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/chatdocs/shipit/pkg/defaults"
	"github.com/chatdocs/shipit/pkg/image"
	"github.com/chatdocs/shipit/pkg/runner"
)

func buildCmd() *cli.Command {
	return &cli.Command{
		Name:                  "build",
		EnableShellCompletion: true,
		Usage:                 "Build and push the container image without deploying",
		Description: `Build the application image for the configured platform, tagged with a
fresh run timestamp and "latest", then push both tags to the registry.
No cluster state is touched.

# Examples

Build and push:
  shipit build

Build only:
  shipit build --skip-push`,
		Flags: []cli.Flag{
			envFileFlag,
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
				Name:  "skip-push",
				Usage: "build the image but do not push it",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			run := &runner.Exec{}
			builder, err := image.NewBuilder(run, image.Options{
				Repository: cfg.ImageRepository(),
				Platform:   cfg.Platform,
				ContextDir: cmd.String("context"),
				Dockerfile: cmd.String("dockerfile"),
			})
			if err != nil {
				return err
			}

			tag := image.NewTag(time.Now())

			buildCtx, cancel := context.WithTimeout(ctx, defaults.BuildTimeout)
			defer cancel()
			if err := builder.Build(buildCtx, tag); err != nil {
				return err
			}

			if !cmd.Bool("skip-push") {
				authCtx, cancel := context.WithTimeout(ctx, defaults.RegistryAuthTimeout)
				defer cancel()
				if err := image.ConfigureRegistryAuth(authCtx, run, cfg.RegistryHost); err != nil {
					return err
				}

				pushCtx, cancel := context.WithTimeout(ctx, defaults.PushTimeout)
				defer cancel()
				if err := builder.Push(pushCtx, tag); err != nil {
					return err
				}
			}

			fmt.Fprintln(out(cmd), tag)
			return nil
		},
	}
}
