/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/chatdocs/shipit/pkg/image"
	"github.com/chatdocs/shipit/pkg/render"
)

func renderCmd() *cli.Command {
	return &cli.Command{
		Name:                  "render",
		EnableShellCompletion: true,
		Usage:                 "Materialize the secret and render manifests for a given tag",
		Description: `Materialize the secret manifest from configured secret values and render
the remaining manifest templates into the output directory, substituting
the image tag. The output directory is recreated from scratch on every
run; nothing is applied to any cluster.

Secret values are written base64-encoded and never logged.

# Examples

Render for an existing image tag:
  shipit render --tag 20250314-150926`,
		Flags: []cli.Flag{
			envFileFlag,
			&cli.StringFlag{
				Name:     "tag",
				Usage:    "image tag to render (format: YYYYMMDD-HHMMSS)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "skip-secret",
				Usage: "render only the non-secret manifests",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			tag := cmd.String("tag")
			if !image.IsRunTag(tag) {
				return fmt.Errorf("invalid tag %q, expected YYYYMMDD-HHMMSS", tag)
			}

			renderer := &render.Renderer{
				TemplateDir:     cfg.TemplateDir,
				OutputDir:       cfg.OutputDir,
				ImageRepository: cfg.ImageRepository(),
			}
			if err := renderer.Clean(); err != nil {
				return err
			}

			if !cmd.Bool("skip-secret") {
				if err := cfg.ValidateSecrets(); err != nil {
					return err
				}
				if _, err := renderer.MaterializeSecret(cfg.Secrets.Map()); err != nil {
					return err
				}
			}

			rendered, err := renderer.RenderAll(tag)
			if err != nil {
				return err
			}
			for _, path := range rendered {
				fmt.Fprintln(out(cmd), path)
			}
			return nil
		},
	}
}
