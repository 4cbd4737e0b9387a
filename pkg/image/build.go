/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package image builds the application container image and publishes it to
// the registry under a project-scoped path. Every run produces a fresh
// timestamp tag plus the floating "latest" tag; any build or push failure
// is fatal and occurs before the pipeline touches live cluster state.
package image

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/distribution/reference"
	"golang.org/x/sync/errgroup"

	"github.com/chatdocs/shipit/pkg/defaults"
	apperrors "github.com/chatdocs/shipit/pkg/errors"
	"github.com/chatdocs/shipit/pkg/runner"
)

// Options configures the image builder.
type Options struct {
	// Repository is the full project-scoped repository path without a tag,
	// e.g. "gcr.io/my-project/docchat".
	Repository string
	// Platform is the single target platform, e.g. "linux/amd64".
	Platform string
	// ContextDir is the docker build context (default ".").
	ContextDir string
	// Dockerfile overrides the build file path within the context.
	Dockerfile string
}

// Builder builds and pushes the application image through an external
// docker invocation, seamed behind runner.Runner for tests.
type Builder struct {
	run  runner.Runner
	opts Options
}

// NewBuilder creates a Builder. The repository is validated eagerly so an
// invalid registry or image name fails before any work happens.
func NewBuilder(run runner.Runner, opts Options) (*Builder, error) {
	if opts.ContextDir == "" {
		opts.ContextDir = "."
	}
	if _, err := reference.ParseNormalizedNamed(opts.Repository); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeBuild,
			fmt.Sprintf("invalid image repository %q", opts.Repository), err)
	}
	return &Builder{run: run, opts: opts}, nil
}

// Reference returns the full image reference for the given tag, validated
// against the docker reference grammar.
func (b *Builder) Reference(tag string) (string, error) {
	ref := fmt.Sprintf("%s:%s", b.opts.Repository, tag)
	if _, err := reference.ParseNormalizedNamed(ref); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeBuild,
			fmt.Sprintf("invalid image reference %q", ref), err)
	}
	return ref, nil
}

// Build builds the image for the configured platform, tagging both the run
// tag and the floating tag in one pass.
func (b *Builder) Build(ctx context.Context, tag string) error {
	runRef, err := b.Reference(tag)
	if err != nil {
		return err
	}
	floatRef, err := b.Reference(FloatingTag)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaults.BuildTimeout)
	defer cancel()

	args := []string{"build", "--platform", b.opts.Platform, "-t", runRef, "-t", floatRef}
	if b.opts.Dockerfile != "" {
		args = append(args, "-f", b.opts.Dockerfile)
	}
	args = append(args, b.opts.ContextDir)

	slog.Info("building image", "reference", runRef, "platform", b.opts.Platform)
	if err := b.run.Run(ctx, "docker", args...); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeBuild, "image build failed", err)
	}
	return nil
}

// Push publishes the run tag and the floating tag. The two tags are
// independent registry writes, so they are pushed concurrently; any
// failure is fatal.
func (b *Builder) Push(ctx context.Context, tag string) error {
	refs := make([]string, 0, 2)
	for _, t := range []string{tag, FloatingTag} {
		ref, err := b.Reference(t)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		g.Go(func() error {
			pushCtx, cancel := context.WithTimeout(ctx, defaults.PushTimeout)
			defer cancel()

			slog.Info("pushing image", "reference", ref)
			if err := b.run.Run(pushCtx, "docker", "push", ref); err != nil {
				return apperrors.Wrap(apperrors.ErrCodePublish,
					fmt.Sprintf("failed to push %s", ref), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ConfigureRegistryAuth registers the registry host with the local docker
// credential helpers via gcloud. Idempotent; safe to run every pipeline run.
func ConfigureRegistryAuth(ctx context.Context, run runner.Runner, registryHost string) error {
	ctx, cancel := context.WithTimeout(ctx, defaults.RegistryAuthTimeout)
	defer cancel()

	if err := run.Run(ctx, "gcloud", "auth", "configure-docker", registryHost, "--quiet"); err != nil {
		return apperrors.Wrap(apperrors.ErrCodePublish, "registry authentication failed", err)
	}
	return nil
}
