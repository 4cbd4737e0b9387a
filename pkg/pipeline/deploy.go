/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/client-go/kubernetes"

	"github.com/chatdocs/shipit/pkg/bundle"
	"github.com/chatdocs/shipit/pkg/config"
	"github.com/chatdocs/shipit/pkg/defaults"
	"github.com/chatdocs/shipit/pkg/image"
	"github.com/chatdocs/shipit/pkg/k8s/apply"
	k8sclient "github.com/chatdocs/shipit/pkg/k8s/client"
	"github.com/chatdocs/shipit/pkg/k8s/rollout"
	"github.com/chatdocs/shipit/pkg/monitoring"
	"github.com/chatdocs/shipit/pkg/render"
	"github.com/chatdocs/shipit/pkg/runner"
	"github.com/chatdocs/shipit/pkg/status"
)

// DeployOptions configures a full deployment run beyond what Config holds.
type DeployOptions struct {
	// Runner executes docker and gcloud; defaults to real process execution.
	Runner runner.Runner
	// NewClientset overrides cluster client construction; the default
	// fetches GKE credentials through gcloud and builds from kubeconfig.
	NewClientset func(ctx context.Context) (kubernetes.Interface, error)

	// ContextDir and Dockerfile configure the image build.
	ContextDir string
	Dockerfile string
	// Kubeconfig is an explicit kubeconfig path, empty for the default chain.
	Kubeconfig string

	// ChangeDescription is matched against the monitoring marker; typically
	// the triggering commit message.
	ChangeDescription string
	// PushManifests publishes the rendered manifests as an OCI bundle.
	PushManifests bool
	// MetricsFile, when set, receives stage metrics in textfile format.
	MetricsFile string

	// PollInterval and PollAttempts override the rollout and address poll
	// bounds when non-zero.
	PollInterval time.Duration
	PollAttempts int
}

// NewDeploy assembles the full deployment pipeline for the given
// configuration. Stage order is the contract: nothing touches the cluster
// until the image is built and pushed and every manifest rendered.
func NewDeploy(cfg *config.Config, opts DeployOptions) (*Pipeline, error) {
	run := opts.Runner
	if run == nil {
		run = &runner.Exec{}
	}

	builder, err := image.NewBuilder(run, image.Options{
		Repository: cfg.ImageRepository(),
		Platform:   cfg.Platform,
		ContextDir: opts.ContextDir,
		Dockerfile: opts.Dockerfile,
	})
	if err != nil {
		return nil, err
	}

	renderer := &render.Renderer{
		TemplateDir:     cfg.TemplateDir,
		OutputDir:       cfg.OutputDir,
		ImageRepository: cfg.ImageRepository(),
	}

	newClientset := opts.NewClientset
	if newClientset == nil {
		newClientset = func(ctx context.Context) (kubernetes.Interface, error) {
			authCtx, cancel := context.WithTimeout(ctx, defaults.ClusterAuthTimeout)
			defer cancel()
			if err := k8sclient.FetchClusterCredentials(authCtx, run,
				cfg.ProjectID, cfg.ClusterName, cfg.Zone); err != nil {
				return nil, err
			}
			clientset, _, err := k8sclient.Build(opts.Kubeconfig)
			return clientset, err
		}
	}

	stages := []Stage{
		{
			Name: "build",
			Run: func(ctx context.Context, r *Run) error {
				r.Tag = image.NewTag(time.Now())
				ctx, cancel := context.WithTimeout(ctx, defaults.BuildTimeout)
				defer cancel()
				return builder.Build(ctx, r.Tag)
			},
		},
		{
			Name:  "publish",
			Needs: []string{"build"},
			Run: func(ctx context.Context, r *Run) error {
				authCtx, cancel := context.WithTimeout(ctx, defaults.RegistryAuthTimeout)
				defer cancel()
				if err := image.ConfigureRegistryAuth(authCtx, run, cfg.RegistryHost); err != nil {
					return err
				}
				pushCtx, cancel := context.WithTimeout(ctx, defaults.PushTimeout)
				defer cancel()
				return builder.Push(pushCtx, r.Tag)
			},
		},
		{
			Name: "materialize",
			Run: func(ctx context.Context, r *Run) error {
				if err := cfg.ValidateSecrets(); err != nil {
					return err
				}
				if err := renderer.Clean(); err != nil {
					return err
				}
				_, err := renderer.MaterializeSecret(cfg.Secrets.Map())
				return err
			},
		},
		{
			Name:  "render",
			Needs: []string{"build", "materialize"},
			Run: func(ctx context.Context, r *Run) error {
				rendered, err := renderer.RenderAll(r.Tag)
				if err != nil {
					return err
				}
				slog.Info("manifests rendered", "count", len(rendered), "tag", r.Tag)
				return nil
			},
		},
		{
			Name:  "authenticate",
			Needs: []string{"publish"},
			Run: func(ctx context.Context, r *Run) error {
				clientset, err := newClientset(ctx)
				if err != nil {
					return err
				}
				r.Clientset = clientset
				return nil
			},
		},
		{
			Name:  "apply",
			Needs: []string{"render", "authenticate"},
			Run: func(ctx context.Context, r *Run) error {
				applier := apply.NewApplier(r.Clientset, cfg.Namespace)
				return applier.ApplyOrdered(ctx, cfg.OutputDir, cfg.IngressEnabled)
			},
		},
		{
			Name:  "rollout",
			Needs: []string{"apply"},
			Run: func(ctx context.Context, r *Run) error {
				watcher := rollout.NewWatcher(r.Clientset, cfg.Namespace, cfg.ImageName)
				if opts.PollInterval > 0 {
					watcher.Interval = opts.PollInterval
				}
				if opts.PollAttempts > 0 {
					watcher.Attempts = opts.PollAttempts
				}
				state, err := watcher.Wait(ctx)
				if err != nil {
					return err
				}
				slog.Info("rollout finished", "state", string(state), "tag", r.Tag)
				return nil
			},
		},
		monitoringStage(cfg, opts),
		{
			Name:  "status",
			Needs: []string{"rollout"},
			Run: func(ctx context.Context, r *Run) error {
				reporter := status.NewReporter(r.Clientset, cfg.Namespace, cfg.ImageName)
				if cfg.IngressEnabled {
					reporter.IngressName = cfg.ImageName
					reporter.UseIngress = true
				}
				if opts.PollInterval > 0 {
					reporter.Interval = opts.PollInterval
				}
				if opts.PollAttempts > 0 {
					reporter.Attempts = opts.PollAttempts
				}
				url, err := reporter.Report(ctx)
				if err != nil {
					return err
				}
				r.URL = url
				return nil
			},
		},
		bundleStage(cfg, opts),
	}

	p, err := New(stages...)
	if err != nil {
		return nil, err
	}
	p.MetricsFile = opts.MetricsFile
	return p, nil
}

// monitoringStage installs the monitoring stack only when the change
// description carries the marker; otherwise the stage is declared but
// skipped so the pipeline shape is identical either way.
func monitoringStage(cfg *config.Config, opts DeployOptions) Stage {
	s := Stage{Name: "monitoring", Needs: []string{"rollout"}}

	policy := monitoring.DefaultMarkerPolicy(cfg.MonitoringMarker)
	if !policy.Matches(opts.ChangeDescription) {
		return s
	}

	s.Run = func(ctx context.Context, r *Run) error {
		installer := monitoring.NewInstaller(r.Clientset, cfg.MonitoringNamespace)
		return installer.Install(ctx)
	}
	return s
}

// bundleStage publishes the rendered manifests next to the image, tagged
// identically, when requested.
func bundleStage(cfg *config.Config, opts DeployOptions) Stage {
	s := Stage{Name: "bundle", Needs: []string{"apply"}}
	if !opts.PushManifests {
		return s
	}

	s.Run = func(ctx context.Context, r *Run) error {
		ctx, cancel := context.WithTimeout(ctx, defaults.BundlePushTimeout)
		defer cancel()
		result, err := bundle.Push(ctx, bundle.PushOptions{
			SourceDir:  cfg.OutputDir,
			Repository: cfg.ImageRepository() + "-manifests",
			Tag:        r.Tag,
		})
		if err != nil {
			return err
		}
		r.BundleRef = result.Reference
		slog.Info("manifest bundle pushed",
			"reference", result.Reference,
			"digest", result.Digest)
		return nil
	}
	return s
}
