/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package pipeline sequences the deployment stages. Stages declare their
// prerequisites explicitly and the pipeline refuses to run unless every
// stage appears after everything it needs, so no ordering bug can push an
// image reference to the cluster before the image exists in the registry.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"k8s.io/client-go/kubernetes"

	apperrors "github.com/chatdocs/shipit/pkg/errors"
)

// Run carries the state threaded through one pipeline execution. Stages
// read what earlier stages produced and fill in their own fields.
type Run struct {
	// ID uniquely identifies this execution in logs and metrics output.
	ID string
	// Tag is the timestamp tag shared by the image and the manifests.
	Tag string
	// Clientset is established by the authenticate stage.
	Clientset kubernetes.Interface
	// URL is the application endpoint, when one was assigned in time.
	URL string
	// BundleRef is the published manifest bundle reference, when pushed.
	BundleRef string
}

// Stage is one named unit of work with explicit prerequisites.
type Stage struct {
	// Name identifies the stage in logs, errors, and metrics labels.
	Name string
	// Needs lists stage names that must have completed first.
	Needs []string
	// Run does the work. A nil Run marks a stage that is declared for
	// ordering but skipped this execution.
	Run func(ctx context.Context, run *Run) error
}

// Pipeline is an ordered, validated sequence of stages.
type Pipeline struct {
	stages  []Stage
	metrics *stageMetrics

	// MetricsFile, when set, receives the run's metrics in the Prometheus
	// textfile-collector format after execution.
	MetricsFile string
}

// New builds a Pipeline from the given stages, validating that every
// stage's prerequisites precede it and that names are unique.
func New(stages ...Stage) (*Pipeline, error) {
	seen := make(map[string]bool, len(stages))
	for _, s := range stages {
		if s.Name == "" {
			return nil, apperrors.New(apperrors.ErrCodeInternal, "stage with empty name")
		}
		if seen[s.Name] {
			return nil, apperrors.New(apperrors.ErrCodeInternal,
				"duplicate stage "+s.Name)
		}
		for _, need := range s.Needs {
			if !seen[need] {
				return nil, apperrors.NewWithContext(apperrors.ErrCodeInternal,
					fmt.Sprintf("stage %s requires %s which does not precede it", s.Name, need),
					map[string]any{"stage": s.Name, "needs": need})
			}
		}
		seen[s.Name] = true
	}
	return &Pipeline{stages: stages, metrics: newStageMetrics()}, nil
}

// Execute runs the stages in order against a fresh Run. The first stage
// error aborts the pipeline; the partial Run is returned alongside it.
func (p *Pipeline) Execute(ctx context.Context) (*Run, error) {
	run := &Run{ID: uuid.New().String()}
	slog.Info("pipeline starting", "run_id", run.ID, "stages", len(p.stages))

	for _, s := range p.stages {
		if s.Run == nil {
			slog.Debug("stage skipped", "stage", s.Name, "run_id", run.ID)
			p.metrics.observe(s.Name, statusSkipped, 0)
			continue
		}

		slog.Info("stage starting", "stage", s.Name, "run_id", run.ID)
		start := time.Now()
		err := s.Run(ctx, run)
		elapsed := time.Since(start)

		if err != nil {
			p.metrics.observe(s.Name, statusFailed, elapsed)
			p.writeMetrics(run.ID)
			slog.Error("stage failed",
				"stage", s.Name,
				"run_id", run.ID,
				"duration", elapsed.String(),
				"error", err)
			return run, err
		}

		p.metrics.observe(s.Name, statusSucceeded, elapsed)
		slog.Info("stage complete",
			"stage", s.Name,
			"run_id", run.ID,
			"duration", elapsed.String())
	}

	p.writeMetrics(run.ID)
	slog.Info("pipeline complete", "run_id", run.ID)
	return run, nil
}

// writeMetrics exports the run's metrics for a node-exporter textfile
// collector. Failure to write is logged, never fatal: metrics must not
// take down a deployment that otherwise succeeded.
func (p *Pipeline) writeMetrics(runID string) {
	if p.MetricsFile == "" {
		return
	}
	if err := p.metrics.writeTextfile(p.MetricsFile); err != nil {
		slog.Warn("failed to write metrics file",
			"path", p.MetricsFile,
			"run_id", runID,
			"error", err)
	}
}
