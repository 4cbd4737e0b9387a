/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage outcome labels.
const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
	statusSkipped   = "skipped"
)

// stageMetrics tracks per-stage outcomes on a private registry so each
// pipeline's textfile export covers exactly one run.
type stageMetrics struct {
	registry *prometheus.Registry

	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

func newStageMetrics() *stageMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &stageMetrics{
		registry: registry,
		stageTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipit_stage_total",
				Help: "Pipeline stage executions by stage and status",
			},
			[]string{"stage", "status"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipit_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
			},
			[]string{"stage"},
		),
	}
}

func (m *stageMetrics) observe(stage, status string, elapsed time.Duration) {
	m.stageTotal.WithLabelValues(stage, status).Inc()
	if status != statusSkipped {
		m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	}
}

func (m *stageMetrics) writeTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
