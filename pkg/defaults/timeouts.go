/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package defaults centralizes the timeout and polling constants used across
// the pipeline so every bounded wait is named and reviewable in one place.
package defaults

import "time"

// Image build and publish bounds.
const (
	// BuildTimeout is the maximum duration for a container image build.
	BuildTimeout = 15 * time.Minute

	// PushTimeout is the maximum duration for pushing one image tag.
	PushTimeout = 10 * time.Minute

	// RegistryAuthTimeout is the maximum duration for registry auth setup.
	RegistryAuthTimeout = 2 * time.Minute
)

// Cluster apply and rollout bounds.
const (
	// ClusterAuthTimeout is the maximum duration for fetching cluster credentials.
	ClusterAuthTimeout = 2 * time.Minute

	// ApplyTimeout is the timeout for a single manifest apply call.
	ApplyTimeout = 30 * time.Second

	// RolloutInterval is the polling interval while waiting for a rollout.
	RolloutInterval = 5 * time.Second

	// RolloutAttempts bounds the rollout wait (RolloutAttempts * RolloutInterval total).
	RolloutAttempts = 60
)

// Namespace lifecycle bounds.
const (
	// NamespaceDeleteInterval is the polling interval while a namespace terminates.
	NamespaceDeleteInterval = 10 * time.Second

	// NamespaceDeleteAttempts bounds the wait for a terminating namespace.
	NamespaceDeleteAttempts = 30
)

// Monitoring stack bounds.
const (
	// MonitoringComponentInterval is the polling interval while waiting for
	// a monitoring workload to become available.
	MonitoringComponentInterval = 5 * time.Second

	// MonitoringComponentAttempts bounds the per-component availability wait.
	MonitoringComponentAttempts = 36
)

// Status reporting bounds.
const (
	// AddressPollInterval is the polling interval for the external address.
	AddressPollInterval = 10 * time.Second

	// AddressPollAttempts bounds the external address wait (300s total).
	AddressPollAttempts = 30
)

// Manifest bundle publishing bounds.
const (
	// BundlePushTimeout is the maximum duration for pushing the rendered
	// manifest artifact to the registry.
	BundlePushTimeout = 2 * time.Minute
)
