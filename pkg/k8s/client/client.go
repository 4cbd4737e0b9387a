/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package client constructs the Kubernetes client used by every
// cluster-facing pipeline stage.
package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	"github.com/chatdocs/shipit/pkg/defaults"
	apperrors "github.com/chatdocs/shipit/pkg/errors"
	"github.com/chatdocs/shipit/pkg/runner"
)

// Interface is an alias for kubernetes.Interface to allow easier mocking in
// tests via fake.NewClientset().
type Interface = kubernetes.Interface

// Build creates a Kubernetes client from the given kubeconfig file.
//
// If kubeconfig is empty, discovery order is:
//  1. KUBECONFIG environment variable
//  2. ~/.kube/config (if it exists)
//  3. In-cluster configuration (service account)
func Build(kubeconfig string) (Interface, *rest.Config, error) {
	var config *rest.Config
	var err error

	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")

		if kubeconfig == "" {
			kubeconfig = filepath.Join(homedir.HomeDir(), ".kube", "config")
			if _, err = os.Stat(kubeconfig); os.IsNotExist(err) {
				kubeconfig = ""
			}
		}
	}

	// Use InClusterConfig directly when no kubeconfig is available.
	if kubeconfig == "" {
		config, err = rest.InClusterConfig()
		if err != nil {
			return nil, nil, apperrors.Wrap(apperrors.ErrCodeUnauthorized,
				"failed to get in-cluster config", err)
		}
	} else {
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, nil, apperrors.Wrap(apperrors.ErrCodeUnauthorized,
				fmt.Sprintf("failed to build kube config from %s", kubeconfig), err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrCodeUnauthorized,
			"failed to create kubernetes client", err)
	}

	return clientset, config, nil
}

// FetchClusterCredentials writes cluster credentials into the local
// kubeconfig via gcloud, scoped to the managed cluster this pipeline
// targets. Idempotent; a failure is an authentication error and halts the
// pipeline before any apply.
func FetchClusterCredentials(ctx context.Context, run runner.Runner, projectID, clusterName, zone string) error {
	ctx, cancel := context.WithTimeout(ctx, defaults.ClusterAuthTimeout)
	defer cancel()

	err := run.Run(ctx, "gcloud", "container", "clusters", "get-credentials", clusterName,
		"--zone", zone,
		"--project", projectID,
	)
	if err != nil {
		return apperrors.WrapWithContext(apperrors.ErrCodeUnauthorized,
			"failed to fetch cluster credentials", err,
			map[string]any{"cluster": clusterName, "zone": zone, "project": projectID})
	}
	return nil
}
