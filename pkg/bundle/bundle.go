/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package bundle publishes the rendered manifest set as an OCI artifact so
// every deployment leaves a pullable, tagged record of exactly what was
// applied to the cluster.
package bundle

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/distribution/reference"
	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/file"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"

	apperrors "github.com/chatdocs/shipit/pkg/errors"
)

// ArtifactType identifies manifest bundles in the registry and
// distinguishes them from runnable container images.
const ArtifactType = "application/vnd.chatdocs.manifests"

// PushOptions configures a manifest bundle push.
type PushOptions struct {
	// SourceDir is the directory of rendered manifests to bundle.
	SourceDir string
	// Repository is the full repository path including registry host,
	// e.g. "gcr.io/my-project/docchat-manifests".
	Repository string
	// Tag is the deployment tag the bundle is published under.
	Tag string
	// PlainHTTP uses HTTP for the registry connection (local registries).
	PlainHTTP bool
	// InsecureTLS skips TLS certificate verification.
	InsecureTLS bool
}

// PushResult describes a published bundle.
type PushResult struct {
	// Digest is the SHA256 digest of the bundle manifest.
	Digest string
	// Reference is the full reference the bundle was tagged with.
	Reference string
}

// Push packages SourceDir as an OCI 1.1 artifact and pushes it by tag.
// Authentication comes from the Docker credential store, so the registry
// login performed for the image push covers the bundle push too.
func Push(ctx context.Context, opts PushOptions) (*PushResult, error) {
	if opts.Tag == "" {
		return nil, apperrors.New(apperrors.ErrCodePublish, "bundle tag is required")
	}

	refString := fmt.Sprintf("%s:%s", opts.Repository, opts.Tag)
	if _, err := reference.ParseNormalizedNamed(refString); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish,
			"invalid bundle reference "+refString, err)
	}

	// ORAS resolves store paths against the working directory; pin them.
	absDir, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish,
			"failed to resolve bundle source directory", err)
	}

	fs, err := file.New(absDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish,
			"failed to create bundle file store", err)
	}
	defer func() { _ = fs.Close() }()
	fs.TarReproducible = true

	layerDesc, err := fs.Add(ctx, ".", ociv1.MediaTypeImageLayerGzip, absDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish,
			"failed to add manifests to bundle store", err)
	}

	manifestDesc, err := oras.PackManifest(ctx, fs, oras.PackManifestVersion1_1, ArtifactType,
		oras.PackManifestOptions{
			Layers: []ociv1.Descriptor{layerDesc},
			ManifestAnnotations: map[string]string{
				ociv1.AnnotationCreated: time.Now().UTC().Format(time.RFC3339),
			},
		})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish,
			"failed to pack bundle manifest", err)
	}

	if err := fs.Tag(ctx, manifestDesc, opts.Tag); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish,
			"failed to tag bundle in local store", err)
	}

	repo, err := remote.NewRepository(opts.Repository)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish,
			"failed to initialize bundle repository", err)
	}
	repo.PlainHTTP = opts.PlainHTTP
	repo.Client = newAuthClient(opts.PlainHTTP, opts.InsecureTLS)

	desc, err := oras.Copy(ctx, fs, opts.Tag, repo, opts.Tag, oras.DefaultCopyOptions)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePublish,
			"failed to push bundle to registry", err)
	}

	return &PushResult{
		Digest:    desc.Digest.String(),
		Reference: refString,
	}, nil
}

// newAuthClient builds an HTTP client backed by the Docker credential store.
func newAuthClient(plainHTTP, insecureTLS bool) *auth.Client {
	credStore, _ := credentials.NewStoreFromDocker(credentials.StoreOptions{})

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !plainHTTP && insecureTLS {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec
		}
	}

	return &auth.Client{
		Client:     &http.Client{Transport: transport},
		Cache:      auth.NewCache(),
		Credential: credentials.Credential(credStore),
	}
}
