// Package cli implements the command-line interface for the shipit deployment tool.
//
// # Overview
//
// shipit builds the docchat container image, publishes it to the configured
// registry, renders the Kubernetes manifests for the run, applies them to a
// GKE cluster, and reports the resulting application address. It is designed
// to run identically from a developer workstation and from CI.
//
// # Commands
//
// deploy - Run the full pipeline:
//
//	shipit deploy [--message TEXT] [--push-manifests] [--metrics-file PATH]
//
// Builds, pushes, renders, applies, waits for the rollout, optionally
// installs the monitoring stack (when the change description carries the
// configured marker), and prints the application URL.
//
// build - Build and push the image only:
//
//	shipit build [--context DIR] [--dockerfile FILE] [--skip-push]
//
// render - Materialize the secret and render manifests for a tag:
//
//	shipit render --tag 20250314-150926 [--skip-secret]
//
// apply - Apply rendered manifests and wait for the rollout:
//
//	shipit apply [--skip-wait] [--skip-auth]
//
// status - Print the external application address:
//
//	shipit status
//
// monitoring - Install or remove the monitoring stack:
//
//	shipit monitoring install
//	shipit monitoring uninstall
//
// # Configuration
//
// Configuration comes from an env file (default .env.deploy, override with
// --env-file) merged under the process environment; environment always
// wins, so CI can supply everything without a file. Required cluster keys:
// PROJECT_ID, CLUSTER_NAME, ZONE. Required secret keys: OPENAI_API_KEY,
// WEAVIATE_URL, WEAVIATE_API_KEY. Secret values are only ever written
// base64-encoded into the generated secret manifest and are redacted from
// all log output.
//
// # Exit Codes
//
//	0  Success (including a rollout that timed out with a warning)
//	1  Any pipeline failure
//
// # Architecture
//
// The CLI uses the urfave/cli/v3 framework and delegates to specialized
// packages:
//   - pkg/pipeline - stage sequencing for deploy
//   - pkg/image - docker build and push
//   - pkg/render - secret materialization and manifest rendering
//   - pkg/k8s - cluster client, ordered apply, rollout watching
//   - pkg/monitoring - monitoring stack lifecycle
//   - pkg/status - external address reporting
//
// Version information is embedded at build time using ldflags:
//
//	go build -ldflags="-X 'github.com/chatdocs/shipit/pkg/cli.version=1.0.0'"
package cli
