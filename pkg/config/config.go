/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads and validates the pipeline configuration.
//
// Values come from two sources: an optional dotenv-style file (local runs)
// and process environment variables (CI runs, which carry secrets from the
// CI secret store and never use a local file). Environment variables take
// precedence over file values. Validation is all-or-nothing per required
// group: the cluster group is checked at load time, the secret group
// immediately before secret materialization.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	apperrors "github.com/chatdocs/shipit/pkg/errors"
)

// DefaultEnvFile is the conventional local configuration file.
const DefaultEnvFile = ".env.deploy"

// Required cluster configuration keys.
const (
	KeyProjectID   = "PROJECT_ID"
	KeyClusterName = "CLUSTER_NAME"
	KeyZone        = "ZONE"
)

// Required secret keys, matching the application's runtime environment.
const (
	KeyOpenAIAPIKey   = "OPENAI_API_KEY"
	KeyWeaviateURL    = "WEAVIATE_URL"
	KeyWeaviateAPIKey = "WEAVIATE_API_KEY"
)

// Optional keys with defaults.
const (
	KeyRegistryHost        = "REGISTRY_HOST"
	KeyImageName           = "IMAGE_NAME"
	KeyPlatform            = "PLATFORM"
	KeyNamespace           = "NAMESPACE"
	KeyTemplateDir         = "TEMPLATE_DIR"
	KeyOutputDir           = "OUTPUT_DIR"
	KeyIngressEnabled      = "INGRESS_ENABLED"
	KeyMonitoringNamespace = "MONITORING_NAMESPACE"
	KeyMonitoringMarker    = "MONITORING_MARKER"
)

// Config is the immutable configuration for one pipeline run. It is
// constructed once at startup and passed explicitly into each stage.
type Config struct {
	// Cluster identity (required group).
	ProjectID   string
	ClusterName string
	Zone        string

	// Image coordinates.
	RegistryHost string
	ImageName    string
	Platform     string

	// Cluster target and rendering layout.
	Namespace   string
	TemplateDir string
	OutputDir   string

	// Exposure variant: Ingress-based when true, LoadBalancer Service otherwise.
	IngressEnabled bool

	// Monitoring stack settings.
	MonitoringNamespace string
	MonitoringMarker    string

	// Secrets carries the application secret group. Values are redacted
	// from all log output.
	Secrets Secrets
}

// ImageRepository returns the project-scoped repository path without a tag,
// e.g. "gcr.io/my-project/docchat".
func (c *Config) ImageRepository() string {
	return fmt.Sprintf("%s/%s/%s", c.RegistryHost, c.ProjectID, c.ImageName)
}

// Load reads configuration from the given env file (optional when path is
// empty and the default file is absent) merged under the process
// environment, then validates the required cluster group. Secret presence
// is validated separately via ValidateSecrets, immediately before the
// secret materialization step.
func Load(path string) (*Config, error) {
	fileVals, err := readEnvFile(path)
	if err != nil {
		return nil, err
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		return fileVals[key]
	}

	cfg := &Config{
		ProjectID:   lookup(KeyProjectID),
		ClusterName: lookup(KeyClusterName),
		Zone:        lookup(KeyZone),

		RegistryHost: valueOr(lookup(KeyRegistryHost), "gcr.io"),
		ImageName:    valueOr(lookup(KeyImageName), "docchat"),
		Platform:     valueOr(lookup(KeyPlatform), "linux/amd64"),

		Namespace:   valueOr(lookup(KeyNamespace), "default"),
		TemplateDir: valueOr(lookup(KeyTemplateDir), "deployments"),
		OutputDir:   valueOr(lookup(KeyOutputDir), "deployments/gen"),

		IngressEnabled: parseBool(lookup(KeyIngressEnabled)),

		MonitoringNamespace: valueOr(lookup(KeyMonitoringNamespace), "monitoring"),
		MonitoringMarker:    valueOr(lookup(KeyMonitoringMarker), "[monitoring]"),

		Secrets: Secrets{
			OpenAIAPIKey:   lookup(KeyOpenAIAPIKey),
			WeaviateURL:    lookup(KeyWeaviateURL),
			WeaviateAPIKey: lookup(KeyWeaviateAPIKey),
		},
	}

	if err := cfg.validateCluster(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateCluster checks the required cluster group all-or-nothing and
// names every missing key in the error.
func (c *Config) validateCluster() error {
	missing := missingKeys(map[string]string{
		KeyProjectID:   c.ProjectID,
		KeyClusterName: c.ClusterName,
		KeyZone:        c.Zone,
	})
	if len(missing) > 0 {
		return apperrors.NewWithContext(
			apperrors.ErrCodeConfig,
			"missing required configuration: "+strings.Join(missing, ", "),
			map[string]any{"missing": missing},
		)
	}
	return nil
}

// ValidateSecrets checks the required secret group all-or-nothing. It must
// be called before secret materialization; the materializer additionally
// refuses empty values as a second line of defense.
func (c *Config) ValidateSecrets() error {
	missing := missingKeys(c.Secrets.Map())
	if len(missing) > 0 {
		return apperrors.NewWithContext(
			apperrors.ErrCodeConfig,
			"missing required secrets: "+strings.Join(missing, ", "),
			map[string]any{"missing": missing},
		)
	}
	return nil
}

func readEnvFile(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	vals, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			// Local file is optional; CI supplies everything via env.
			return map[string]string{}, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeConfig,
			fmt.Sprintf("failed to read env file %s", path), err)
	}
	return vals, nil
}

func missingKeys(vals map[string]string) []string {
	var missing []string
	for key, val := range vals {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
