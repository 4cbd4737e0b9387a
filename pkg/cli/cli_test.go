package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chatdocs/shipit/pkg/runner"
)

func setClusterEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PROJECT_ID", "p1")
	t.Setenv("CLUSTER_NAME", "c1")
	t.Setenv("ZONE", "us-central1-a")
}

func setSecretEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("WEAVIATE_URL", "https://weaviate.example.com")
	t.Setenv("WEAVIATE_API_KEY", "wv-test")
}

func TestLastCommitMessage(t *testing.T) {
	rec := &runner.Recorder{
		Respond: map[string]runner.Response{
			"git log": {Stdout: "tighten retriever prompts [monitoring]"},
		},
	}
	if got := lastCommitMessage(context.Background(), rec); got != "tighten retriever prompts [monitoring]" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestLastCommitMessage_NoRepository(t *testing.T) {
	rec := &runner.Recorder{
		Respond: map[string]runner.Response{
			"git log": {Err: errors.New("not a git repository")},
		},
	}
	if got := lastCommitMessage(context.Background(), rec); got != "" {
		t.Errorf("expected empty message outside a checkout, got %q", got)
	}
}

func TestRenderCmdRejectsInvalidTag(t *testing.T) {
	setClusterEnv(t)
	setSecretEnv(t)

	cmd := renderCmd()
	cmd.Writer = &bytes.Buffer{}

	err := cmd.Run(context.Background(), []string{"render", "--tag", "not-a-tag"})
	if err == nil {
		t.Fatal("expected error for invalid tag")
	}
	if !strings.Contains(err.Error(), "invalid tag") {
		t.Errorf("error = %v, want invalid tag message", err)
	}
}

func TestRenderCmdRendersTemplates(t *testing.T) {
	setClusterEnv(t)
	setSecretEnv(t)

	templateDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "gen")
	t.Setenv("TEMPLATE_DIR", templateDir)
	t.Setenv("OUTPUT_DIR", outputDir)

	deployment := `apiVersion: apps/v1
kind: Deployment
metadata:
  name: docchat
spec:
  replicas: 1
  selector:
    matchLabels:
      app: docchat
  template:
    metadata:
      labels:
        app: docchat
    spec:
      containers:
        - name: docchat
          image: __IMAGE__
`
	secret := `apiVersion: v1
kind: Secret
metadata:
  name: docchat-secrets
type: Opaque
data:
  OPENAI_API_KEY: __OPENAI_API_KEY_B64__
  WEAVIATE_URL: __WEAVIATE_URL_B64__
  WEAVIATE_API_KEY: __WEAVIATE_API_KEY_B64__
`
	for name, content := range map[string]string{
		"deployment.yaml": deployment,
		"secret.yaml":     secret,
	} {
		if err := os.WriteFile(filepath.Join(templateDir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("writing template: %v", err)
		}
	}

	var buf bytes.Buffer
	cmd := renderCmd()
	cmd.Writer = &buf

	if err := cmd.Run(context.Background(), []string{"render", "--tag", "20250314-150926"}); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	rendered, err := os.ReadFile(filepath.Join(outputDir, "deployment.yaml"))
	if err != nil {
		t.Fatalf("rendered deployment missing: %v", err)
	}
	if !strings.Contains(string(rendered), "gcr.io/p1/docchat:20250314-150926") {
		t.Error("rendered deployment does not carry the run tag")
	}
	if _, err := os.Stat(filepath.Join(outputDir, "secret.yaml")); err != nil {
		t.Errorf("secret manifest missing: %v", err)
	}
}

func TestRenderCmdMissingSecrets(t *testing.T) {
	setClusterEnv(t)
	t.Setenv("TEMPLATE_DIR", t.TempDir())
	t.Setenv("OUTPUT_DIR", filepath.Join(t.TempDir(), "gen"))

	cmd := renderCmd()
	cmd.Writer = &bytes.Buffer{}

	err := cmd.Run(context.Background(), []string{"render", "--tag", "20250314-150926"})
	if err == nil {
		t.Fatal("expected error for missing secrets")
	}
	for _, key := range []string{"OPENAI_API_KEY", "WEAVIATE_URL", "WEAVIATE_API_KEY"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %v does not name missing key %s", err, key)
		}
	}
}

func TestDeployCmdMissingClusterConfig(t *testing.T) {
	t.Setenv("PROJECT_ID", "")
	t.Setenv("CLUSTER_NAME", "")
	t.Setenv("ZONE", "")

	cmd := deployCmd()
	cmd.Writer = &bytes.Buffer{}

	err := cmd.Run(context.Background(), []string{"deploy"})
	if err == nil {
		t.Fatal("expected error for missing cluster configuration")
	}
	for _, key := range []string{"PROJECT_ID", "CLUSTER_NAME", "ZONE"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %v does not name missing key %s", err, key)
		}
	}
}

func TestRootCmdWiresSubcommands(t *testing.T) {
	root := rootCmd()

	want := map[string]bool{
		"deploy": false, "build": false, "render": false,
		"apply": false, "status": false, "monitoring": false,
	}
	for _, c := range root.Commands {
		if _, ok := want[c.Name]; ok {
			want[c.Name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("root command missing subcommand %s", name)
		}
	}
}
