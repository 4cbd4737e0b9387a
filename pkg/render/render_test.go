package render

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/chatdocs/shipit/pkg/errors"
)

const testRepo = "gcr.io/p1/docchat"

func newTestRenderer(t *testing.T, templates map[string]string) *Renderer {
	t.Helper()
	dir := t.TempDir()
	tmplDir := filepath.Join(dir, "deployments")
	if err := os.MkdirAll(tmplDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range templates {
		if err := os.WriteFile(filepath.Join(tmplDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return &Renderer{
		TemplateDir:     tmplDir,
		OutputDir:       filepath.Join(dir, "gen"),
		ImageRepository: testRepo,
	}
}

const deploymentTemplate = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: docchat
spec:
  replicas: 2
  template:
    spec:
      containers:
        - name: docchat
          image: __IMAGE__
`

const serviceTemplate = `apiVersion: v1
kind: Service
metadata:
  name: docchat
spec:
  type: LoadBalancer
  ports:
    - port: 80
`

const secretTemplate = `apiVersion: v1
kind: Secret
metadata:
  name: docchat-secrets
type: Opaque
data:
  OPENAI_API_KEY: __OPENAI_API_KEY_B64__
  WEAVIATE_URL: __WEAVIATE_URL_B64__
`

func TestRenderAll_SubstitutesTagExactlyOnce(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"deployment.yaml": deploymentTemplate,
		"service.yaml":    serviceTemplate,
	})
	if err := r.Clean(); err != nil {
		t.Fatal(err)
	}

	files, err := r.RenderAll("20250314-150926")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 rendered files, got %d", len(files))
	}

	out, err := os.ReadFile(filepath.Join(r.OutputDir, "deployment.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	content := string(out)
	if strings.Contains(content, ImagePlaceholder) {
		t.Error("rendered manifest still contains the image placeholder")
	}
	if got := strings.Count(content, testRepo+":20250314-150926"); got != 1 {
		t.Errorf("expected exactly one tagged reference, got %d", got)
	}
}

func TestRenderAll_RendersCheckedInTemplates(t *testing.T) {
	r := &Renderer{
		TemplateDir:     filepath.Join("..", "..", "deployments"),
		OutputDir:       filepath.Join(t.TempDir(), "gen"),
		ImageRepository: "gcr.io/some-other-project/docchat",
	}
	if err := r.Clean(); err != nil {
		t.Fatal(err)
	}

	files, err := r.RenderAll("20250314-150926")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no templates rendered from the checked-in directory")
	}

	var sawImage bool
	for _, f := range files {
		out, err := os.ReadFile(f)
		if err != nil {
			t.Fatal(err)
		}
		content := string(out)
		if strings.Contains(content, ":latest") {
			t.Errorf("%s still references the floating tag", filepath.Base(f))
		}
		if strings.Contains(content, ImagePlaceholder) {
			t.Errorf("%s still contains the image placeholder", filepath.Base(f))
		}
		if strings.Contains(content, "gcr.io/some-other-project/docchat:20250314-150926") {
			sawImage = true
		}
	}
	if !sawImage {
		t.Error("no rendered manifest references the configured repository with the run tag")
	}
}

func TestRenderAll_RejectsHardcodedFloatingImage(t *testing.T) {
	stale := strings.Replace(deploymentTemplate,
		"image: __IMAGE__", "image: gcr.io/elsewhere/docchat:latest", 1)
	r := newTestRenderer(t, map[string]string{"deployment.yaml": stale})
	if err := r.Clean(); err != nil {
		t.Fatal(err)
	}

	_, err := r.RenderAll("20250314-150926")
	if err == nil {
		t.Fatal("expected error for a hardcoded floating-tag image")
	}
	if apperrors.CodeOf(err) != apperrors.ErrCodeRender {
		t.Errorf("expected RENDER code, got %s", apperrors.CodeOf(err))
	}
	if _, statErr := os.Stat(filepath.Join(r.OutputDir, "deployment.yaml")); !os.IsNotExist(statErr) {
		t.Error("refused template must not be written to the output directory")
	}
}

func TestRenderAll_PassesThroughTemplatesWithoutImage(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"deployment.yaml": deploymentTemplate,
		"service.yaml":    serviceTemplate,
	})
	if err := r.Clean(); err != nil {
		t.Fatal(err)
	}

	if _, err := r.RenderAll("20250314-150926"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(r.OutputDir, "service.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != serviceTemplate {
		t.Error("template without image reference must pass through unchanged")
	}
}

func TestRenderAll_SkipsSecretTemplate(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"deployment.yaml": deploymentTemplate,
		"secret.yaml":     secretTemplate,
	})
	if err := r.Clean(); err != nil {
		t.Fatal(err)
	}

	if _, err := r.RenderAll("20250314-150926"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(r.OutputDir, "secret.yaml")); !os.IsNotExist(err) {
		t.Error("generic renderer must not produce the secret manifest")
	}
}

func TestRenderAll_RejectsAmbiguousPlaceholder(t *testing.T) {
	double := strings.Replace(deploymentTemplate, "image: __IMAGE__",
		"image: __IMAGE__\n          initImage: __IMAGE__", 1)
	r := newTestRenderer(t, map[string]string{"deployment.yaml": double})
	if err := r.Clean(); err != nil {
		t.Fatal(err)
	}

	_, err := r.RenderAll("20250314-150926")
	if err == nil {
		t.Fatal("expected ambiguous placeholder error")
	}
	if apperrors.CodeOf(err) != apperrors.ErrCodeRender {
		t.Errorf("expected RENDER code, got %s", apperrors.CodeOf(err))
	}
}

func TestRenderAll_RejectsSecretTokenInNonSecretTemplate(t *testing.T) {
	leaked := deploymentTemplate + "  key: __OPENAI_API_KEY_B64__\n"
	r := newTestRenderer(t, map[string]string{"deployment.yaml": leaked})
	if err := r.Clean(); err != nil {
		t.Fatal(err)
	}

	if _, err := r.RenderAll("20250314-150926"); err == nil {
		t.Fatal("expected render error for secret token outside secret.yaml")
	}
}

func TestMaterializeSecret(t *testing.T) {
	r := newTestRenderer(t, map[string]string{"secret.yaml": secretTemplate})

	secrets := map[string]string{
		"OPENAI_API_KEY": "sk-test-value",
		"WEAVIATE_URL":   "https://weaviate.example.com",
	}
	path, err := r.MaterializeSecret(secrets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(out)

	for key, raw := range secrets {
		if strings.Contains(content, raw) {
			t.Errorf("raw secret value for %s written to disk", key)
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(raw))
		if got := strings.Count(content, encoded); got != 1 {
			t.Errorf("expected exactly one encoded value for %s, got %d", key, got)
		}
		// Round trip per the encoding contract.
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || string(decoded) != raw {
			t.Errorf("encoding for %s is not reversible", key)
		}
	}

	if findSecretToken(content) != "" {
		t.Error("materialized manifest contains unresolved placeholder tokens")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestMaterializeSecret_ShortCircuitsOnEmptyValue(t *testing.T) {
	r := newTestRenderer(t, map[string]string{"secret.yaml": secretTemplate})

	_, err := r.MaterializeSecret(map[string]string{
		"OPENAI_API_KEY": "sk-test",
		"WEAVIATE_URL":   "",
	})
	if err == nil {
		t.Fatal("expected error for empty secret value")
	}
	if apperrors.CodeOf(err) != apperrors.ErrCodeConfig {
		t.Errorf("expected CONFIG code, got %s", apperrors.CodeOf(err))
	}

	// Nothing may be written when materialization short-circuits.
	if _, err := os.Stat(r.OutputDir); !os.IsNotExist(err) {
		t.Error("output directory must not exist after short-circuit")
	}
}

func TestMaterializeSecret_MissingPlaceholder(t *testing.T) {
	r := newTestRenderer(t, map[string]string{"secret.yaml": secretTemplate})

	_, err := r.MaterializeSecret(map[string]string{
		"OPENAI_API_KEY":   "sk-test",
		"WEAVIATE_URL":     "https://weaviate.example.com",
		"WEAVIATE_API_KEY": "wv-key", // no token in template
	})
	if err == nil {
		t.Fatal("expected missing placeholder error")
	}
	if !strings.Contains(err.Error(), "__WEAVIATE_API_KEY_B64__") {
		t.Errorf("error must name the missing token: %v", err)
	}
	if strings.Contains(err.Error(), "wv-key") {
		t.Error("error must not contain raw secret values")
	}
}

func TestMaterializeSecret_UnresolvedTokenFails(t *testing.T) {
	withExtra := secretTemplate + "  EXTRA: __EXTRA_SECRET_B64__\n"
	r := newTestRenderer(t, map[string]string{"secret.yaml": withExtra})

	_, err := r.MaterializeSecret(map[string]string{
		"OPENAI_API_KEY": "sk-test",
		"WEAVIATE_URL":   "https://weaviate.example.com",
	})
	if err == nil {
		t.Fatal("expected unresolved placeholder error")
	}
}

func TestClean_RemovesPreviousRun(t *testing.T) {
	r := newTestRenderer(t, map[string]string{"deployment.yaml": deploymentTemplate})
	if err := r.Clean(); err != nil {
		t.Fatal(err)
	}

	stale := filepath.Join(r.OutputDir, "stale.yaml")
	if err := os.WriteFile(stale, []byte("kind: Old"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := r.Clean(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("clean must remove files from the previous run")
	}
}
