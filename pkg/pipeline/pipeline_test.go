package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/chatdocs/shipit/pkg/config"
	apperrors "github.com/chatdocs/shipit/pkg/errors"
	"github.com/chatdocs/shipit/pkg/runner"
)

func TestNewRejectsDuplicateStage(t *testing.T) {
	_, err := New(
		Stage{Name: "build"},
		Stage{Name: "build"},
	)
	if err == nil {
		t.Fatal("expected error for duplicate stage name")
	}
}

func TestNewRejectsUnmetNeed(t *testing.T) {
	_, err := New(
		Stage{Name: "apply", Needs: []string{"render"}},
		Stage{Name: "render"},
	)
	if err == nil {
		t.Fatal("expected error when a stage precedes its prerequisite")
	}
}

func TestNewRejectsEmptyName(t *testing.T) {
	if _, err := New(Stage{}); err == nil {
		t.Fatal("expected error for empty stage name")
	}
}

func TestExecuteRunsStagesInOrder(t *testing.T) {
	var order []string
	record := func(name string) func(context.Context, *Run) error {
		return func(context.Context, *Run) error {
			order = append(order, name)
			return nil
		}
	}

	p, err := New(
		Stage{Name: "one", Run: record("one")},
		Stage{Name: "two", Needs: []string{"one"}, Run: record("two")},
		Stage{Name: "skipped", Needs: []string{"one"}},
		Stage{Name: "three", Needs: []string{"two"}, Run: record("three")},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	run, err := p.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if run.ID == "" {
		t.Error("run ID not assigned")
	}

	want := []string{"one", "two", "three"}
	if len(order) != len(want) {
		t.Fatalf("executed %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("stage %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestExecuteStopsOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	var ran []string

	p, err := New(
		Stage{Name: "one", Run: func(context.Context, *Run) error {
			ran = append(ran, "one")
			return nil
		}},
		Stage{Name: "two", Run: func(context.Context, *Run) error {
			ran = append(ran, "two")
			return boom
		}},
		Stage{Name: "three", Run: func(context.Context, *Run) error {
			ran = append(ran, "three")
			return nil
		}},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := p.Execute(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Execute error = %v, want %v", err, boom)
	}
	if len(ran) != 2 {
		t.Errorf("ran %v, want exactly [one two]", ran)
	}
}

func TestExecuteWritesMetricsFile(t *testing.T) {
	p, err := New(Stage{Name: "only", Run: func(context.Context, *Run) error {
		return nil
	}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	p.MetricsFile = filepath.Join(t.TempDir(), "shipit.prom")

	if _, err := p.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, err := os.ReadFile(p.MetricsFile)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), "shipit_stage_total") {
		t.Error("metrics file missing stage counter")
	}
}

const testSecretTemplate = `apiVersion: v1
kind: Secret
metadata:
  name: docchat-secrets
type: Opaque
data:
  OPENAI_API_KEY: __OPENAI_API_KEY_B64__
  WEAVIATE_URL: __WEAVIATE_URL_B64__
  WEAVIATE_API_KEY: __WEAVIATE_API_KEY_B64__
`

const testDeploymentTemplate = `apiVersion: apps/v1
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
          ports:
            - containerPort: 8501
`

const testServiceTemplate = `apiVersion: v1
kind: Service
metadata:
  name: docchat
spec:
  type: LoadBalancer
  selector:
    app: docchat
  ports:
    - port: 80
      targetPort: 8501
`

func testDeployConfig(t *testing.T) *config.Config {
	t.Helper()
	templateDir := t.TempDir()
	for name, content := range map[string]string{
		"secret.yaml":     testSecretTemplate,
		"deployment.yaml": testDeploymentTemplate,
		"service.yaml":    testServiceTemplate,
	} {
		if err := os.WriteFile(filepath.Join(templateDir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("writing template %s: %v", name, err)
		}
	}

	return &config.Config{
		ProjectID:           "p1",
		ClusterName:         "c1",
		Zone:                "us-central1-a",
		RegistryHost:        "gcr.io",
		ImageName:           "docchat",
		Platform:            "linux/amd64",
		Namespace:           "default",
		TemplateDir:         templateDir,
		OutputDir:           filepath.Join(t.TempDir(), "gen"),
		MonitoringNamespace: "monitoring",
		MonitoringMarker:    "[monitoring]",
		Secrets: config.Secrets{
			OpenAIAPIKey:   "sk-test",
			WeaviateURL:    "https://weaviate.example.com",
			WeaviateAPIKey: "wv-test",
		},
	}
}

// readyClientset returns a fake clientset whose deployments report ready
// and whose load balancer services get an address as soon as they exist.
func readyClientset() *fake.Clientset {
	clientset := fake.NewClientset()
	clientset.PrependReactor("create", "deployments",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			deploy := action.(k8stesting.CreateAction).GetObject().(*appsv1.Deployment)
			deploy.Status = appsv1.DeploymentStatus{
				ObservedGeneration: deploy.Generation,
				Replicas:           1,
				UpdatedReplicas:    1,
				ReadyReplicas:      1,
			}
			return false, nil, nil
		})
	clientset.PrependReactor("create", "services",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			svc := action.(k8stesting.CreateAction).GetObject().(*corev1.Service)
			if svc.Spec.Type == corev1.ServiceTypeLoadBalancer {
				svc.Status.LoadBalancer.Ingress = []corev1.LoadBalancerIngress{
					{IP: "203.0.113.10"},
				}
			}
			return false, nil, nil
		})
	return clientset
}

func TestDeployEndToEnd(t *testing.T) {
	cfg := testDeployConfig(t)
	rec := &runner.Recorder{}
	clientset := readyClientset()

	p, err := NewDeploy(cfg, DeployOptions{
		Runner: rec,
		NewClientset: func(context.Context) (kubernetes.Interface, error) {
			return clientset, nil
		},
		PollInterval: time.Millisecond,
		PollAttempts: 3,
	})
	if err != nil {
		t.Fatalf("NewDeploy failed: %v", err)
	}

	run, err := p.Execute(context.Background())
	if err != nil {
		t.Fatalf("deploy failed: %v", err)
	}

	if run.Tag == "" {
		t.Error("run tag not assigned")
	}
	if run.URL != "http://203.0.113.10" {
		t.Errorf("URL = %q, want http://203.0.113.10", run.URL)
	}

	if calls := rec.CallsMatching("docker build"); len(calls) != 1 {
		t.Errorf("expected 1 docker build, got %v", calls)
	}
	if calls := rec.CallsMatching("docker push"); len(calls) != 2 {
		t.Errorf("expected both tags pushed, got %v", calls)
	}
	if calls := rec.CallsMatching("gcloud auth configure-docker"); len(calls) != 1 {
		t.Errorf("expected registry auth, got %v", calls)
	}

	ctx := context.Background()
	deploy, err := clientset.AppsV1().Deployments("default").Get(ctx, "docchat", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("deployment not applied: %v", err)
	}
	if img := deploy.Spec.Template.Spec.Containers[0].Image; img != cfg.ImageRepository()+":"+run.Tag {
		t.Errorf("applied image %q does not carry the run tag %q", img, run.Tag)
	}
	if _, err := clientset.CoreV1().Secrets("default").Get(ctx, "docchat-secrets", metav1.GetOptions{}); err != nil {
		t.Errorf("secret not applied: %v", err)
	}

	// No monitoring marker in the change description.
	if _, err := clientset.CoreV1().Namespaces().Get(ctx, "monitoring", metav1.GetOptions{}); err == nil {
		t.Error("monitoring namespace created without marker")
	}
}

func TestDeployInstallsMonitoringOnMarker(t *testing.T) {
	cfg := testDeployConfig(t)
	clientset := readyClientset()

	p, err := NewDeploy(cfg, DeployOptions{
		Runner: &runner.Recorder{},
		NewClientset: func(context.Context) (kubernetes.Interface, error) {
			return clientset, nil
		},
		ChangeDescription: "ship new retriever [MONITORING]",
		PollInterval:      time.Millisecond,
		PollAttempts:      3,
	})
	if err != nil {
		t.Fatalf("NewDeploy failed: %v", err)
	}

	if _, err := p.Execute(context.Background()); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}

	if _, err := clientset.CoreV1().Namespaces().Get(context.Background(), "monitoring", metav1.GetOptions{}); err != nil {
		t.Errorf("monitoring namespace not created: %v", err)
	}
}

func TestDeployBuildFailureStopsBeforeCluster(t *testing.T) {
	cfg := testDeployConfig(t)
	rec := &runner.Recorder{
		Respond: map[string]runner.Response{
			"docker build": {Err: errors.New("exit status 1")},
		},
	}
	clientset := readyClientset()

	p, err := NewDeploy(cfg, DeployOptions{
		Runner: rec,
		NewClientset: func(context.Context) (kubernetes.Interface, error) {
			return clientset, nil
		},
		PollInterval: time.Millisecond,
		PollAttempts: 3,
	})
	if err != nil {
		t.Fatalf("NewDeploy failed: %v", err)
	}

	_, err = p.Execute(context.Background())
	if err == nil {
		t.Fatal("expected build failure")
	}
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodeBuild {
		t.Errorf("error code = %s, want %s", code, apperrors.ErrCodeBuild)
	}

	if len(clientset.Actions()) != 0 {
		t.Errorf("cluster touched after build failure: %v", clientset.Actions())
	}
}

func TestDeployMissingSecretStopsBeforeCluster(t *testing.T) {
	cfg := testDeployConfig(t)
	cfg.Secrets.WeaviateAPIKey = ""
	clientset := readyClientset()

	p, err := NewDeploy(cfg, DeployOptions{
		Runner: &runner.Recorder{},
		NewClientset: func(context.Context) (kubernetes.Interface, error) {
			return clientset, nil
		},
		PollInterval: time.Millisecond,
		PollAttempts: 3,
	})
	if err != nil {
		t.Fatalf("NewDeploy failed: %v", err)
	}

	_, err = p.Execute(context.Background())
	if err == nil {
		t.Fatal("expected missing secret failure")
	}
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodeConfig {
		t.Errorf("error code = %s, want %s", code, apperrors.ErrCodeConfig)
	}
	if len(clientset.Actions()) != 0 {
		t.Errorf("cluster touched after secret validation failure: %v", clientset.Actions())
	}
}
