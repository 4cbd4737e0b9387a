package bundle

import (
	"context"
	"testing"

	apperrors "github.com/chatdocs/shipit/pkg/errors"
)

func TestPushEmptyTag(t *testing.T) {
	_, err := Push(context.Background(), PushOptions{
		SourceDir:  t.TempDir(),
		Repository: "localhost:5000/chatdocs/docchat-manifests",
	})
	if err == nil {
		t.Fatal("expected error for empty tag")
	}
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodePublish {
		t.Errorf("error code = %s, want %s", code, apperrors.ErrCodePublish)
	}
}

func TestPushInvalidReference(t *testing.T) {
	_, err := Push(context.Background(), PushOptions{
		SourceDir:  t.TempDir(),
		Repository: "registry with spaces/repo",
		Tag:        "20250314-150926",
	})
	if err == nil {
		t.Fatal("expected error for invalid reference")
	}
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodePublish {
		t.Errorf("error code = %s, want %s", code, apperrors.ErrCodePublish)
	}
}

func TestNewAuthClientConfigures(t *testing.T) {
	client := newAuthClient(false, true)
	if client.Cache == nil {
		t.Error("auth cache not configured")
	}
	if client.Credential == nil {
		t.Error("credential function not configured")
	}
}
