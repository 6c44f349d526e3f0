package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRouteModule(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/providers/:id", "Providers"},
		{"/api/system-config/:key", "System Config"},
		{"/api/prompt-templates", "Prompt Templates"},
		{"/api/users", "Users"},
		{"", "Unknown"},
	}

	for _, tt := range tests {
		if got := routeModule(tt.path); got != tt.want {
			t.Errorf("routeModule(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestSnapshotBody_RedactsSecrets(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	payload := `{"name":"anthropic","api_key":"sk-live-123","model":"claude-sonnet"}`
	c.Request = httptest.NewRequest(http.MethodPost, "/api/providers", strings.NewReader(payload))

	got := snapshotBody(c)
	if strings.Contains(got, "sk-live-123") {
		t.Fatalf("snippet leaked secret: %s", got)
	}
	if !strings.Contains(got, `"api_key":"***"`) {
		t.Errorf("snippet missing mask: %s", got)
	}
	if !strings.Contains(got, `"name":"anthropic"`) {
		t.Errorf("snippet lost non-secret fields: %s", got)
	}

	// The handler downstream must still be able to read the original body.
	replay, err := io.ReadAll(c.Request.Body)
	if err != nil {
		t.Fatalf("re-read body: %v", err)
	}
	if string(replay) != payload {
		t.Errorf("request body not restored: %s", replay)
	}
}

func TestSnapshotBody_CapsLongBodies(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	long := `{"findings":"` + strings.Repeat("x", 3*auditBodyLimit) + `"}`
	c.Request = httptest.NewRequest(http.MethodPost, "/api/providers", strings.NewReader(long))

	got := snapshotBody(c)
	if !strings.HasSuffix(got, "...[truncated]") {
		t.Errorf("long body not truncated, len=%d", len(got))
	}
	if len(got) > auditBodyLimit+len("...[truncated]") {
		t.Errorf("snippet too long: %d", len(got))
	}
}
