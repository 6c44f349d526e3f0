package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func record(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/probe", nil)
	handler(c)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp
}

func TestSuccessEnvelopes(t *testing.T) {
	tests := []struct {
		name    string
		send    gin.HandlerFunc
		status  int
		message string
	}{
		{"success", func(c *gin.Context) { Success(c, gin.H{"country": "NL"}) }, http.StatusOK, "ok"},
		{"created", func(c *gin.Context) { Created(c, gin.H{"id": "qn-1"}) }, http.StatusCreated, "created"},
		{"accepted", func(c *gin.Context) { Accepted(c, gin.H{"task_id": "t-9"}) }, http.StatusAccepted, "accepted"},
	}

	for _, tt := range tests {
		w := record(tt.send)
		if w.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, w.Code, tt.status)
		}
		resp := decode(t, w)
		if resp.Code != 0 || resp.Message != tt.message {
			t.Errorf("%s: envelope = %d/%q", tt.name, resp.Code, resp.Message)
		}
		if resp.Data == nil {
			t.Errorf("%s: data missing from envelope", tt.name)
		}
	}
}

func TestErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
		code   int
	}{
		{"bad request", NewBadRequest("bad report date"), http.StatusBadRequest, 400},
		{"unauthorized", NewUnauthorized("token expired"), http.StatusUnauthorized, 401},
		{"forbidden", NewForbidden("approver role required"), http.StatusForbidden, 403},
		{"not found", NewNotFound("questionnaire not found"), http.StatusNotFound, 404},
		{"conflict", NewConflict("questionnaire already exists"), http.StatusConflict, 409},
		{"server error", NewServerError("unexpected"), http.StatusInternalServerError, 500},
		{"bad gateway", NewBadGateway("question generation failed"), http.StatusBadGateway, 50201},
		{"unavailable", NewUnavailable("autosave write failed"), http.StatusServiceUnavailable, 50301},
	}

	for _, tt := range tests {
		w := record(func(c *gin.Context) { Error(c, tt.err) })
		if w.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, w.Code, tt.status)
		}
		resp := decode(t, w)
		if resp.Code != tt.code || resp.Message != tt.err.Message {
			t.Errorf("%s: envelope = %d/%q", tt.name, resp.Code, resp.Message)
		}
		if strings.Contains(w.Body.String(), `"data"`) {
			t.Errorf("%s: error envelope carries a data field", tt.name)
		}
	}
}

func TestConvenienceHelpers(t *testing.T) {
	tests := []struct {
		name   string
		send   gin.HandlerFunc
		status int
	}{
		{"bad request", func(c *gin.Context) { BadRequest(c, "country is required") }, http.StatusBadRequest},
		{"unauthorized", func(c *gin.Context) { Unauthorized(c, "missing bearer token") }, http.StatusUnauthorized},
		{"forbidden", func(c *gin.Context) { Forbidden(c, "admin access required") }, http.StatusForbidden},
		{"not found", func(c *gin.Context) { NotFound(c, "no such question") }, http.StatusNotFound},
		{"server error", func(c *gin.Context) { ServerError(c, "boom") }, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		w := record(tt.send)
		if w.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, w.Code, tt.status)
		}
		if resp := decode(t, w); resp.Code != tt.status {
			t.Errorf("%s: app code = %d, want %d", tt.name, resp.Code, tt.status)
		}
	}
}

func TestError_UnwrapsNestedAppError(t *testing.T) {
	wrapped := fmt.Errorf("loading questionnaire: %w", NewNotFound("questionnaire not found"))

	w := record(func(c *gin.Context) { Error(c, wrapped) })
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	resp := decode(t, w)
	if resp.Code != 404 || resp.Message != "questionnaire not found" {
		t.Errorf("envelope = %d/%q", resp.Code, resp.Message)
	}
}

func TestError_PlainErrorBecomes500(t *testing.T) {
	w := record(func(c *gin.Context) { Error(c, errors.New("disk full")) })
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode(t, w)
	if resp.Code != 500 || resp.Message != "disk full" {
		t.Errorf("envelope = %d/%q", resp.Code, resp.Message)
	}
}

func TestAppError_ErrorInterface(t *testing.T) {
	err := NewConflict("questionnaire already exists")
	if err.Error() != "questionnaire already exists" {
		t.Errorf("Error() = %q", err.Error())
	}
}
