package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestRespondError_WritesStatusAndBody(t *testing.T) {
	c, rec := newTestContext()
	c.Set("trace_id", "trace-1")
	c.Set("request_id", "req-1")

	RespondError(c, http.StatusBadRequest, "BAD_INPUT", errors.New("missing file"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	body := rec.Body.String()
	for _, want := range []string{"BAD_INPUT", "missing file", "trace-1", "req-1"} {
		if !strings.Contains(body, want) {
			t.Errorf("body %q missing %q", body, want)
		}
	}
}

func TestRespondError_NilErrUsesDefaultMessage(t *testing.T) {
	c, rec := newTestContext()
	RespondError(c, http.StatusInternalServerError, "UNKNOWN", nil)
	if !strings.Contains(rec.Body.String(), "unknown error") {
		t.Fatalf("expected default message in body, got %q", rec.Body.String())
	}
}

func TestRespondOK_WritesStatus200(t *testing.T) {
	c, rec := newTestContext()
	RespondOK(c, map[string]string{"status": "PROCESSING"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "PROCESSING") {
		t.Fatalf("expected payload in body, got %q", rec.Body.String())
	}
}
