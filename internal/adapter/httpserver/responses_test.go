package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okedigitalmedia/voucherd/internal/config"
	"github.com/okedigitalmedia/voucherd/internal/domain"
	"github.com/okedigitalmedia/voucherd/internal/observability"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NotFoundError("x", "x"), http.StatusNotFound},
		{domain.ValidationError("x", "x"), http.StatusBadRequest},
		{domain.ExternalError("x", "x"), http.StatusBadGateway},
		{domain.ExternalTimeoutError("x", "x"), http.StatusGatewayTimeout},
		{domain.E(domain.ErrDatabaseUnavailable, "x", "x"), http.StatusServiceUnavailable},
		{domain.E(domain.ErrDatabaseInternal, "x", "x"), http.StatusInternalServerError},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err))
	}
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteError_Envelope(t *testing.T) {
	s := &Server{Cfg: config.Config{}}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/servers/7", nil)
	r = r.WithContext(observability.ContextWithTraceID(r.Context(), "trace-123"))

	s.writeError(w, r, domain.NotFoundError("server_not_found", "server 7 not found"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "NotFoundError", body["error"])
	assert.Equal(t, "server_not_found", body["error_code"])
	assert.Equal(t, "server 7 not found", body["message"])
	assert.Equal(t, "trace-123", body["trace_id"])
	_, err := time.Parse(time.RFC3339, body["datetime"].(string))
	assert.NoError(t, err)
	assert.NotContains(t, body, "context")
}

func TestWriteError_DebugIncludesContext(t *testing.T) {
	errWithCtx := domain.ValidationError("binding_invalid_step_transition", "bad step").
		WithContext(map[string]any{"current_step": "bound"})

	s := &Server{Cfg: config.Config{Debug: true}}
	w := httptest.NewRecorder()
	s.writeError(w, httptest.NewRequest(http.MethodPost, "/v1/bindings/1/verify-login", nil), errWithCtx)

	body := decodeEnvelope(t, w)
	require.Contains(t, body, "context")
	ctx := body["context"].(map[string]any)
	assert.Equal(t, "bound", ctx["current_step"])

	// same error without debug hides the context
	s = &Server{Cfg: config.Config{}}
	w = httptest.NewRecorder()
	s.writeError(w, httptest.NewRequest(http.MethodPost, "/", nil), errWithCtx)
	assert.NotContains(t, decodeEnvelope(t, w), "context")
}

func TestDecodeBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	var p payload
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	err := decodeBody(r, &p, false)
	require.Error(t, err)
	assert.Equal(t, "invalid_request_body", domain.ErrorCode(err))

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	assert.NoError(t, decodeBody(r, &p, true))
}
