// Package httpserver contains the REST handlers and middleware of the API
// process. Handlers translate HTTP to usecase calls and domain errors to the
// JSON error envelope; they hold no business logic.
package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/okedigitalmedia/voucherd/internal/domain"
	"github.com/okedigitalmedia/voucherd/internal/observability"
)

// errorEnvelope is the uniform error body. Context is attached only when the
// process runs in debug mode.
type errorEnvelope struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error"`
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	TraceID   string         `json:"trace_id"`
	Datetime  string         `json:"datetime"`
	Context   map[string]any `json:"context,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrExternalServiceTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrDatabaseUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	env := errorEnvelope{
		Error:     domain.ErrorName(err),
		ErrorCode: domain.ErrorCode(err),
		Message:   err.Error(),
		TraceID:   observability.TraceIDFromContext(r.Context()),
		Datetime:  time.Now().UTC().Format(time.RFC3339),
	}
	if s.Cfg.Debug {
		env.Context = domain.ErrorContext(err)
	}
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed",
			slog.String("error_code", env.ErrorCode), slog.String("error", err.Error()))
	}
	writeJSON(w, status, env)
}

// decodeBody parses a JSON request body into dst. An empty body is allowed
// when allowEmpty is set so action endpoints can be called bare.
func decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return domain.ValidationError("invalid_request_body", "malformed JSON body: %v", err)
}
