package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/okedigitalmedia/voucherd/internal/config"
	"github.com/okedigitalmedia/voucherd/internal/domain"
	"github.com/okedigitalmedia/voucherd/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg           config.Config
	Servers       usecase.ServerService
	Accounts      usecase.AccountService
	Bindings      usecase.BindingService
	Transactions  usecase.TransactionService
	Orchestration usecase.OrchestrationService
	Tools         usecase.ToolsService
	DBCheck       func(ctx context.Context) error
	RedisCheck    func(ctx context.Context) error
}

// NewServer constructs a Server with all services wired.
func NewServer(cfg config.Config, servers usecase.ServerService, accounts usecase.AccountService,
	bindings usecase.BindingService, transactions usecase.TransactionService,
	orchestration usecase.OrchestrationService, tools usecase.ToolsService,
	dbCheck, redisCheck func(ctx context.Context) error) *Server {
	return &Server{
		Cfg:           cfg,
		Servers:       servers,
		Accounts:      accounts,
		Bindings:      bindings,
		Transactions:  transactions,
		Orchestration: orchestration,
		Tools:         tools,
		DBCheck:       dbCheck,
		RedisCheck:    redisCheck,
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// validateBody runs struct tag validation, mapping failures onto the error
// envelope.
func validateBody(v any) error {
	if err := getValidator().Struct(v); err != nil {
		return domain.ValidationError("invalid_request_body", "request validation failed: %v", err)
	}
	return nil
}

// idParam parses the {id} route parameter.
func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ValidationError("invalid_id", "invalid id %q", raw)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter, returning def when
// absent or malformed.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// queryBoolPtr parses an optional boolean query parameter.
func queryBoolPtr(r *http.Request, key string) *bool {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

// queryInt64Ptr parses an optional int64 query parameter.
func queryInt64Ptr(r *http.Request, key string) *int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
