// Package app wires configuration, adapters, and the HTTP surface together.
package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okedigitalmedia/voucherd/internal/adapter/httpserver"
	"github.com/okedigitalmedia/voucherd/internal/config"
	"github.com/okedigitalmedia/voucherd/internal/observability"
)

// ParseOrigins splits a comma-separated origin list, trimming spaces. An
// empty input means all origins.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, logger *slog.Logger, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.TraceID(logger))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Trace-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))

		v1.Route("/servers", func(g chi.Router) {
			g.Post("/", srv.CreateServerHandler())
			g.Get("/", srv.ListServersHandler())
			g.Post("/bulk", srv.BulkServersHandler(false))
			g.Post("/bulk/dry-run", srv.BulkServersHandler(true))
			g.Get("/{id}", srv.GetServerHandler())
			g.Patch("/{id}", srv.UpdateServerHandler())
			g.Patch("/{id}/status", srv.ServerStatusHandler())
			g.Delete("/{id}", srv.DeleteServerHandler())
		})

		v1.Route("/accounts", func(g chi.Router) {
			g.Post("/", srv.CreateAccountHandler())
			g.Get("/", srv.ListAccountsHandler())
			g.Delete("/", srv.DeleteAccountByKeyHandler())
			g.Post("/bulk", srv.BulkAccountsHandler(false))
			g.Post("/bulk/dry-run", srv.BulkAccountsHandler(true))
			g.Get("/{id}", srv.GetAccountHandler())
			g.Patch("/{id}", srv.UpdateAccountHandler())
			g.Delete("/{id}", srv.DeleteAccountHandler())
		})

		v1.Route("/bindings", func(g chi.Router) {
			g.Post("/", srv.CreateBindingHandler())
			g.Get("/", srv.ListBindingsHandler())
			g.Get("/view", srv.ListBindingViewHandler())
			g.Post("/bulk", srv.BulkBindingsHandler(false))
			g.Post("/bulk/dry-run", srv.BulkBindingsHandler(true))
			g.Post("/products/preview", srv.ProductsPreviewHandler())
			g.Get("/{id}", srv.GetBindingHandler())
			g.Patch("/{id}", srv.UpdateBindingHandler())
			g.Delete("/{id}", srv.DeleteBindingHandler())
			g.Post("/{id}/request-login", srv.RequestLoginHandler())
			g.Post("/{id}/verify-login", srv.VerifyLoginHandler())
			g.Post("/{id}/check-balance", srv.CheckBalanceHandler())
			g.Post("/{id}/refresh-token-location", srv.RefreshTokenLocationHandler())
			g.Post("/{id}/verify-reseller", srv.VerifyResellerHandler())
			g.Post("/{id}/logout", srv.LogoutHandler())
		})

		v1.Route("/transactions", func(g chi.Router) {
			g.Post("/", srv.CreateTransactionHandler())
			g.Get("/", srv.ListTransactionsHandler())
			g.Post("/start", srv.StartTransactionHandler())
			g.Get("/{id}", srv.GetTransactionHandler())
			g.Patch("/{id}/status", srv.TransactionStatusHandler())
			g.Delete("/{id}", srv.DeleteTransactionHandler())
			g.Post("/{id}/otp", srv.SubmitOTPHandler())
			g.Post("/{id}/continue", srv.ContinueTransactionHandler())
			g.Post("/{id}/check", srv.CheckTransactionHandler())
			g.Post("/{id}/pause", srv.PauseTransactionHandler())
			g.Post("/{id}/resume", srv.ResumeTransactionHandler())
			g.Post("/{id}/stop", srv.StopTransactionHandler())
			g.Get("/{id}/snapshot", srv.GetSnapshotHandler())
			g.Patch("/{id}/snapshot", srv.UpdateSnapshotHandler())
		})

		v1.Route("/orchestration", func(g chi.Router) {
			g.Post("/start", srv.StartWorkersHandler())
			g.Post("/pause", srv.PauseWorkersHandler())
			g.Post("/resume", srv.ResumeWorkersHandler())
			g.Post("/stop", srv.StopWorkersHandler())
			g.Post("/status", srv.WorkersStatusHandler())
			g.Get("/monitor", srv.WorkersMonitorHandler())
		})

		v1.Route("/tools", func(g chi.Router) {
			g.Post("/otp", srv.ToolsRequestOTPHandler())
			g.Post("/verify-otp", srv.ToolsVerifyOTPHandler())
			g.Post("/balance", srv.ToolsBalanceHandler())
			g.Post("/products", srv.ToolsProductsHandler())
			g.Post("/token", srv.ToolsTokenHandler())
			g.Post("/trx", srv.ToolsTrxHandler())
			g.Post("/trx-otp", srv.ToolsTrxOTPHandler())
			g.Post("/trx-status", srv.ToolsTrxStatusHandler())
		})
	})

	r.Get("/health", srv.HealthzHandler())
	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
