// Package idv implements the IDV provider adapter: a scoped, retrying HTTP
// client plus endpoint wrappers that parse the provider's loosely-typed JSON
// into the domain's typed result records.
package idv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okedigitalmedia/voucherd/internal/config"
	"github.com/okedigitalmedia/voucherd/internal/domain"
	"github.com/okedigitalmedia/voucherd/internal/observability"
)

// Defaults hold process-wide fallbacks for per-server connection tuning.
type Defaults struct {
	Timeout        time.Duration
	Retries        int
	BackoffFactor  float64
	MaxConnections int
	MaxKeepalive   int
}

// Factory builds providers scoped to a server instance.
type Factory struct {
	defaults Defaults
}

// NewFactory creates a provider factory with defaults from configuration.
func NewFactory(cfg config.Config) *Factory {
	return &Factory{defaults: Defaults{
		Timeout:        cfg.HTTPXTimeout(),
		Retries:        cfg.HTTPXRetries,
		BackoffFactor:  cfg.HTTPXBackoffFactor,
		MaxConnections: cfg.HTTPXMaxConnections,
		MaxKeepalive:   cfg.HTTPXMaxKeepalive,
	}}
}

// ForServer returns a provider bound to the server's base URL and tuning.
// Zero-valued server settings fall back to the configured defaults.
func (f *Factory) ForServer(s domain.ServerInstance) domain.Provider {
	c := &Client{
		baseURL:       strings.TrimRight(s.BaseURL, "/"),
		timeout:       f.defaults.Timeout,
		retries:       f.defaults.Retries,
		backoffFactor: f.defaults.BackoffFactor,
		maxConns:      f.defaults.MaxConnections,
		maxKeepalive:  f.defaults.MaxKeepalive,
	}
	if s.TimeoutSeconds > 0 {
		c.timeout = time.Duration(s.TimeoutSeconds) * time.Second
	}
	if s.Retries > 0 {
		c.retries = s.Retries
	}
	if s.WaitBetweenRetries > 0 {
		c.backoffFactor = float64(s.WaitBetweenRetries)
	}
	if s.MaxRequestsQueued > 0 {
		c.maxConns = s.MaxRequestsQueued
	}
	return c
}

// Client is an IDV provider client for one server instance. The underlying
// HTTP client lifecycle is bounded per call: acquire, request, release.
type Client struct {
	baseURL       string
	timeout       time.Duration
	retries       int
	backoffFactor float64
	maxConns      int
	maxKeepalive  int
}

// RequestOTP requests a login OTP for the MSISDN.
func (c *Client) RequestOTP(ctx context.Context, username, pin string) (domain.LoginOTPResult, error) {
	if err := requireField("username", username); err != nil {
		return domain.LoginOTPResult{}, err
	}
	if err := requireField("pin", pin); err != nil {
		return domain.LoginOTPResult{}, err
	}
	raw, err := c.getJSON(ctx, "/otp", url.Values{"username": {username}, "pin": {pin}})
	if err != nil {
		return domain.LoginOTPResult{}, err
	}
	return parseLoginOTP(raw), nil
}

// VerifyOTP verifies a login OTP.
func (c *Client) VerifyOTP(ctx context.Context, username, otp string) (domain.LoginOTPResult, error) {
	if err := requireField("username", username); err != nil {
		return domain.LoginOTPResult{}, err
	}
	if err := requireField("otp", otp); err != nil {
		return domain.LoginOTPResult{}, err
	}
	raw, err := c.getJSON(ctx, "/verifyOtp", url.Values{"username": {username}, "otp": {otp}})
	if err != nil {
		return domain.LoginOTPResult{}, err
	}
	return parseLoginOTP(raw), nil
}

// Logout ends the provider session for the MSISDN.
func (c *Client) Logout(ctx context.Context, username string) (json.RawMessage, error) {
	if err := requireField("username", username); err != nil {
		return nil, err
	}
	return c.getJSON(ctx, "/logout", url.Values{"username": {username}})
}

// BalancePulsa fetches the current pulsa balance.
func (c *Client) BalancePulsa(ctx context.Context, username string) (domain.BalanceResult, error) {
	if err := requireField("username", username); err != nil {
		return domain.BalanceResult{}, err
	}
	raw, err := c.getJSON(ctx, "/balance_pulsa", url.Values{"username": {username}})
	if err != nil {
		return domain.BalanceResult{}, err
	}
	return parseBalance(raw), nil
}

// TokenLocation3 fetches the location token. The endpoint returns a bare text
// body which is wrapped as {token: <text>}.
func (c *Client) TokenLocation3(ctx context.Context, username string) (domain.TokenResult, error) {
	if err := requireField("username", username); err != nil {
		return domain.TokenResult{}, err
	}
	text, err := c.getText(ctx, "/token_location3", url.Values{"username": {username}})
	if err != nil {
		return domain.TokenResult{}, err
	}
	return domain.TokenResult{Token: text}, nil
}

// ListProduk fetches the product list, which doubles as the reseller check.
func (c *Client) ListProduk(ctx context.Context, username string) (domain.ProductListResult, error) {
	if err := requireField("username", username); err != nil {
		return domain.ProductListResult{}, err
	}
	raw, err := c.getJSON(ctx, "/list_idv", url.Values{"username": {username}})
	if err != nil {
		return domain.ProductListResult{}, err
	}
	return parseProductList(raw), nil
}

// TrxVoucher places a voucher purchase order.
func (c *Client) TrxVoucher(ctx context.Context, username, productID, email string, limitHarga int64) (domain.OrderResult, error) {
	if err := requireField("username", username); err != nil {
		return domain.OrderResult{}, err
	}
	if err := requireField("product_id", productID); err != nil {
		return domain.OrderResult{}, err
	}
	if err := requireField("email", email); err != nil {
		return domain.OrderResult{}, err
	}
	if limitHarga <= 0 {
		return domain.OrderResult{}, domain.ValidationError(
			"idv_invalid_limit_harga", "limit_harga must be greater than 0",
		).WithContext(map[string]any{"limit_harga": limitHarga})
	}
	raw, err := c.getJSON(ctx, "/trx_idv", url.Values{
		"username":    {username},
		"product_id":  {productID},
		"email":       {email},
		"limit_harga": {strconv.FormatInt(limitHarga, 10)},
	})
	if err != nil {
		return domain.OrderResult{}, err
	}
	return parseOrder(raw), nil
}

// OTPTrx submits the transaction OTP.
func (c *Client) OTPTrx(ctx context.Context, username, otp string) (domain.OTPTrxResult, error) {
	if err := requireField("username", username); err != nil {
		return domain.OTPTrxResult{}, err
	}
	if err := requireField("otp", otp); err != nil {
		return domain.OTPTrxResult{}, err
	}
	raw, err := c.getJSON(ctx, "/otp_idv", url.Values{"username": {username}, "otp": {otp}})
	if err != nil {
		return domain.OTPTrxResult{}, err
	}
	return parseOTPTrx(raw), nil
}

// StatusTrx polls the status of an order.
func (c *Client) StatusTrx(ctx context.Context, username, trxID string) (domain.StatusResult, error) {
	if err := requireField("username", username); err != nil {
		return domain.StatusResult{}, err
	}
	if err := requireField("trx_id", trxID); err != nil {
		return domain.StatusResult{}, err
	}
	raw, err := c.getJSON(ctx, "/status_idv", url.Values{"username": {username}, "trx_id": {trxID}})
	if err != nil {
		return domain.StatusResult{}, err
	}
	return parseStatus(raw), nil
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.ValidationError("idv_missing_field", "%s is required", name).
			WithContext(map[string]any{"field": name})
	}
	return nil
}

// httpClient builds a fresh client for one logical call; the transport is
// released afterwards so connections never outlive the call.
func (c *Client) httpClient() *http.Client {
	transport := &http.Transport{
		MaxConnsPerHost:     c.maxConns,
		MaxIdleConnsPerHost: c.maxKeepalive,
		IdleConnTimeout:     30 * time.Second,
	}
	return &http.Client{Timeout: c.timeout, Transport: transport}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	body, err := c.do(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		observability.ProviderRequestsTotal.WithLabelValues(endpoint, "invalid_response").Inc()
		return nil, domain.ExternalError(
			"external_service_invalid_response", "provider returned an invalid response",
		).WithContext(c.errCtx(ctx, endpoint))
	}
	observability.ProviderRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return json.RawMessage(body), nil
}

func (c *Client) getText(ctx context.Context, endpoint string, params url.Values) (string, error) {
	body, err := c.do(ctx, endpoint, params)
	if err != nil {
		return "", err
	}
	observability.ProviderRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return strings.TrimSpace(string(body)), nil
}

// do performs the GET with retry on server and network errors. Client errors
// (4xx) are never retried.
func (c *Client) do(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	lg := observability.LoggerFromContext(ctx).With(
		slog.String("service", "idv"),
		slog.String("url", c.baseURL+endpoint),
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
	)
	lg.Debug("provider request initiated")

	client := c.httpClient()
	defer client.CloseIdleConnections()

	start := time.Now()
	var body []byte
	var status int

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		status = resp.StatusCode
		body, err = io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("provider returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("provider returned %d", resp.StatusCode))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(c.backoffFactor * float64(time.Second))
	bo.Multiplier = 2
	retries := c.retries
	if retries < 0 {
		retries = 0
	}
	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx))

	observability.ProviderRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, c.mapFailure(ctx, endpoint, status, err, lg)
	}

	lg.Debug("provider request succeeded", slog.Int("status_code", status))
	return body, nil
}

func (c *Client) mapFailure(ctx context.Context, endpoint string, status int, err error, lg *slog.Logger) error {
	ectx := c.errCtx(ctx, endpoint)
	ectx["error"] = err.Error()
	if status > 0 {
		ectx["status_code"] = status
	}

	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())
	if timedOut {
		observability.ProviderRequestsTotal.WithLabelValues(endpoint, "timeout").Inc()
		lg.Warn("provider request timed out")
		return domain.ExternalTimeoutError(
			"external_service_timeout", "provider did not respond in time",
		).WithContext(ectx).WithCause(err)
	}

	switch {
	case status >= 400 && status < 500:
		observability.ProviderRequestsTotal.WithLabelValues(endpoint, "client_error").Inc()
		lg.Warn("provider client error", slog.Int("status_code", status))
		return domain.ExternalError(
			"external_service_http_error", "provider returned an error response",
		).WithContext(ectx).WithCause(err)
	case status >= 500:
		observability.ProviderRequestsTotal.WithLabelValues(endpoint, "server_error").Inc()
		lg.Error("provider server error", slog.Int("status_code", status))
		return domain.ExternalError(
			"external_service_http_error", "provider returned an error response",
		).WithContext(ectx).WithCause(err)
	default:
		observability.ProviderRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		lg.Error("provider network error", slog.String("error", err.Error()))
		return domain.ExternalError(
			"external_service_network_error", "could not reach the provider",
		).WithContext(ectx).WithCause(err)
	}
}

func (c *Client) errCtx(ctx context.Context, endpoint string) map[string]any {
	return map[string]any{
		"method":   http.MethodGet,
		"url":      c.baseURL + endpoint,
		"service":  "idv",
		"trace_id": observability.TraceIDFromContext(ctx),
	}
}
