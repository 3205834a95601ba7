package domain

import (
	"context"
	"encoding/json"
	"strings"
)

// The IDV provider emits loosely-typed JSON with several "success"
// conventions. The adapter parses every response into one of the small typed
// records below at its boundary; raw payloads are kept only for snapshots.

// LoginOTPResult is the shape shared by /otp and /verifyOtp.
type LoginOTPResult struct {
	Status     string
	DataStatus string
	TokenID    string
	Message    string
	Raw        json.RawMessage
}

// OK reports provider success for the login OTP endpoints: status "0", data
// status "true" (case-insensitive), and a token id when one is required.
func (r LoginOTPResult) OK(requireToken bool) bool {
	if r.Status != "0" || !strings.EqualFold(r.DataStatus, "true") {
		return false
	}
	if requireToken && r.TokenID == "" {
		return false
	}
	return true
}

// ErrorMessage returns a readable provider message for failed logins.
func (r LoginOTPResult) ErrorMessage() string {
	if strings.TrimSpace(r.Message) != "" {
		return r.Message
	}
	return "provider returned an invalid login response"
}

// ProductListResult is the parsed /list_idv response.
type ProductListResult struct {
	Status      string
	StatusMsg   string
	ProductType string
	DeviceID    string
	Products    []Product
	Raw         json.RawMessage
}

// Product is one entry of the provider product list.
type Product struct {
	ID         string
	Name       string
	LowerPrice *int64
}

// Reseller reports whether the list response flags the account as reseller.
func (r ProductListResult) Reseller() bool {
	return r.Status == "200" || r.StatusMsg == "success" || r.ProductType == "reseller"
}

// OrderResult is the parsed /trx_idv response (res.data fields).
type OrderResult struct {
	TrxID     string
	TID       string
	IsSuccess *int
	Raw       json.RawMessage
}

// StatusResult is the parsed /status_idv response (res.data fields).
type StatusResult struct {
	IsSuccess *int
	Voucher   string
	Raw       json.RawMessage
}

// BalanceResult is the parsed /balance_pulsa response. Balance is nil when
// the provider value is absent or non-numeric; callers treat nil as unknown.
type BalanceResult struct {
	Balance *int64
	Raw     json.RawMessage
}

// TokenResult wraps the bare-text /token_location3 body.
type TokenResult struct {
	Token string
}

// OTPTrxResult is the parsed /otp_idv response (res fields).
type OTPTrxResult struct {
	Status    string
	StatusMsg string
	Message   string
	Raw       json.RawMessage
}

// OK reports whether the transaction OTP was accepted.
func (r OTPTrxResult) OK() bool {
	return r.Status == "200" || r.StatusMsg == "success"
}

// Provider sequences IDV calls for one server instance. All operations honor
// context cancellation and per-server timeouts.
type Provider interface {
	RequestOTP(ctx context.Context, username, pin string) (LoginOTPResult, error)
	VerifyOTP(ctx context.Context, username, otp string) (LoginOTPResult, error)
	Logout(ctx context.Context, username string) (json.RawMessage, error)
	BalancePulsa(ctx context.Context, username string) (BalanceResult, error)
	TokenLocation3(ctx context.Context, username string) (TokenResult, error)
	ListProduk(ctx context.Context, username string) (ProductListResult, error)
	TrxVoucher(ctx context.Context, username, productID, email string, limitHarga int64) (OrderResult, error)
	OTPTrx(ctx context.Context, username, otp string) (OTPTrxResult, error)
	StatusTrx(ctx context.Context, username, trxID string) (StatusResult, error)
}

// ProviderFactory builds a Provider scoped to one server instance's base URL
// and connection tuning.
type ProviderFactory interface {
	ForServer(s ServerInstance) Provider
}
