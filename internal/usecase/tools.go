package usecase

import (
	"context"
	"errors"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

// ToolsService exposes ad-hoc provider passthroughs for operators. Nothing is
// persisted; results go straight back to the caller.
type ToolsService struct {
	Servers   domain.ServerRepo
	Accounts  domain.AccountRepo
	Bindings  domain.BindingRepo
	Providers domain.ProviderFactory
}

// NewToolsService constructs a ToolsService.
func NewToolsService(servers domain.ServerRepo, accounts domain.AccountRepo,
	bindings domain.BindingRepo, providers domain.ProviderFactory) ToolsService {
	return ToolsService{Servers: servers, Accounts: accounts, Bindings: bindings, Providers: providers}
}

// resolveProvider picks the server to route through: an explicit server id
// wins, then the MSISDN's active binding, then the first active server.
func (s ToolsService) resolveProvider(ctx context.Context, serverID *int64, msisdn string) (domain.Provider, error) {
	if serverID != nil {
		srv, err := s.Servers.Get(ctx, *serverID)
		if err != nil {
			return nil, err
		}
		return s.Providers.ForServer(srv), nil
	}

	if msisdn != "" {
		accounts, err := s.Accounts.ListByMSISDN(ctx, msisdn)
		if err != nil {
			return nil, err
		}
		for _, acc := range accounts {
			b, err := s.Bindings.GetActiveByAccount(ctx, acc.ID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return nil, err
			}
			srv, err := s.Servers.Get(ctx, b.ServerID)
			if err != nil {
				return nil, err
			}
			return s.Providers.ForServer(srv), nil
		}
	}

	active := true
	servers, err := s.Servers.List(ctx, domain.ServerFilter{IsActive: &active, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, domain.NotFoundError("server_not_found", "no active server available")
	}
	return s.Providers.ForServer(servers[0]), nil
}

// RequestOTP issues a raw login OTP request.
func (s ToolsService) RequestOTP(ctx context.Context, serverID *int64, msisdn, pin string) (domain.LoginOTPResult, error) {
	p, err := s.resolveProvider(ctx, serverID, msisdn)
	if err != nil {
		return domain.LoginOTPResult{}, err
	}
	return p.RequestOTP(ctx, msisdn, pin)
}

// VerifyOTP issues a raw login OTP verification.
func (s ToolsService) VerifyOTP(ctx context.Context, serverID *int64, msisdn, otp string) (domain.LoginOTPResult, error) {
	p, err := s.resolveProvider(ctx, serverID, msisdn)
	if err != nil {
		return domain.LoginOTPResult{}, err
	}
	return p.VerifyOTP(ctx, msisdn, otp)
}

// Balance fetches the raw balance.
func (s ToolsService) Balance(ctx context.Context, serverID *int64, msisdn string) (domain.BalanceResult, error) {
	p, err := s.resolveProvider(ctx, serverID, msisdn)
	if err != nil {
		return domain.BalanceResult{}, err
	}
	return p.BalancePulsa(ctx, msisdn)
}

// Products fetches the raw product list.
func (s ToolsService) Products(ctx context.Context, serverID *int64, msisdn string) (domain.ProductListResult, error) {
	p, err := s.resolveProvider(ctx, serverID, msisdn)
	if err != nil {
		return domain.ProductListResult{}, err
	}
	return p.ListProduk(ctx, msisdn)
}

// Token fetches the raw location token.
func (s ToolsService) Token(ctx context.Context, serverID *int64, msisdn string) (domain.TokenResult, error) {
	p, err := s.resolveProvider(ctx, serverID, msisdn)
	if err != nil {
		return domain.TokenResult{}, err
	}
	return p.TokenLocation3(ctx, msisdn)
}

// Trx places a raw voucher order.
func (s ToolsService) Trx(ctx context.Context, serverID *int64, msisdn, productID, email string, limitHarga int64) (domain.OrderResult, error) {
	p, err := s.resolveProvider(ctx, serverID, msisdn)
	if err != nil {
		return domain.OrderResult{}, err
	}
	return p.TrxVoucher(ctx, msisdn, productID, email, limitHarga)
}

// TrxOTP submits a raw transaction OTP.
func (s ToolsService) TrxOTP(ctx context.Context, serverID *int64, msisdn, otp string) (domain.OTPTrxResult, error) {
	p, err := s.resolveProvider(ctx, serverID, msisdn)
	if err != nil {
		return domain.OTPTrxResult{}, err
	}
	return p.OTPTrx(ctx, msisdn, otp)
}

// TrxStatus polls a raw order status.
func (s ToolsService) TrxStatus(ctx context.Context, serverID *int64, msisdn, trxID string) (domain.StatusResult, error) {
	p, err := s.resolveProvider(ctx, serverID, msisdn)
	if err != nil {
		return domain.StatusResult{}, err
	}
	return p.StatusTrx(ctx, msisdn, trxID)
}
