package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/okedigitalmedia/voucherd/internal/domain"
	"github.com/okedigitalmedia/voucherd/internal/domain/workflow"
	"github.com/okedigitalmedia/voucherd/internal/observability"
)

// BindingService drives the binding lifecycle: create, OTP login, token
// retrieval, reseller verification, and teardown.
type BindingService struct {
	Bindings  domain.BindingRepo
	Accounts  domain.AccountRepo
	Servers   domain.ServerRepo
	Providers domain.ProviderFactory
}

// NewBindingService constructs a BindingService.
func NewBindingService(bindings domain.BindingRepo, accounts domain.AccountRepo,
	servers domain.ServerRepo, providers domain.ProviderFactory) BindingService {
	return BindingService{Bindings: bindings, Accounts: accounts, Servers: servers, Providers: providers}
}

// load fetches the binding together with its account and server.
func (s BindingService) load(ctx context.Context, bindingID int64) (domain.Binding, domain.Account, domain.ServerInstance, error) {
	b, err := s.Bindings.Get(ctx, bindingID)
	if err != nil {
		return domain.Binding{}, domain.Account{}, domain.ServerInstance{}, err
	}
	a, err := s.Accounts.Get(ctx, b.AccountID)
	if err != nil {
		return domain.Binding{}, domain.Account{}, domain.ServerInstance{}, err
	}
	srv, err := s.Servers.Get(ctx, b.ServerID)
	if err != nil {
		return domain.Binding{}, domain.Account{}, domain.ServerInstance{}, err
	}
	return b, a, srv, nil
}

// Create binds an account to a server. Both sides must be free of active
// bindings; the account is activated and its usage counters stamped.
func (s BindingService) Create(ctx context.Context, serverID, accountID int64, balanceStart *int64) (domain.Binding, error) {
	srv, err := s.Servers.Get(ctx, serverID)
	if err != nil {
		return domain.Binding{}, err
	}
	acc, err := s.Accounts.Get(ctx, accountID)
	if err != nil {
		return domain.Binding{}, err
	}
	if _, err := s.Bindings.GetActiveByServer(ctx, serverID); err == nil {
		return domain.Binding{}, domain.ValidationError(
			"server_already_bound", "server %d already has an active binding", serverID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Binding{}, err
	}
	if _, err := s.Bindings.GetActiveByAccount(ctx, accountID); err == nil {
		return domain.Binding{}, domain.ValidationError(
			"account_already_bound", "account %d already has an active binding", accountID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Binding{}, err
	}

	b, err := s.Bindings.Create(ctx, domain.Binding{
		ServerID:     srv.ID,
		AccountID:    acc.ID,
		BatchID:      acc.BatchID,
		Step:         domain.StepBound,
		IsReseller:   acc.IsReseller,
		BalanceStart: balanceStart,
		DeviceID:     srv.DeviceID,
		BoundAt:      time.Now().UTC(),
	})
	if err != nil {
		return domain.Binding{}, err
	}

	status := domain.AccountActive
	used := acc.UsedCount + 1
	now := time.Now().UTC()
	if _, err := s.Accounts.Update(ctx, acc.ID, domain.AccountPatch{
		Status:     &status,
		UsedCount:  &used,
		LastUsedAt: &now,
	}); err != nil {
		return domain.Binding{}, err
	}
	return b, nil
}

// Get loads a binding by id.
func (s BindingService) Get(ctx context.Context, id int64) (domain.Binding, error) {
	return s.Bindings.Get(ctx, id)
}

// Delete removes a binding by id.
func (s BindingService) Delete(ctx context.Context, id int64) error {
	return s.Bindings.Delete(ctx, id)
}

// List returns bindings matching the filter.
func (s BindingService) List(ctx context.Context, f domain.BindingFilter) ([]domain.Binding, error) {
	return s.Bindings.List(ctx, f)
}

// ListView returns bindings joined with server and account display fields.
func (s BindingService) ListView(ctx context.Context, f domain.BindingFilter) ([]domain.BindingView, error) {
	return s.Bindings.ListView(ctx, f)
}

// UpdateBindingInput is the PATCH allowlist for bindings. Token refresh
// timestamps are owned by the login workflow and not writable here.
type UpdateBindingInput struct {
	IsReseller       *bool
	BalanceStart     **int64
	BalanceLast      **int64
	LastErrorCode    *string
	LastErrorMessage *string
	DeviceID         *string
}

// Update applies an operator-facing partial update on an active binding.
func (s BindingService) Update(ctx context.Context, id int64, in UpdateBindingInput) (domain.Binding, error) {
	b, err := s.Bindings.Get(ctx, id)
	if err != nil {
		return domain.Binding{}, err
	}
	if !b.Active() {
		return domain.Binding{}, domain.ValidationError(
			"binding_logged_out", "binding %d is logged out and immutable", id)
	}
	return s.Bindings.Update(ctx, id, domain.BindingPatch{
		IsReseller:       in.IsReseller,
		BalanceStart:     in.BalanceStart,
		BalanceLast:      in.BalanceLast,
		LastErrorCode:    in.LastErrorCode,
		LastErrorMessage: in.LastErrorMessage,
		DeviceID:         in.DeviceID,
	})
}

// RequestLogin requests a login OTP for the bound MSISDN. The supplied PIN
// wins over the account default.
func (s BindingService) RequestLogin(ctx context.Context, bindingID int64, pin string) (domain.Binding, error) {
	b, acc, srv, err := s.load(ctx, bindingID)
	if err != nil {
		return domain.Binding{}, err
	}
	if err := workflow.EnsureBindingStep(workflow.ActionRequestLogin, b.Step); err != nil {
		return domain.Binding{}, err
	}
	if pin == "" {
		pin = acc.PIN
	}
	if pin == "" {
		return domain.Binding{}, domain.ValidationError(
			"account_pin_missing", "no pin supplied and account %d has no default pin", acc.ID)
	}

	res, err := s.Providers.ForServer(srv).RequestOTP(ctx, acc.MSISDN, pin)
	if err != nil {
		return domain.Binding{}, s.recordError(ctx, b.ID, err)
	}
	if !res.OK(false) {
		msg := res.ErrorMessage()
		return domain.Binding{}, s.recordError(ctx, b.ID,
			domain.ExternalError("binding_request_login_failed", "login OTP request rejected: %s", msg))
	}

	step := domain.StepOTPRequested
	return s.Bindings.Update(ctx, b.ID, domain.BindingPatch{Step: &step})
}

// VerifyLoginAndReseller verifies the login OTP and then completes the login:
// captures the login token, fetches balance, location token, and the product
// list, derives reseller status and device id, and mirrors the results onto
// the account.
func (s BindingService) VerifyLoginAndReseller(ctx context.Context, bindingID int64, otp string) (domain.Binding, error) {
	b, acc, srv, err := s.load(ctx, bindingID)
	if err != nil {
		return domain.Binding{}, err
	}
	if err := workflow.EnsureBindingStep(workflow.ActionVerifyLogin, b.Step); err != nil {
		return domain.Binding{}, err
	}
	if strings.TrimSpace(otp) == "" {
		return domain.Binding{}, domain.ValidationError("binding_otp_required", "otp is required")
	}
	provider := s.Providers.ForServer(srv)

	step := domain.StepOTPVerification
	if b, err = s.Bindings.Update(ctx, b.ID, domain.BindingPatch{Step: &step}); err != nil {
		return domain.Binding{}, err
	}

	verify, err := provider.VerifyOTP(ctx, acc.MSISDN, otp)
	if err != nil {
		return domain.Binding{}, s.recordError(ctx, b.ID, err)
	}
	if !verify.OK(true) {
		return domain.Binding{}, s.recordError(ctx, b.ID,
			domain.ExternalError("binding_verify_login_failed", "login OTP verification rejected: %s", verify.ErrorMessage()))
	}

	step = domain.StepOTPVerified
	if b, err = s.Bindings.Update(ctx, b.ID, domain.BindingPatch{Step: &step}); err != nil {
		return domain.Binding{}, err
	}
	step = domain.StepTokenLoginFetched
	tokenLogin := verify.TokenID
	if b, err = s.Bindings.Update(ctx, b.ID, domain.BindingPatch{Step: &step, TokenLogin: &tokenLogin}); err != nil {
		return domain.Binding{}, err
	}

	balance, err := provider.BalancePulsa(ctx, acc.MSISDN)
	if err != nil {
		return domain.Binding{}, s.recordError(ctx, b.ID, err)
	}
	token, err := provider.TokenLocation3(ctx, acc.MSISDN)
	if err != nil {
		return domain.Binding{}, s.recordError(ctx, b.ID, err)
	}
	products, err := provider.ListProduk(ctx, acc.MSISDN)
	if err != nil {
		return domain.Binding{}, s.recordError(ctx, b.ID, err)
	}

	isReseller := products.Reseller()
	deviceID := products.DeviceID
	refreshedAt := time.Now().UTC()
	patch := domain.BindingPatch{
		IsReseller:               &isReseller,
		BalanceLast:              &balance.Balance,
		TokenLocation:            &token.Token,
		TokenLocationRefreshedAt: &refreshedAt,
	}
	if b.BalanceStart == nil {
		patch.BalanceStart = &balance.Balance
	}
	if deviceID != "" {
		patch.DeviceID = &deviceID
	}
	if b, err = s.Bindings.Update(ctx, b.ID, patch); err != nil {
		return domain.Binding{}, err
	}

	accPatch := domain.AccountPatch{
		IsReseller:  &isReseller,
		BalanceLast: &balance.Balance,
	}
	if deviceID != "" {
		accPatch.LastDeviceID = &deviceID
	}
	if _, err := s.Accounts.Update(ctx, acc.ID, accPatch); err != nil {
		return domain.Binding{}, err
	}
	return b, nil
}

// CheckBalance re-fetches the pulsa balance and persists it on the binding
// and the account.
func (s BindingService) CheckBalance(ctx context.Context, bindingID int64) (domain.Binding, error) {
	b, acc, srv, err := s.load(ctx, bindingID)
	if err != nil {
		return domain.Binding{}, err
	}
	if err := workflow.EnsureBindingStep(workflow.ActionCheckBalance, b.Step); err != nil {
		return domain.Binding{}, err
	}
	balance, err := s.Providers.ForServer(srv).BalancePulsa(ctx, acc.MSISDN)
	if err != nil {
		return domain.Binding{}, s.recordError(ctx, b.ID, err)
	}
	if b, err = s.Bindings.Update(ctx, b.ID, domain.BindingPatch{BalanceLast: &balance.Balance}); err != nil {
		return domain.Binding{}, err
	}
	if _, err := s.Accounts.Update(ctx, acc.ID, domain.AccountPatch{BalanceLast: &balance.Balance}); err != nil {
		return domain.Binding{}, err
	}
	return b, nil
}

// RefreshTokenLocation re-fetches the location token.
func (s BindingService) RefreshTokenLocation(ctx context.Context, bindingID int64) (domain.Binding, error) {
	b, acc, srv, err := s.load(ctx, bindingID)
	if err != nil {
		return domain.Binding{}, err
	}
	if err := workflow.EnsureBindingStep(workflow.ActionRefreshTokenLocation, b.Step); err != nil {
		return domain.Binding{}, err
	}
	token, err := s.Providers.ForServer(srv).TokenLocation3(ctx, acc.MSISDN)
	if err != nil {
		return domain.Binding{}, s.recordError(ctx, b.ID, err)
	}
	refreshedAt := time.Now().UTC()
	return s.Bindings.Update(ctx, b.ID, domain.BindingPatch{
		TokenLocation:            &token.Token,
		TokenLocationRefreshedAt: &refreshedAt,
	})
}

// VerifyReseller re-checks the reseller flag from the product list and
// mirrors it onto the account.
func (s BindingService) VerifyReseller(ctx context.Context, bindingID int64) (domain.Binding, error) {
	b, acc, srv, err := s.load(ctx, bindingID)
	if err != nil {
		return domain.Binding{}, err
	}
	if err := workflow.EnsureBindingStep(workflow.ActionVerifyReseller, b.Step); err != nil {
		return domain.Binding{}, err
	}
	products, err := s.Providers.ForServer(srv).ListProduk(ctx, acc.MSISDN)
	if err != nil {
		return domain.Binding{}, s.recordError(ctx, b.ID, err)
	}
	isReseller := products.Reseller()
	patch := domain.BindingPatch{IsReseller: &isReseller}
	if products.DeviceID != "" {
		patch.DeviceID = &products.DeviceID
	}
	if b, err = s.Bindings.Update(ctx, b.ID, patch); err != nil {
		return domain.Binding{}, err
	}
	accPatch := domain.AccountPatch{IsReseller: &isReseller}
	if products.DeviceID != "" {
		accPatch.LastDeviceID = &products.DeviceID
	}
	if _, err := s.Accounts.Update(ctx, acc.ID, accPatch); err != nil {
		return domain.Binding{}, err
	}
	return b, nil
}

// PreviewProducts fetches the provider product list for an active binding
// without persisting anything.
func (s BindingService) PreviewProducts(ctx context.Context, bindingID int64) (domain.ProductListResult, error) {
	b, acc, srv, err := s.load(ctx, bindingID)
	if err != nil {
		return domain.ProductListResult{}, err
	}
	if !b.Active() {
		return domain.ProductListResult{}, domain.ValidationError(
			"binding_logged_out", "binding %d is logged out", bindingID)
	}
	return s.Providers.ForServer(srv).ListProduk(ctx, acc.MSISDN)
}

// Logout tears the binding down. The provider logout is best-effort; the
// binding is always marked LOGGED_OUT locally.
func (s BindingService) Logout(ctx context.Context, bindingID int64, lastErrorCode, lastErrorMessage string, accountStatus domain.AccountStatus) (domain.Binding, error) {
	b, acc, srv, err := s.load(ctx, bindingID)
	if err != nil {
		return domain.Binding{}, err
	}
	if err := workflow.EnsureBindingStep(workflow.ActionLogout, b.Step); err != nil {
		return domain.Binding{}, err
	}
	if accountStatus == "" {
		accountStatus = domain.AccountExhausted
	}
	if !accountStatus.Valid() {
		return domain.Binding{}, domain.ValidationError(
			"account_invalid_status", "unknown account status %q", accountStatus)
	}

	if _, err := s.Providers.ForServer(srv).Logout(ctx, acc.MSISDN); err != nil {
		observability.LoggerFromContext(ctx).Warn("provider logout failed; unbinding anyway",
			slog.Int64("binding_id", b.ID), slog.String("error", err.Error()))
	}

	step := domain.StepLoggedOut
	now := time.Now().UTC()
	patch := domain.BindingPatch{Step: &step, UnboundAt: &now}
	if lastErrorCode != "" {
		patch.LastErrorCode = &lastErrorCode
	}
	if lastErrorMessage != "" {
		patch.LastErrorMessage = &lastErrorMessage
	}
	if b, err = s.Bindings.Update(ctx, b.ID, patch); err != nil {
		return domain.Binding{}, err
	}
	if _, err := s.Accounts.Update(ctx, acc.ID, domain.AccountPatch{Status: &accountStatus}); err != nil {
		return domain.Binding{}, err
	}
	return b, nil
}

// recordError stamps the binding's last_error fields and returns the original
// error for the caller to surface.
func (s BindingService) recordError(ctx context.Context, bindingID int64, err error) error {
	code := domain.ErrorCode(err)
	msg := err.Error()
	if _, uerr := s.Bindings.Update(ctx, bindingID, domain.BindingPatch{
		LastErrorCode:    &code,
		LastErrorMessage: &msg,
	}); uerr != nil {
		observability.LoggerFromContext(ctx).Error("failed to record binding error",
			slog.Int64("binding_id", bindingID), slog.String("error", uerr.Error()))
	}
	return err
}

// BulkBindingItem addresses one pairing either by ids or by natural keys.
type BulkBindingItem struct {
	ServerID  int64
	AccountID int64
	Port      int
	MSISDN    string
	BatchID   string
}

// BulkBindingsInput creates many bindings in one call.
type BulkBindingsInput struct {
	Items            []BulkBindingItem
	StopOnFirstError bool
}

func (s BindingService) resolveBulkItem(ctx context.Context, item BulkBindingItem) (int64, int64, error) {
	serverID := item.ServerID
	accountID := item.AccountID
	if serverID == 0 {
		if item.Port == 0 {
			return 0, 0, domain.ValidationError("binding_server_unresolved", "server_id or port is required")
		}
		srv, err := s.Servers.GetByPort(ctx, item.Port)
		if err != nil {
			return 0, 0, err
		}
		serverID = srv.ID
	}
	if accountID == 0 {
		if item.MSISDN == "" {
			return 0, 0, domain.ValidationError("binding_account_unresolved", "account_id or msisdn is required")
		}
		if item.BatchID != "" {
			acc, err := s.Accounts.GetByMSISDNBatch(ctx, item.MSISDN, item.BatchID)
			if err != nil {
				return 0, 0, err
			}
			accountID = acc.ID
		} else {
			matches, err := s.Accounts.ListByMSISDN(ctx, item.MSISDN)
			if err != nil {
				return 0, 0, err
			}
			switch len(matches) {
			case 0:
				return 0, 0, domain.NotFoundError("account_not_found", "account %s not found", item.MSISDN)
			case 1:
				accountID = matches[0].ID
			default:
				return 0, 0, domain.ValidationError(
					"binding_account_ambiguous", "msisdn %s exists in multiple batches; batch_id required", item.MSISDN)
			}
		}
	}
	return serverID, accountID, nil
}

// BulkCreate creates (or simulates creating) the given bindings. Duplicate
// servers or accounts within one request are rejected per item.
func (s BindingService) BulkCreate(ctx context.Context, in BulkBindingsInput, dryRun bool) (BulkResult, error) {
	if len(in.Items) == 0 {
		return BulkResult{}, domain.ValidationError("binding_bulk_empty", "items must not be empty")
	}
	res := BulkResult{DryRun: dryRun, Items: make([]BulkItemResult, 0, len(in.Items))}
	seenServers := map[int64]bool{}
	seenAccounts := map[int64]bool{}
	for i, item := range in.Items {
		key := fmt.Sprintf("item:%d", i)
		serverID, accountID, err := s.resolveBulkItem(ctx, item)
		if err != nil {
			res.record(BulkItemResult{Key: key, Status: "failed", Reason: domain.ErrorCode(err)})
			if in.StopOnFirstError {
				return res, nil
			}
			continue
		}
		key = fmt.Sprintf("server:%d/account:%d", serverID, accountID)

		if seenServers[serverID] || seenAccounts[accountID] {
			res.record(BulkItemResult{Key: key, Status: "failed", Reason: "duplicate_in_request"})
			if in.StopOnFirstError {
				return res, nil
			}
			continue
		}
		seenServers[serverID] = true
		seenAccounts[accountID] = true

		reason := ""
		if _, err := s.Bindings.GetActiveByServer(ctx, serverID); err == nil {
			reason = "server_already_bound"
		} else if !errors.Is(err, domain.ErrNotFound) {
			return res, err
		}
		if reason == "" {
			if _, err := s.Bindings.GetActiveByAccount(ctx, accountID); err == nil {
				reason = "account_already_bound"
			} else if !errors.Is(err, domain.ErrNotFound) {
				return res, err
			}
		}
		if reason != "" {
			res.record(BulkItemResult{Key: key, Status: "failed", Reason: reason})
			if in.StopOnFirstError {
				return res, nil
			}
			continue
		}
		if dryRun {
			res.record(BulkItemResult{Key: key, Status: "would_create"})
			continue
		}
		created, err := s.Create(ctx, serverID, accountID, nil)
		if err != nil {
			res.record(BulkItemResult{Key: key, Status: "failed", Reason: domain.ErrorCode(err)})
			if in.StopOnFirstError {
				return res, nil
			}
			continue
		}
		res.record(BulkItemResult{Key: key, Status: "created", ID: created.ID})
	}
	return res, nil
}
