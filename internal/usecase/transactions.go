package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okedigitalmedia/voucherd/internal/domain"
	"github.com/okedigitalmedia/voucherd/internal/domain/workflow"
	"github.com/okedigitalmedia/voucherd/internal/observability"
)

// Auto-decide outcomes.
const (
	DecisionContinued = "continued"
	DecisionStopped   = "stopped"
)

// PrecheckStopPrefix marks transactions terminated by the local balance
// precheck before any provider order was placed.
const PrecheckStopPrefix = "insufficient_balance_before_start"

// autoStopPrefix marks transactions stopped by the balance auto-decide.
const autoStopPrefix = "auto_stop_balance_insufficient"

// TransactionService drives the per-purchase lifecycle.
type TransactionService struct {
	Transactions domain.TransactionRepo
	Bindings     domain.BindingRepo
	Accounts     domain.AccountRepo
	Servers      domain.ServerRepo
	Providers    domain.ProviderFactory
}

// NewTransactionService constructs a TransactionService.
func NewTransactionService(transactions domain.TransactionRepo, bindings domain.BindingRepo,
	accounts domain.AccountRepo, servers domain.ServerRepo, providers domain.ProviderFactory) TransactionService {
	return TransactionService{
		Transactions: transactions,
		Bindings:     bindings,
		Accounts:     accounts,
		Servers:      servers,
		Providers:    providers,
	}
}

// classifyStatus maps a provider status poll onto a transaction status.
// is_success==2 with a voucher is a confirmed sale; without one the sale is
// suspect. Anything else stays in flight before OTP and fails after.
func classifyStatus(isSuccess *int, voucher string, postOTP bool) domain.TransactionStatus {
	if isSuccess != nil && *isSuccess == 2 {
		if voucher != "" {
			return domain.TrxSukses
		}
		return domain.TrxSuspect
	}
	if postOTP {
		return domain.TrxGagal
	}
	return domain.TrxProcessing
}

// otpRequiredFor reports whether the provider will demand a transaction OTP:
// only a device id match between the account's last confirmed device and the
// binding's device waives it.
func otpRequiredFor(acc domain.Account, b domain.Binding) bool {
	if acc.LastDeviceID != "" && b.DeviceID != "" {
		return acc.LastDeviceID != b.DeviceID
	}
	return true
}

func (s TransactionService) loadChain(ctx context.Context, bindingID int64) (domain.Binding, domain.Account, domain.ServerInstance, error) {
	b, err := s.Bindings.Get(ctx, bindingID)
	if err != nil {
		return domain.Binding{}, domain.Account{}, domain.ServerInstance{}, err
	}
	acc, err := s.Accounts.Get(ctx, b.AccountID)
	if err != nil {
		return domain.Binding{}, domain.Account{}, domain.ServerInstance{}, err
	}
	srv, err := s.Servers.Get(ctx, b.ServerID)
	if err != nil {
		return domain.Binding{}, domain.Account{}, domain.ServerInstance{}, err
	}
	return b, acc, srv, nil
}

// Start places a voucher order on a binding. When the known balance is below
// a positive limit_harga, a terminal precheck transaction is synthesized
// locally and no provider order is placed.
func (s TransactionService) Start(ctx context.Context, bindingID int64, productID, email string, limitHarga int64) (domain.Transaction, error) {
	b, acc, srv, err := s.loadChain(ctx, bindingID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := workflow.EnsureBindingStep(workflow.ActionStartTransaction, b.Step); err != nil {
		return domain.Transaction{}, err
	}
	if productID == "" {
		return domain.Transaction{}, domain.ValidationError("transaction_product_required", "product_id is required")
	}
	if email == "" {
		email = acc.Email
	}
	if email == "" {
		return domain.Transaction{}, domain.ValidationError("transaction_email_required", "email is required")
	}
	provider := s.Providers.ForServer(srv)

	balance, err := provider.BalancePulsa(ctx, acc.MSISDN)
	if err != nil {
		return domain.Transaction{}, err
	}
	// Unknown balance never triggers the precheck stop.
	if limitHarga > 0 && balance.Balance != nil && *balance.Balance < limitHarga {
		return s.precheckStop(ctx, b, acc, srv, productID, email, limitHarga, *balance.Balance)
	}

	order, err := provider.TrxVoucher(ctx, acc.MSISDN, productID, email, limitHarga)
	if err != nil {
		return domain.Transaction{}, err
	}
	if order.TrxID == "" {
		return domain.Transaction{}, domain.ExternalError(
			"transaction_trx_id_missing", "provider order response carried no trx_id")
	}

	trx, err := s.Transactions.Create(ctx, domain.Transaction{
		TrxID:       order.TrxID,
		TID:         order.TID,
		ServerID:    srv.ID,
		AccountID:   acc.ID,
		BindingID:   b.ID,
		BatchID:     acc.BatchID,
		DeviceID:    b.DeviceID,
		ProductID:   productID,
		Email:       email,
		LimitHarga:  limitHarga,
		Status:      domain.TrxProcessing,
		IsSuccess:   order.IsSuccess,
		OTPRequired: otpRequiredFor(acc, b),
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	if _, err := s.Transactions.CreateSnapshot(ctx, domain.TransactionSnapshot{
		TransactionID: trx.ID,
		BalanceStart:  balance.Balance,
		TrxIDVRaw:     order.Raw,
	}); err != nil {
		return domain.Transaction{}, err
	}

	return s.pollAndApply(ctx, trx, acc, srv, false)
}

func (s TransactionService) precheckStop(ctx context.Context, b domain.Binding, acc domain.Account,
	srv domain.ServerInstance, productID, email string, limitHarga, balance int64) (domain.Transaction, error) {
	trxID := fmt.Sprintf("precheck-%d-%d", b.ID, time.Now().UnixMilli())
	msg := fmt.Sprintf("%s: %d < %d", PrecheckStopPrefix, balance, limitHarga)
	trx, err := s.Transactions.Create(ctx, domain.Transaction{
		TrxID:        trxID,
		ServerID:     srv.ID,
		AccountID:    acc.ID,
		BindingID:    b.ID,
		BatchID:      acc.BatchID,
		DeviceID:     b.DeviceID,
		ProductID:    productID,
		Email:        email,
		LimitHarga:   limitHarga,
		Status:       domain.TrxGagal,
		ErrorMessage: msg,
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	synthetic, _ := json.Marshal(map[string]any{
		"precheck_result": "stopped_insufficient_balance",
		"balance":         balance,
		"limit_harga":     limitHarga,
	})
	if _, err := s.Transactions.CreateSnapshot(ctx, domain.TransactionSnapshot{
		TransactionID: trx.ID,
		BalanceStart:  &balance,
		BalanceEnd:    &balance,
		TrxIDVRaw:     synthetic,
	}); err != nil {
		return domain.Transaction{}, err
	}
	observability.TransactionsTotal.WithLabelValues(string(domain.TrxGagal)).Inc()
	return trx, nil
}

// pollAndApply polls the provider status, classifies it, refreshes the end
// balance, and persists transaction and snapshot.
func (s TransactionService) pollAndApply(ctx context.Context, trx domain.Transaction,
	acc domain.Account, srv domain.ServerInstance, postOTP bool) (domain.Transaction, error) {
	provider := s.Providers.ForServer(srv)
	statusRes, err := provider.StatusTrx(ctx, acc.MSISDN, trx.TrxID)
	if err != nil {
		return domain.Transaction{}, err
	}
	next := classifyStatus(statusRes.IsSuccess, statusRes.Voucher, postOTP)

	patch := domain.TransactionPatch{Status: &next}
	if statusRes.IsSuccess != nil {
		patch.IsSuccess = &statusRes.IsSuccess
	}
	if next == domain.TrxSukses {
		voucher := statusRes.Voucher
		vp := &voucher
		patch.VoucherCode = &vp
	}
	if !postOTP && next == domain.TrxProcessing && trx.OTPStatus == nil {
		pending := domain.OTPPending
		pp := &pending
		patch.OTPStatus = &pp
	}
	updated, err := s.Transactions.Update(ctx, trx.ID, patch)
	if err != nil {
		return domain.Transaction{}, err
	}

	balanceEnd, err := provider.BalancePulsa(ctx, acc.MSISDN)
	if err != nil {
		return domain.Transaction{}, err
	}
	if _, err := s.Transactions.UpdateSnapshot(ctx, trx.ID, domain.SnapshotPatch{
		BalanceEnd:   &balanceEnd.Balance,
		StatusIDVRaw: statusRes.Raw,
	}); err != nil {
		return domain.Transaction{}, err
	}
	if next.Terminal() {
		observability.TransactionsTotal.WithLabelValues(string(next)).Inc()
	}
	return updated, nil
}

// SubmitOTP submits the transaction OTP and re-polls status. After OTP a
// non-successful status is final.
func (s TransactionService) SubmitOTP(ctx context.Context, transactionID int64, otp string) (domain.Transaction, error) {
	trx, err := s.Transactions.Get(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := workflow.EnsureTransactionStatus(workflow.ActionSubmitOTP, trx.Status); err != nil {
		return domain.Transaction{}, err
	}
	if otp == "" {
		return domain.Transaction{}, domain.ValidationError("transaction_otp_required", "otp is required")
	}
	b, acc, srv, err := s.loadChain(ctx, trx.BindingID)
	if err != nil {
		return domain.Transaction{}, err
	}
	provider := s.Providers.ForServer(srv)

	otpRes, err := provider.OTPTrx(ctx, acc.MSISDN, otp)
	if err != nil {
		return domain.Transaction{}, err
	}
	otpStatus := domain.OTPFailed
	if otpRes.OK() {
		otpStatus = domain.OTPSuccess
		if b.DeviceID != "" {
			if _, err := s.Accounts.Update(ctx, acc.ID, domain.AccountPatch{LastDeviceID: &b.DeviceID}); err != nil {
				return domain.Transaction{}, err
			}
		}
	}
	op := &otpStatus
	if _, err := s.Transactions.Update(ctx, trx.ID, domain.TransactionPatch{OTPStatus: &op}); err != nil {
		return domain.Transaction{}, err
	}

	return s.pollAndApply(ctx, trx, acc, srv, true)
}

// Continue re-polls the provider status for an in-flight transaction.
func (s TransactionService) Continue(ctx context.Context, transactionID int64) (domain.Transaction, error) {
	trx, err := s.Transactions.Get(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := workflow.EnsureTransactionStatus(workflow.ActionContinueTransaction, trx.Status); err != nil {
		return domain.Transaction{}, err
	}
	_, acc, srv, err := s.loadChain(ctx, trx.BindingID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return s.pollAndApply(ctx, trx, acc, srv, false)
}

// CheckBalanceAndContinueOrStop fetches the balance and either continues the
// transaction or force-stops it when the balance dropped below limit_harga.
// Unknown balances never auto-stop. A paused transaction with sufficient
// balance is resumed before continuing.
func (s TransactionService) CheckBalanceAndContinueOrStop(ctx context.Context, transactionID int64) (domain.Transaction, string, error) {
	trx, err := s.Transactions.Get(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, "", err
	}
	if err := workflow.EnsureTransactionStatus(workflow.ActionCheckAndDecide, trx.Status); err != nil {
		return domain.Transaction{}, "", err
	}
	_, acc, srv, err := s.loadChain(ctx, trx.BindingID)
	if err != nil {
		return domain.Transaction{}, "", err
	}

	balance, err := s.Providers.ForServer(srv).BalancePulsa(ctx, acc.MSISDN)
	if err != nil {
		return domain.Transaction{}, "", err
	}
	if trx.LimitHarga > 0 && balance.Balance != nil && *balance.Balance < trx.LimitHarga {
		reason := fmt.Sprintf("%s: %d < %d", autoStopPrefix, *balance.Balance, trx.LimitHarga)
		stopped, err := s.Stop(ctx, trx.ID, reason)
		if err != nil {
			return domain.Transaction{}, "", err
		}
		return stopped, DecisionStopped, nil
	}

	if trx.Status == domain.TrxPaused {
		resumed := domain.TrxResumed
		now := time.Now().UTC()
		if trx, err = s.Transactions.Update(ctx, trx.ID, domain.TransactionPatch{
			Status:    &resumed,
			ResumedAt: &now,
		}); err != nil {
			return domain.Transaction{}, "", err
		}
	}
	updated, err := s.pollAndApply(ctx, trx, acc, srv, false)
	if err != nil {
		return domain.Transaction{}, "", err
	}
	return updated, DecisionContinued, nil
}

// Pause suspends an in-flight transaction.
func (s TransactionService) Pause(ctx context.Context, transactionID int64, reason string) (domain.Transaction, error) {
	trx, err := s.Transactions.Get(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := workflow.EnsureTransactionStatus(workflow.ActionPauseTransaction, trx.Status); err != nil {
		return domain.Transaction{}, err
	}
	paused := domain.TrxPaused
	now := time.Now().UTC()
	return s.Transactions.Update(ctx, transactionID, domain.TransactionPatch{
		Status:      &paused,
		PauseReason: &reason,
		PausedAt:    &now,
	})
}

// Resume unpauses a transaction after a balance gate: the balance must be
// known and at least limit_harga.
func (s TransactionService) Resume(ctx context.Context, transactionID int64) (domain.Transaction, error) {
	trx, err := s.Transactions.Get(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := workflow.EnsureTransactionStatus(workflow.ActionResumeTransaction, trx.Status); err != nil {
		return domain.Transaction{}, err
	}
	_, acc, srv, err := s.loadChain(ctx, trx.BindingID)
	if err != nil {
		return domain.Transaction{}, err
	}
	balance, err := s.Providers.ForServer(srv).BalancePulsa(ctx, acc.MSISDN)
	if err != nil {
		return domain.Transaction{}, err
	}
	if balance.Balance == nil {
		return domain.Transaction{}, domain.ValidationError(
			"balance_check_failed", "balance is unknown; cannot resume")
	}
	if trx.LimitHarga > 0 && *balance.Balance < trx.LimitHarga {
		return domain.Transaction{}, domain.ValidationError(
			"insufficient_balance", "balance %d is below limit_harga %d", *balance.Balance, trx.LimitHarga)
	}
	resumed := domain.TrxResumed
	now := time.Now().UTC()
	return s.Transactions.Update(ctx, transactionID, domain.TransactionPatch{
		Status:    &resumed,
		ResumedAt: &now,
	})
}

// Stop force-fails a transaction, clearing voucher code and OTP sub-state.
func (s TransactionService) Stop(ctx context.Context, transactionID int64, reason string) (domain.Transaction, error) {
	trx, err := s.Transactions.Get(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := workflow.EnsureTransactionStatus(workflow.ActionStopTransaction, trx.Status); err != nil {
		return domain.Transaction{}, err
	}
	gagal := domain.TrxGagal
	empty := ""
	ep := &empty
	var clearedOTP *domain.OTPStatus
	patch := domain.TransactionPatch{
		Status:      &gagal,
		VoucherCode: &ep,
		OTPStatus:   &clearedOTP,
	}
	if reason != "" {
		rp := &reason
		patch.ErrorMessage = &rp
	}
	updated, err := s.Transactions.Update(ctx, transactionID, patch)
	if err != nil {
		return domain.Transaction{}, err
	}
	observability.TransactionsTotal.WithLabelValues(string(domain.TrxGagal)).Inc()
	return updated, nil
}

// Create records a transaction row directly, without provider calls. Used by
// operators to register externally observed purchases.
func (s TransactionService) Create(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	if t.BindingID == 0 {
		return domain.Transaction{}, domain.ValidationError("transaction_binding_required", "binding_id is required")
	}
	b, acc, srv, err := s.loadChain(ctx, t.BindingID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if t.Status != "" && !t.Status.Valid() {
		return domain.Transaction{}, domain.ValidationError("transaction_invalid_status", "unknown status %q", t.Status)
	}
	t.ServerID = srv.ID
	t.AccountID = acc.ID
	t.BatchID = acc.BatchID
	if t.DeviceID == "" {
		t.DeviceID = b.DeviceID
	}
	created, err := s.Transactions.Create(ctx, t)
	if err != nil {
		return domain.Transaction{}, err
	}
	if _, err := s.Transactions.CreateSnapshot(ctx, domain.TransactionSnapshot{TransactionID: created.ID}); err != nil {
		return domain.Transaction{}, err
	}
	return created, nil
}

// Get loads a transaction by id.
func (s TransactionService) Get(ctx context.Context, id int64) (domain.Transaction, error) {
	return s.Transactions.Get(ctx, id)
}

// List returns transactions matching the filter.
func (s TransactionService) List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	return s.Transactions.List(ctx, f)
}

// SetStatus force-sets the status, for operator corrections.
func (s TransactionService) SetStatus(ctx context.Context, id int64, status domain.TransactionStatus, errorMessage string) (domain.Transaction, error) {
	if !status.Valid() {
		return domain.Transaction{}, domain.ValidationError("transaction_invalid_status", "unknown status %q", status)
	}
	if _, err := s.Transactions.Get(ctx, id); err != nil {
		return domain.Transaction{}, err
	}
	patch := domain.TransactionPatch{Status: &status}
	if errorMessage != "" {
		ep := &errorMessage
		patch.ErrorMessage = &ep
	}
	return s.Transactions.Update(ctx, id, patch)
}

// Delete removes a transaction and its snapshot.
func (s TransactionService) Delete(ctx context.Context, id int64) error {
	return s.Transactions.Delete(ctx, id)
}

// GetSnapshot loads the evidence record of a transaction.
func (s TransactionService) GetSnapshot(ctx context.Context, transactionID int64) (domain.TransactionSnapshot, error) {
	if _, err := s.Transactions.Get(ctx, transactionID); err != nil {
		return domain.TransactionSnapshot{}, err
	}
	return s.Transactions.GetSnapshot(ctx, transactionID)
}

// UpdateSnapshot applies an operator-facing partial update to the snapshot.
func (s TransactionService) UpdateSnapshot(ctx context.Context, transactionID int64, p domain.SnapshotPatch) (domain.TransactionSnapshot, error) {
	if _, err := s.Transactions.Get(ctx, transactionID); err != nil {
		return domain.TransactionSnapshot{}, err
	}
	return s.Transactions.UpdateSnapshot(ctx, transactionID, p)
}
