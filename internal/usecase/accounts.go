package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

// AccountService manages MSISDN accounts.
type AccountService struct {
	Accounts domain.AccountRepo
	Bindings domain.BindingRepo
}

// NewAccountService constructs an AccountService.
func NewAccountService(accounts domain.AccountRepo, bindings domain.BindingRepo) AccountService {
	return AccountService{Accounts: accounts, Bindings: bindings}
}

// CreateAccountInput is the payload for creating one account.
type CreateAccountInput struct {
	MSISDN     string
	Email      string
	BatchID    string
	PIN        string
	Status     domain.AccountStatus
	IsReseller bool
	Notes      string
}

// Create registers a new account within a batch.
func (s AccountService) Create(ctx context.Context, in CreateAccountInput) (domain.Account, error) {
	if strings.TrimSpace(in.MSISDN) == "" {
		return domain.Account{}, domain.ValidationError("account_msisdn_required", "msisdn is required")
	}
	if strings.TrimSpace(in.BatchID) == "" {
		return domain.Account{}, domain.ValidationError("account_batch_id_required", "batch_id is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		return domain.Account{}, domain.ValidationError("account_invalid_status", "unknown account status %q", in.Status)
	}
	status := in.Status
	if status == "" {
		status = domain.AccountNew
	}
	return s.Accounts.Create(ctx, domain.Account{
		MSISDN:     strings.TrimSpace(in.MSISDN),
		Email:      in.Email,
		BatchID:    strings.TrimSpace(in.BatchID),
		PIN:        in.PIN,
		Status:     status,
		IsReseller: in.IsReseller,
		Notes:      in.Notes,
	})
}

// Get loads an account by id.
func (s AccountService) Get(ctx context.Context, id int64) (domain.Account, error) {
	return s.Accounts.Get(ctx, id)
}

// List returns accounts matching the filter.
func (s AccountService) List(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error) {
	return s.Accounts.List(ctx, f)
}

// Update applies a partial update.
func (s AccountService) Update(ctx context.Context, id int64, p domain.AccountPatch) (domain.Account, error) {
	if p.Status != nil && !p.Status.Valid() {
		return domain.Account{}, domain.ValidationError("account_invalid_status", "unknown account status %q", *p.Status)
	}
	return s.Accounts.Update(ctx, id, p)
}

// Delete removes an account by id, refusing while a binding is still active.
func (s AccountService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Accounts.Get(ctx, id); err != nil {
		return err
	}
	_, err := s.Bindings.GetActiveByAccount(ctx, id)
	switch {
	case err == nil:
		return domain.ValidationError(
			"account_has_active_binding", "account %d still has an active binding", id)
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}
	return s.Accounts.Delete(ctx, id)
}

// DeleteByMSISDNBatch removes an account addressed by its natural key.
func (s AccountService) DeleteByMSISDNBatch(ctx context.Context, msisdn, batchID string) error {
	a, err := s.Accounts.GetByMSISDNBatch(ctx, msisdn, batchID)
	if err != nil {
		return err
	}
	return s.Delete(ctx, a.ID)
}

// BulkAccountsInput creates many accounts in one call.
type BulkAccountsInput struct {
	Items            []CreateAccountInput
	StopOnFirstError bool
}

// BulkCreate creates (or simulates creating) the given accounts.
func (s AccountService) BulkCreate(ctx context.Context, in BulkAccountsInput, dryRun bool) (BulkResult, error) {
	if len(in.Items) == 0 {
		return BulkResult{}, domain.ValidationError("account_bulk_empty", "items must not be empty")
	}
	res := BulkResult{DryRun: dryRun, Items: make([]BulkItemResult, 0, len(in.Items))}
	seen := map[string]bool{}
	for _, item := range in.Items {
		key := fmt.Sprintf("%s/%s", item.MSISDN, item.BatchID)
		if seen[key] {
			res.record(BulkItemResult{Key: key, Status: "failed", Reason: "duplicate_in_request"})
			if in.StopOnFirstError {
				return res, nil
			}
			continue
		}
		seen[key] = true

		if _, err := s.Accounts.GetByMSISDNBatch(ctx, item.MSISDN, item.BatchID); err == nil {
			res.record(BulkItemResult{Key: key, Status: "failed", Reason: "account_already_exists"})
			if in.StopOnFirstError {
				return res, nil
			}
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return res, err
		}
		if dryRun {
			res.record(BulkItemResult{Key: key, Status: "would_create"})
			continue
		}
		created, err := s.Create(ctx, item)
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
