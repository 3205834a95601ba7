package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

// AccountRepo persists MSISDN accounts using a minimal pgx pool.
type AccountRepo struct{ Pool PgxPool }

// NewAccountRepo constructs an AccountRepo with the given pool.
func NewAccountRepo(p PgxPool) *AccountRepo { return &AccountRepo{Pool: p} }

const accountCols = `id, msisdn, email, batch_id, pin, status, is_reseller,
	balance_last, used_count, last_used_at, last_device_id, notes, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.MSISDN, &a.Email, &a.BatchID, &a.PIN, &a.Status,
		&a.IsReseller, &a.BalanceLast, &a.UsedCount, &a.LastUsedAt,
		&a.LastDeviceID, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Create inserts a new account.
func (r *AccountRepo) Create(ctx context.Context, a domain.Account) (domain.Account, error) {
	tracer := otel.Tracer("repo.accounts")
	ctx, span := tracer.Start(ctx, "accounts.Create")
	defer span.End()
	if a.Status == "" {
		a.Status = domain.AccountNew
	}
	now := time.Now().UTC()
	q := `INSERT INTO accounts
		(msisdn, email, batch_id, pin, status, is_reseller, balance_last, used_count,
		 last_used_at, last_device_id, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		RETURNING ` + accountCols
	row := r.Pool.QueryRow(ctx, q, a.MSISDN, a.Email, a.BatchID, a.PIN, a.Status,
		a.IsReseller, a.BalanceLast, a.UsedCount, a.LastUsedAt, a.LastDeviceID, a.Notes, now)
	created, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, dbErr("account.create", err)
	}
	return created, nil
}

// Get loads an account by id.
func (r *AccountRepo) Get(ctx context.Context, id int64) (domain.Account, error) {
	tracer := otel.Tracer("repo.accounts")
	ctx, span := tracer.Start(ctx, "accounts.Get")
	defer span.End()
	q := `SELECT ` + accountCols + ` FROM accounts WHERE id=$1`
	a, err := scanAccount(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.NotFoundError("account_not_found", "account %d not found", id)
		}
		return domain.Account{}, dbErr("account.get", err)
	}
	return a, nil
}

// GetByMSISDNBatch loads an account by its (msisdn, batch_id) identity.
func (r *AccountRepo) GetByMSISDNBatch(ctx context.Context, msisdn, batchID string) (domain.Account, error) {
	tracer := otel.Tracer("repo.accounts")
	ctx, span := tracer.Start(ctx, "accounts.GetByMSISDNBatch")
	defer span.End()
	q := `SELECT ` + accountCols + ` FROM accounts WHERE msisdn=$1 AND batch_id=$2`
	a, err := scanAccount(r.Pool.QueryRow(ctx, q, msisdn, batchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.NotFoundError(
				"account_not_found", "account %s in batch %s not found", msisdn, batchID)
		}
		return domain.Account{}, dbErr("account.get_by_msisdn_batch", err)
	}
	return a, nil
}

// ListByMSISDN returns all accounts with the given MSISDN across batches.
func (r *AccountRepo) ListByMSISDN(ctx context.Context, msisdn string) ([]domain.Account, error) {
	tracer := otel.Tracer("repo.accounts")
	ctx, span := tracer.Start(ctx, "accounts.ListByMSISDN")
	defer span.End()
	q := `SELECT ` + accountCols + ` FROM accounts WHERE msisdn=$1 ORDER BY id`
	rows, err := r.Pool.Query(ctx, q, msisdn)
	if err != nil {
		return nil, dbErr("account.list_by_msisdn", err)
	}
	defer rows.Close()
	out := make([]domain.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, dbErr("account.list_by_msisdn", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("account.list_by_msisdn", err)
	}
	return out, nil
}

// List returns accounts matching the filter, newest first.
func (r *AccountRepo) List(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error) {
	tracer := otel.Tracer("repo.accounts")
	ctx, span := tracer.Start(ctx, "accounts.List")
	defer span.End()
	var w whereBuilder
	if f.Status != nil {
		w.add("status=$%d", *f.Status)
	}
	if f.IsReseller != nil {
		w.add("is_reseller=$%d", *f.IsReseller)
	}
	if f.BatchID != "" {
		w.add("batch_id=$%d", f.BatchID)
	}
	if f.Email != "" {
		w.add("email=$%d", f.Email)
	}
	if f.MSISDN != "" {
		w.add("msisdn=$%d", f.MSISDN)
	}
	q := `SELECT ` + accountCols + ` FROM accounts` + w.clause() +
		` ORDER BY id DESC` + limitOffset(f.Skip, f.Limit)
	rows, err := r.Pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, dbErr("account.list", err)
	}
	defer rows.Close()
	out := make([]domain.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, dbErr("account.list", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("account.list", err)
	}
	return out, nil
}

// Update applies a partial update and returns the refreshed row.
func (r *AccountRepo) Update(ctx context.Context, id int64, p domain.AccountPatch) (domain.Account, error) {
	tracer := otel.Tracer("repo.accounts")
	ctx, span := tracer.Start(ctx, "accounts.Update")
	defer span.End()
	var b setBuilder
	if p.Email != nil {
		b.add("email", *p.Email)
	}
	if p.PIN != nil {
		b.add("pin", *p.PIN)
	}
	if p.Status != nil {
		b.add("status", *p.Status)
	}
	if p.IsReseller != nil {
		b.add("is_reseller", *p.IsReseller)
	}
	if p.BalanceLast != nil {
		b.add("balance_last", *p.BalanceLast)
	}
	if p.UsedCount != nil {
		b.add("used_count", *p.UsedCount)
	}
	if p.LastUsedAt != nil {
		b.add("last_used_at", *p.LastUsedAt)
	}
	if p.LastDeviceID != nil {
		b.add("last_device_id", *p.LastDeviceID)
	}
	if p.Notes != nil {
		b.add("notes", *p.Notes)
	}
	if b.empty() {
		return r.Get(ctx, id)
	}
	b.add("updated_at", time.Now().UTC())
	set, idx, args := b.clause(id)
	q := fmt.Sprintf(`UPDATE accounts SET %s WHERE id=$%d RETURNING %s`, set, idx, accountCols)
	a, err := scanAccount(r.Pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.NotFoundError("account_not_found", "account %d not found", id)
		}
		return domain.Account{}, dbErr("account.update", err)
	}
	return a, nil
}

// Delete removes an account by id.
func (r *AccountRepo) Delete(ctx context.Context, id int64) error {
	tracer := otel.Tracer("repo.accounts")
	ctx, span := tracer.Start(ctx, "accounts.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return dbErr("account.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("account_not_found", "account %d not found", id)
	}
	return nil
}
