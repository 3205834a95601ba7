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

// TransactionRepo persists transactions and their snapshots using a minimal
// pgx pool. trx_id is unique per binding, not globally.
type TransactionRepo struct{ Pool PgxPool }

// NewTransactionRepo constructs a TransactionRepo with the given pool.
func NewTransactionRepo(p PgxPool) *TransactionRepo { return &TransactionRepo{Pool: p} }

const trxCols = `id, trx_id, t_id, server_id, account_id, binding_id, batch_id,
	device_id, product_id, email, limit_harga, amount, voucher_code, status,
	is_success, error_message, otp_required, otp_status, pause_reason,
	paused_at, resumed_at, created_at, updated_at`

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(&t.ID, &t.TrxID, &t.TID, &t.ServerID, &t.AccountID,
		&t.BindingID, &t.BatchID, &t.DeviceID, &t.ProductID, &t.Email,
		&t.LimitHarga, &t.Amount, &t.VoucherCode, &t.Status, &t.IsSuccess,
		&t.ErrorMessage, &t.OTPRequired, &t.OTPStatus, &t.PauseReason,
		&t.PausedAt, &t.ResumedAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// Create inserts a new transaction.
func (r *TransactionRepo) Create(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "transactions.Create")
	defer span.End()
	if t.Status == "" {
		t.Status = domain.TrxProcessing
	}
	now := time.Now().UTC()
	q := `INSERT INTO transactions
		(trx_id, t_id, server_id, account_id, binding_id, batch_id, device_id,
		 product_id, email, limit_harga, amount, voucher_code, status, is_success,
		 error_message, otp_required, otp_status, pause_reason, paused_at, resumed_at,
		 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$21)
		RETURNING ` + trxCols
	row := r.Pool.QueryRow(ctx, q, t.TrxID, t.TID, t.ServerID, t.AccountID,
		t.BindingID, t.BatchID, t.DeviceID, t.ProductID, t.Email, t.LimitHarga,
		t.Amount, t.VoucherCode, t.Status, t.IsSuccess, t.ErrorMessage,
		t.OTPRequired, t.OTPStatus, t.PauseReason, t.PausedAt, t.ResumedAt, now)
	created, err := scanTransaction(row)
	if err != nil {
		return domain.Transaction{}, dbErr("transaction.create", err)
	}
	return created, nil
}

// Get loads a transaction by id.
func (r *TransactionRepo) Get(ctx context.Context, id int64) (domain.Transaction, error) {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "transactions.Get")
	defer span.End()
	q := `SELECT ` + trxCols + ` FROM transactions WHERE id=$1`
	t, err := scanTransaction(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, domain.NotFoundError("transaction_not_found", "transaction %d not found", id)
		}
		return domain.Transaction{}, dbErr("transaction.get", err)
	}
	return t, nil
}

// List returns transactions matching the filter, newest first.
func (r *TransactionRepo) List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "transactions.List")
	defer span.End()
	var w whereBuilder
	if f.Status != nil {
		w.add("status=$%d", *f.Status)
	}
	if f.BindingID != nil {
		w.add("binding_id=$%d", *f.BindingID)
	}
	if f.AccountID != nil {
		w.add("account_id=$%d", *f.AccountID)
	}
	if f.ServerID != nil {
		w.add("server_id=$%d", *f.ServerID)
	}
	if f.BatchID != "" {
		w.add("batch_id=$%d", f.BatchID)
	}
	q := `SELECT ` + trxCols + ` FROM transactions` + w.clause() +
		` ORDER BY id DESC` + limitOffset(f.Skip, f.Limit)
	rows, err := r.Pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, dbErr("transaction.list", err)
	}
	defer rows.Close()
	out := make([]domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, dbErr("transaction.list", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("transaction.list", err)
	}
	return out, nil
}

// Update applies a partial update and returns the refreshed row.
func (r *TransactionRepo) Update(ctx context.Context, id int64, p domain.TransactionPatch) (domain.Transaction, error) {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "transactions.Update")
	defer span.End()
	var b setBuilder
	if p.Status != nil {
		b.add("status", *p.Status)
	}
	if p.IsSuccess != nil {
		b.add("is_success", *p.IsSuccess)
	}
	if p.VoucherCode != nil {
		b.add("voucher_code", *p.VoucherCode)
	}
	if p.ErrorMessage != nil {
		b.add("error_message", *p.ErrorMessage)
	}
	if p.OTPStatus != nil {
		b.add("otp_status", *p.OTPStatus)
	}
	if p.PauseReason != nil {
		b.add("pause_reason", *p.PauseReason)
	}
	if p.PausedAt != nil {
		b.add("paused_at", *p.PausedAt)
	}
	if p.ResumedAt != nil {
		b.add("resumed_at", *p.ResumedAt)
	}
	if p.Amount != nil {
		b.add("amount", *p.Amount)
	}
	if b.empty() {
		return r.Get(ctx, id)
	}
	b.add("updated_at", time.Now().UTC())
	set, idx, args := b.clause(id)
	q := fmt.Sprintf(`UPDATE transactions SET %s WHERE id=$%d RETURNING %s`, set, idx, trxCols)
	t, err := scanTransaction(r.Pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, domain.NotFoundError("transaction_not_found", "transaction %d not found", id)
		}
		return domain.Transaction{}, dbErr("transaction.update", err)
	}
	return t, nil
}

// Delete removes a transaction and its snapshot by id.
func (r *TransactionRepo) Delete(ctx context.Context, id int64) error {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "transactions.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM transactions WHERE id=$1`, id)
	if err != nil {
		return dbErr("transaction.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("transaction_not_found", "transaction %d not found", id)
	}
	return nil
}

const snapshotCols = `id, transaction_id, balance_start, balance_end,
	trx_idv_raw, status_idv_raw, created_at, updated_at`

func scanSnapshot(row pgx.Row) (domain.TransactionSnapshot, error) {
	var s domain.TransactionSnapshot
	err := row.Scan(&s.ID, &s.TransactionID, &s.BalanceStart, &s.BalanceEnd,
		&s.TrxIDVRaw, &s.StatusIDVRaw, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// CreateSnapshot inserts the 1:1 evidence record of a transaction.
func (r *TransactionRepo) CreateSnapshot(ctx context.Context, s domain.TransactionSnapshot) (domain.TransactionSnapshot, error) {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "transactions.CreateSnapshot")
	defer span.End()
	now := time.Now().UTC()
	q := `INSERT INTO transaction_snapshots
		(transaction_id, balance_start, balance_end, trx_idv_raw, status_idv_raw, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		RETURNING ` + snapshotCols
	row := r.Pool.QueryRow(ctx, q, s.TransactionID, s.BalanceStart, s.BalanceEnd,
		s.TrxIDVRaw, s.StatusIDVRaw, now)
	created, err := scanSnapshot(row)
	if err != nil {
		return domain.TransactionSnapshot{}, dbErr("snapshot.create", err)
	}
	return created, nil
}

// GetSnapshot loads the snapshot of a transaction.
func (r *TransactionRepo) GetSnapshot(ctx context.Context, transactionID int64) (domain.TransactionSnapshot, error) {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "transactions.GetSnapshot")
	defer span.End()
	q := `SELECT ` + snapshotCols + ` FROM transaction_snapshots WHERE transaction_id=$1`
	s, err := scanSnapshot(r.Pool.QueryRow(ctx, q, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TransactionSnapshot{}, domain.NotFoundError(
				"snapshot_not_found", "snapshot for transaction %d not found", transactionID)
		}
		return domain.TransactionSnapshot{}, dbErr("snapshot.get", err)
	}
	return s, nil
}

// UpdateSnapshot applies a partial update keyed by transaction id.
func (r *TransactionRepo) UpdateSnapshot(ctx context.Context, transactionID int64, p domain.SnapshotPatch) (domain.TransactionSnapshot, error) {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "transactions.UpdateSnapshot")
	defer span.End()
	var b setBuilder
	if p.BalanceStart != nil {
		b.add("balance_start", *p.BalanceStart)
	}
	if p.BalanceEnd != nil {
		b.add("balance_end", *p.BalanceEnd)
	}
	if p.TrxIDVRaw != nil {
		b.add("trx_idv_raw", p.TrxIDVRaw)
	}
	if p.StatusIDVRaw != nil {
		b.add("status_idv_raw", p.StatusIDVRaw)
	}
	if b.empty() {
		return r.GetSnapshot(ctx, transactionID)
	}
	b.add("updated_at", time.Now().UTC())
	set, idx, args := b.clause(transactionID)
	q := fmt.Sprintf(`UPDATE transaction_snapshots SET %s WHERE transaction_id=$%d RETURNING %s`,
		set, idx, snapshotCols)
	s, err := scanSnapshot(r.Pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TransactionSnapshot{}, domain.NotFoundError(
				"snapshot_not_found", "snapshot for transaction %d not found", transactionID)
		}
		return domain.TransactionSnapshot{}, dbErr("snapshot.update", err)
	}
	return s, nil
}
