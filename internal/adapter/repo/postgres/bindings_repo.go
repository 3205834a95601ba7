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

// BindingRepo persists account-to-server bindings using a minimal pgx pool.
// Partial unique indexes on (server_id) and (account_id) where unbound_at IS
// NULL enforce the one-active-binding rule at the database level.
type BindingRepo struct{ Pool PgxPool }

// NewBindingRepo constructs a BindingRepo with the given pool.
func NewBindingRepo(p PgxPool) *BindingRepo { return &BindingRepo{Pool: p} }

const bindingCols = `id, server_id, account_id, batch_id, step, is_reseller,
	balance_start, balance_last, last_error_code, last_error_message,
	token_login, token_location, token_location_refreshed_at, device_id,
	bound_at, unbound_at, created_at, updated_at`

func scanBinding(row pgx.Row) (domain.Binding, error) {
	var b domain.Binding
	err := row.Scan(&b.ID, &b.ServerID, &b.AccountID, &b.BatchID, &b.Step,
		&b.IsReseller, &b.BalanceStart, &b.BalanceLast, &b.LastErrorCode,
		&b.LastErrorMessage, &b.TokenLogin, &b.TokenLocation,
		&b.TokenLocationRefreshedAt, &b.DeviceID, &b.BoundAt, &b.UnboundAt,
		&b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// Create inserts a new binding in the bound step.
func (r *BindingRepo) Create(ctx context.Context, b domain.Binding) (domain.Binding, error) {
	tracer := otel.Tracer("repo.bindings")
	ctx, span := tracer.Start(ctx, "bindings.Create")
	defer span.End()
	if b.Step == "" {
		b.Step = domain.StepBound
	}
	now := time.Now().UTC()
	if b.BoundAt.IsZero() {
		b.BoundAt = now
	}
	q := `INSERT INTO bindings
		(server_id, account_id, batch_id, step, is_reseller, balance_start, balance_last,
		 last_error_code, last_error_message, token_login, token_location,
		 token_location_refreshed_at, device_id, bound_at, unbound_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$16)
		RETURNING ` + bindingCols
	row := r.Pool.QueryRow(ctx, q, b.ServerID, b.AccountID, b.BatchID, b.Step,
		b.IsReseller, b.BalanceStart, b.BalanceLast, b.LastErrorCode, b.LastErrorMessage,
		b.TokenLogin, b.TokenLocation, b.TokenLocationRefreshedAt, b.DeviceID,
		b.BoundAt, b.UnboundAt, now)
	created, err := scanBinding(row)
	if err != nil {
		return domain.Binding{}, dbErr("binding.create", err)
	}
	return created, nil
}

// Get loads a binding by id.
func (r *BindingRepo) Get(ctx context.Context, id int64) (domain.Binding, error) {
	tracer := otel.Tracer("repo.bindings")
	ctx, span := tracer.Start(ctx, "bindings.Get")
	defer span.End()
	q := `SELECT ` + bindingCols + ` FROM bindings WHERE id=$1`
	b, err := scanBinding(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Binding{}, domain.NotFoundError("binding_not_found", "binding %d not found", id)
		}
		return domain.Binding{}, dbErr("binding.get", err)
	}
	return b, nil
}

// GetActiveByServer loads the single active binding of a server, if any.
func (r *BindingRepo) GetActiveByServer(ctx context.Context, serverID int64) (domain.Binding, error) {
	tracer := otel.Tracer("repo.bindings")
	ctx, span := tracer.Start(ctx, "bindings.GetActiveByServer")
	defer span.End()
	q := `SELECT ` + bindingCols + ` FROM bindings WHERE server_id=$1 AND unbound_at IS NULL`
	b, err := scanBinding(r.Pool.QueryRow(ctx, q, serverID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Binding{}, domain.NotFoundError(
				"binding_not_found", "no active binding for server %d", serverID)
		}
		return domain.Binding{}, dbErr("binding.get_active_by_server", err)
	}
	return b, nil
}

// GetActiveByAccount loads the single active binding of an account, if any.
func (r *BindingRepo) GetActiveByAccount(ctx context.Context, accountID int64) (domain.Binding, error) {
	tracer := otel.Tracer("repo.bindings")
	ctx, span := tracer.Start(ctx, "bindings.GetActiveByAccount")
	defer span.End()
	q := `SELECT ` + bindingCols + ` FROM bindings WHERE account_id=$1 AND unbound_at IS NULL`
	b, err := scanBinding(r.Pool.QueryRow(ctx, q, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Binding{}, domain.NotFoundError(
				"binding_not_found", "no active binding for account %d", accountID)
		}
		return domain.Binding{}, dbErr("binding.get_active_by_account", err)
	}
	return b, nil
}

func bindingWhere(f domain.BindingFilter) whereBuilder {
	var w whereBuilder
	if f.ServerID != nil {
		w.add("b.server_id=$%d", *f.ServerID)
	}
	if f.AccountID != nil {
		w.add("b.account_id=$%d", *f.AccountID)
	}
	if f.BatchID != "" {
		w.add("b.batch_id=$%d", f.BatchID)
	}
	if f.Step != nil {
		w.add("b.step=$%d", *f.Step)
	}
	if f.ActiveOnly {
		w.addRaw("b.unbound_at IS NULL")
	}
	return w
}

// List returns bindings matching the filter, newest first.
func (r *BindingRepo) List(ctx context.Context, f domain.BindingFilter) ([]domain.Binding, error) {
	tracer := otel.Tracer("repo.bindings")
	ctx, span := tracer.Start(ctx, "bindings.List")
	defer span.End()
	w := bindingWhere(f)
	q := `SELECT ` + bindingCols + ` FROM bindings b` + w.clause() +
		` ORDER BY b.id DESC` + limitOffset(f.Skip, f.Limit)
	rows, err := r.Pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, dbErr("binding.list", err)
	}
	defer rows.Close()
	out := make([]domain.Binding, 0)
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, dbErr("binding.list", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("binding.list", err)
	}
	return out, nil
}

// ListView returns bindings joined with server and account display fields.
func (r *BindingRepo) ListView(ctx context.Context, f domain.BindingFilter) ([]domain.BindingView, error) {
	tracer := otel.Tracer("repo.bindings")
	ctx, span := tracer.Start(ctx, "bindings.ListView")
	defer span.End()
	w := bindingWhere(f)
	q := `SELECT b.id, b.server_id, b.account_id, b.batch_id, b.step, b.is_reseller,
		b.balance_start, b.balance_last, b.last_error_code, b.last_error_message,
		b.token_login, b.token_location, b.token_location_refreshed_at, b.device_id,
		b.bound_at, b.unbound_at, b.created_at, b.updated_at,
		s.base_url, s.port, s.is_active, s.device_id,
		a.msisdn, a.email, a.status, a.batch_id
		FROM bindings b
		JOIN server_instances s ON s.id = b.server_id
		JOIN accounts a ON a.id = b.account_id` + w.clause() +
		` ORDER BY b.id DESC` + limitOffset(f.Skip, f.Limit)
	rows, err := r.Pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, dbErr("binding.list_view", err)
	}
	defer rows.Close()
	out := make([]domain.BindingView, 0)
	for rows.Next() {
		var v domain.BindingView
		err := rows.Scan(&v.ID, &v.ServerID, &v.AccountID, &v.BatchID, &v.Step,
			&v.IsReseller, &v.BalanceStart, &v.BalanceLast, &v.LastErrorCode,
			&v.LastErrorMessage, &v.TokenLogin, &v.TokenLocation,
			&v.TokenLocationRefreshedAt, &v.DeviceID, &v.BoundAt, &v.UnboundAt,
			&v.CreatedAt, &v.UpdatedAt,
			&v.ServerBaseURL, &v.ServerPort, &v.ServerIsActive, &v.ServerDeviceID,
			&v.AccountMSISDN, &v.AccountEmail, &v.AccountStatus, &v.AccountBatchID)
		if err != nil {
			return nil, dbErr("binding.list_view", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("binding.list_view", err)
	}
	return out, nil
}

// Update applies a partial update and returns the refreshed row.
func (r *BindingRepo) Update(ctx context.Context, id int64, p domain.BindingPatch) (domain.Binding, error) {
	tracer := otel.Tracer("repo.bindings")
	ctx, span := tracer.Start(ctx, "bindings.Update")
	defer span.End()
	var b setBuilder
	if p.Step != nil {
		b.add("step", *p.Step)
	}
	if p.IsReseller != nil {
		b.add("is_reseller", *p.IsReseller)
	}
	if p.BalanceStart != nil {
		b.add("balance_start", *p.BalanceStart)
	}
	if p.BalanceLast != nil {
		b.add("balance_last", *p.BalanceLast)
	}
	if p.LastErrorCode != nil {
		b.add("last_error_code", *p.LastErrorCode)
	}
	if p.LastErrorMessage != nil {
		b.add("last_error_message", *p.LastErrorMessage)
	}
	if p.TokenLogin != nil {
		b.add("token_login", *p.TokenLogin)
	}
	if p.TokenLocation != nil {
		b.add("token_location", *p.TokenLocation)
	}
	if p.TokenLocationRefreshedAt != nil {
		b.add("token_location_refreshed_at", *p.TokenLocationRefreshedAt)
	}
	if p.DeviceID != nil {
		b.add("device_id", *p.DeviceID)
	}
	if p.UnboundAt != nil {
		b.add("unbound_at", *p.UnboundAt)
	}
	if b.empty() {
		return r.Get(ctx, id)
	}
	b.add("updated_at", time.Now().UTC())
	set, idx, args := b.clause(id)
	q := fmt.Sprintf(`UPDATE bindings SET %s WHERE id=$%d RETURNING %s`, set, idx, bindingCols)
	updated, err := scanBinding(r.Pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Binding{}, domain.NotFoundError("binding_not_found", "binding %d not found", id)
		}
		return domain.Binding{}, dbErr("binding.update", err)
	}
	return updated, nil
}

// Delete removes a binding by id.
func (r *BindingRepo) Delete(ctx context.Context, id int64) error {
	tracer := otel.Tracer("repo.bindings")
	ctx, span := tracer.Start(ctx, "bindings.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM bindings WHERE id=$1`, id)
	if err != nil {
		return dbErr("binding.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("binding_not_found", "binding %d not found", id)
	}
	return nil
}
