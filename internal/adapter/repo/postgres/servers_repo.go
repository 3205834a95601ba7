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

// ServerRepo persists server instances using a minimal pgx pool.
type ServerRepo struct{ Pool PgxPool }

// NewServerRepo constructs a ServerRepo with the given pool.
func NewServerRepo(p PgxPool) *ServerRepo { return &ServerRepo{Pool: p} }

const serverCols = `id, port, base_url, description, timeout_seconds, retries,
	wait_between_retries, max_requests_queued, is_active, parameters, device_id,
	notes, created_at, updated_at`

func scanServer(row pgx.Row) (domain.ServerInstance, error) {
	var s domain.ServerInstance
	err := row.Scan(&s.ID, &s.Port, &s.BaseURL, &s.Description, &s.TimeoutSeconds,
		&s.Retries, &s.WaitBetweenRetries, &s.MaxRequestsQueued, &s.IsActive,
		&s.Parameters, &s.DeviceID, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Create inserts a new server instance.
func (r *ServerRepo) Create(ctx context.Context, s domain.ServerInstance) (domain.ServerInstance, error) {
	tracer := otel.Tracer("repo.servers")
	ctx, span := tracer.Start(ctx, "servers.Create")
	defer span.End()
	now := time.Now().UTC()
	q := `INSERT INTO server_instances
		(port, base_url, description, timeout_seconds, retries, wait_between_retries,
		 max_requests_queued, is_active, parameters, device_id, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		RETURNING ` + serverCols
	row := r.Pool.QueryRow(ctx, q, s.Port, s.BaseURL, s.Description, s.TimeoutSeconds,
		s.Retries, s.WaitBetweenRetries, s.MaxRequestsQueued, s.IsActive, s.Parameters,
		s.DeviceID, s.Notes, now)
	created, err := scanServer(row)
	if err != nil {
		return domain.ServerInstance{}, dbErr("server.create", err)
	}
	return created, nil
}

// Get loads a server by id.
func (r *ServerRepo) Get(ctx context.Context, id int64) (domain.ServerInstance, error) {
	tracer := otel.Tracer("repo.servers")
	ctx, span := tracer.Start(ctx, "servers.Get")
	defer span.End()
	q := `SELECT ` + serverCols + ` FROM server_instances WHERE id=$1`
	s, err := scanServer(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ServerInstance{}, domain.NotFoundError("server_not_found", "server %d not found", id)
		}
		return domain.ServerInstance{}, dbErr("server.get", err)
	}
	return s, nil
}

// GetByPort loads a server by its unique port.
func (r *ServerRepo) GetByPort(ctx context.Context, port int) (domain.ServerInstance, error) {
	tracer := otel.Tracer("repo.servers")
	ctx, span := tracer.Start(ctx, "servers.GetByPort")
	defer span.End()
	q := `SELECT ` + serverCols + ` FROM server_instances WHERE port=$1`
	s, err := scanServer(r.Pool.QueryRow(ctx, q, port))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ServerInstance{}, domain.NotFoundError("server_not_found", "server with port %d not found", port)
		}
		return domain.ServerInstance{}, dbErr("server.get_by_port", err)
	}
	return s, nil
}

// GetByBaseURL loads a server by its unique base URL.
func (r *ServerRepo) GetByBaseURL(ctx context.Context, baseURL string) (domain.ServerInstance, error) {
	tracer := otel.Tracer("repo.servers")
	ctx, span := tracer.Start(ctx, "servers.GetByBaseURL")
	defer span.End()
	q := `SELECT ` + serverCols + ` FROM server_instances WHERE base_url=$1`
	s, err := scanServer(r.Pool.QueryRow(ctx, q, baseURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ServerInstance{}, domain.NotFoundError("server_not_found", "server with base_url %s not found", baseURL)
		}
		return domain.ServerInstance{}, dbErr("server.get_by_base_url", err)
	}
	return s, nil
}

// List returns servers matching the filter, newest first.
func (r *ServerRepo) List(ctx context.Context, f domain.ServerFilter) ([]domain.ServerInstance, error) {
	tracer := otel.Tracer("repo.servers")
	ctx, span := tracer.Start(ctx, "servers.List")
	defer span.End()
	var w whereBuilder
	if f.IsActive != nil {
		w.add("is_active=$%d", *f.IsActive)
	}
	q := `SELECT ` + serverCols + ` FROM server_instances` + w.clause() +
		` ORDER BY id DESC` + limitOffset(f.Skip, f.Limit)
	rows, err := r.Pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, dbErr("server.list", err)
	}
	defer rows.Close()
	out := make([]domain.ServerInstance, 0)
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, dbErr("server.list", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("server.list", err)
	}
	return out, nil
}

// Update applies a partial update and returns the refreshed row.
func (r *ServerRepo) Update(ctx context.Context, id int64, p domain.ServerPatch) (domain.ServerInstance, error) {
	tracer := otel.Tracer("repo.servers")
	ctx, span := tracer.Start(ctx, "servers.Update")
	defer span.End()
	var b setBuilder
	if p.Port != nil {
		b.add("port", *p.Port)
	}
	if p.BaseURL != nil {
		b.add("base_url", *p.BaseURL)
	}
	if p.Description != nil {
		b.add("description", *p.Description)
	}
	if p.TimeoutSeconds != nil {
		b.add("timeout_seconds", *p.TimeoutSeconds)
	}
	if p.Retries != nil {
		b.add("retries", *p.Retries)
	}
	if p.WaitBetweenRetries != nil {
		b.add("wait_between_retries", *p.WaitBetweenRetries)
	}
	if p.MaxRequestsQueued != nil {
		b.add("max_requests_queued", *p.MaxRequestsQueued)
	}
	if p.IsActive != nil {
		b.add("is_active", *p.IsActive)
	}
	if p.Parameters != nil {
		b.add("parameters", p.Parameters)
	}
	if p.DeviceID != nil {
		b.add("device_id", *p.DeviceID)
	}
	if p.Notes != nil {
		b.add("notes", *p.Notes)
	}
	if b.empty() {
		return r.Get(ctx, id)
	}
	b.add("updated_at", time.Now().UTC())
	set, idx, args := b.clause(id)
	q := fmt.Sprintf(`UPDATE server_instances SET %s WHERE id=$%d RETURNING %s`, set, idx, serverCols)
	s, err := scanServer(r.Pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ServerInstance{}, domain.NotFoundError("server_not_found", "server %d not found", id)
		}
		return domain.ServerInstance{}, dbErr("server.update", err)
	}
	return s, nil
}

// Delete removes a server by id.
func (r *ServerRepo) Delete(ctx context.Context, id int64) error {
	tracer := otel.Tracer("repo.servers")
	ctx, span := tracer.Start(ctx, "servers.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM server_instances WHERE id=$1`, id)
	if err != nil {
		return dbErr("server.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("server_not_found", "server %d not found", id)
	}
	return nil
}
