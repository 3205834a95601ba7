// Package redisreg implements the shared worker registry on Redis. Desired
// state and config live in hashes, ownership in NX locks with TTL, and
// liveness in expiring heartbeat hashes, so any orchestrator replica can
// observe and take over work.
package redisreg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

const (
	stateKeyPrefix = "wrk:state:"
	cfgKeyPrefix   = "wrk:cfg:"
	lockKeyPrefix  = "wrk:lock:"
	hbKeyPrefix    = "wrk:hb:"
)

// refresh extends the lock TTL only when the caller still owns it.
const luaRefreshLock = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// release deletes the lock only when the caller still owns it.
const luaReleaseLock = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Registry is the Redis-backed implementation of domain.WorkerRegistry.
type Registry struct {
	rdb           *redis.Client
	lockTTL       time.Duration
	heartbeatTTL  time.Duration
	refreshScript *redis.Script
	releaseScript *redis.Script
}

// New constructs a Registry over an existing Redis client.
func New(rdb *redis.Client, lockTTL, heartbeatTTL time.Duration) *Registry {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	if heartbeatTTL <= 0 {
		heartbeatTTL = 90 * time.Second
	}
	return &Registry{
		rdb:           rdb,
		lockTTL:       lockTTL,
		heartbeatTTL:  heartbeatTTL,
		refreshScript: redis.NewScript(luaRefreshLock),
		releaseScript: redis.NewScript(luaReleaseLock),
	}
}

// NewClient builds a go-redis client from a redis:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=registry.new_client: %w", err)
	}
	return redis.NewClient(opts), nil
}

func stateKey(id int64) string { return stateKeyPrefix + strconv.FormatInt(id, 10) }
func cfgKey(id int64) string   { return cfgKeyPrefix + strconv.FormatInt(id, 10) }
func lockKey(id int64) string  { return lockKeyPrefix + strconv.FormatInt(id, 10) }
func hbKey(id int64) string    { return hbKeyPrefix + strconv.FormatInt(id, 10) }

// Start records the running desired state and the worker config. A worker
// that is already RUNNING is left untouched, state and config both, so a
// second start cannot swap parameters under a live worker.
func (r *Registry) Start(ctx context.Context, bindingID int64, owner string, cfg domain.WorkerConfig) (bool, error) {
	prev, err := r.GetState(ctx, bindingID)
	if err != nil {
		return false, err
	}
	if prev != nil && prev.State == domain.WorkerRunning {
		return false, nil
	}

	cfgFields := map[string]any{
		"interval_ms":          cfg.IntervalMS,
		"max_retry_status":     cfg.MaxRetryStatus,
		"cooldown_on_error_ms": cfg.CooldownOnErrorMS,
	}
	for k, v := range cfg.Extra {
		cfgFields["extra:"+k] = v
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, cfgKey(bindingID))
	pipe.HSet(ctx, cfgKey(bindingID), cfgFields)
	pipe.HSet(ctx, stateKey(bindingID), map[string]any{
		"binding_id": bindingID,
		"state":      string(domain.WorkerRunning),
		"reason":     "",
		"owner":      owner,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("op=registry.start: %w", err)
	}
	return true, nil
}

// Pause moves a running worker to paused. Pausing an already-paused worker
// reports ok without rewriting the record. Returns false only when the worker
// is stopped or unknown.
func (r *Registry) Pause(ctx context.Context, bindingID int64, reason string) (bool, error) {
	return r.transition(ctx, bindingID, domain.WorkerPaused, reason, domain.WorkerRunning)
}

// Resume moves a paused worker back to running. Resuming a running worker
// reports ok without rewriting the record.
func (r *Registry) Resume(ctx context.Context, bindingID int64) (bool, error) {
	return r.transition(ctx, bindingID, domain.WorkerRunning, "", domain.WorkerPaused)
}

// Stop marks the worker stopped regardless of its current state. Returns
// false when no state record exists or it is already stopped.
func (r *Registry) Stop(ctx context.Context, bindingID int64, reason string) (bool, error) {
	prev, err := r.GetState(ctx, bindingID)
	if err != nil {
		return false, err
	}
	if prev == nil || prev.State == domain.WorkerStopped {
		return false, nil
	}
	err = r.rdb.HSet(ctx, stateKey(bindingID), map[string]any{
		"binding_id": bindingID,
		"state":      string(domain.WorkerStopped),
		"reason":     reason,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return false, fmt.Errorf("op=registry.stop: %w", err)
	}
	return true, nil
}

func (r *Registry) transition(ctx context.Context, bindingID int64, to domain.WorkerState, reason string, from ...domain.WorkerState) (bool, error) {
	prev, err := r.GetState(ctx, bindingID)
	if err != nil {
		return false, err
	}
	if prev == nil {
		return false, nil
	}
	// repeating the call the worker already honors is fine as-is
	if prev.State == to {
		return true, nil
	}
	allowed := false
	for _, f := range from {
		if prev.State == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	err = r.rdb.HSet(ctx, stateKey(bindingID), map[string]any{
		"binding_id": bindingID,
		"state":      string(to),
		"reason":     reason,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return false, fmt.Errorf("op=registry.transition: %w", err)
	}
	return true, nil
}

// GetState returns the desired-state record, or nil when none exists.
func (r *Registry) GetState(ctx context.Context, bindingID int64) (*domain.WorkerStateRecord, error) {
	fields, err := r.rdb.HGetAll(ctx, stateKey(bindingID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("op=registry.get_state: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	rec := stateFromFields(bindingID, fields)
	return &rec, nil
}

func stateFromFields(bindingID int64, fields map[string]string) domain.WorkerStateRecord {
	rec := domain.WorkerStateRecord{
		BindingID: bindingID,
		State:     domain.WorkerState(fields["state"]),
		Reason:    fields["reason"],
		Owner:     fields["owner"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		rec.UpdatedAt = ts
	}
	return rec
}

// GetConfig returns the worker config, or nil when none exists.
func (r *Registry) GetConfig(ctx context.Context, bindingID int64) (*domain.WorkerConfig, error) {
	fields, err := r.rdb.HGetAll(ctx, cfgKey(bindingID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("op=registry.get_config: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	cfg := domain.WorkerConfig{}
	cfg.IntervalMS, _ = strconv.Atoi(fields["interval_ms"])
	cfg.MaxRetryStatus, _ = strconv.Atoi(fields["max_retry_status"])
	cfg.CooldownOnErrorMS, _ = strconv.Atoi(fields["cooldown_on_error_ms"])
	for k, v := range fields {
		if rest, ok := strings.CutPrefix(k, "extra:"); ok {
			if cfg.Extra == nil {
				cfg.Extra = map[string]string{}
			}
			cfg.Extra[rest] = v
		}
	}
	return &cfg, nil
}

// ListStates scans all desired-state records.
func (r *Registry) ListStates(ctx context.Context) ([]domain.WorkerStateRecord, error) {
	out := make([]domain.WorkerStateRecord, 0)
	iter := r.rdb.Scan(ctx, 0, stateKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id, err := strconv.ParseInt(strings.TrimPrefix(key, stateKeyPrefix), 10, 64)
		if err != nil {
			continue
		}
		fields, err := r.rdb.HGetAll(ctx, key).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		out = append(out, stateFromFields(id, fields))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("op=registry.list_states: %w", err)
	}
	return out, nil
}

// AcquireLock takes the per-binding worker lock with SET NX EX semantics.
func (r *Registry) AcquireLock(ctx context.Context, bindingID int64, owner string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, lockKey(bindingID), owner, r.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("op=registry.acquire_lock: %w", err)
	}
	return ok, nil
}

// RefreshLock extends the lock TTL if the caller still owns it.
func (r *Registry) RefreshLock(ctx context.Context, bindingID int64, owner string) (bool, error) {
	res, err := r.refreshScript.Run(ctx, r.rdb,
		[]string{lockKey(bindingID)}, owner, r.lockTTL.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("op=registry.refresh_lock: %w", err)
	}
	return res == 1, nil
}

// ReleaseLock deletes the lock if the caller still owns it.
func (r *Registry) ReleaseLock(ctx context.Context, bindingID int64, owner string) (bool, error) {
	res, err := r.releaseScript.Run(ctx, r.rdb, []string{lockKey(bindingID)}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("op=registry.release_lock: %w", err)
	}
	return res == 1, nil
}

// GetLockOwner returns the current lock owner, or empty when unlocked.
func (r *Registry) GetLockOwner(ctx context.Context, bindingID int64) (string, error) {
	owner, err := r.rdb.Get(ctx, lockKey(bindingID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("op=registry.get_lock_owner: %w", err)
	}
	return owner, nil
}

// Heartbeat writes the liveness payload with the heartbeat TTL.
func (r *Registry) Heartbeat(ctx context.Context, hb domain.WorkerHeartbeat) error {
	key := hbKey(hb.BindingID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"binding_id":  hb.BindingID,
		"owner":       hb.Owner,
		"cycle":       hb.Cycle,
		"last_action": hb.LastAction,
		"updated_at":  time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, r.heartbeatTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("op=registry.heartbeat: %w", err)
	}
	return nil
}

// GetHeartbeat returns the latest heartbeat, or nil when expired or absent.
func (r *Registry) GetHeartbeat(ctx context.Context, bindingID int64) (*domain.WorkerHeartbeat, error) {
	fields, err := r.rdb.HGetAll(ctx, hbKey(bindingID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("op=registry.get_heartbeat: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	hb := domain.WorkerHeartbeat{
		BindingID:  bindingID,
		Owner:      fields["owner"],
		LastAction: fields["last_action"],
	}
	hb.Cycle, _ = strconv.Atoi(fields["cycle"])
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		hb.UpdatedAt = ts
	}
	return &hb, nil
}
