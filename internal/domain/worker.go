package domain

import (
	"context"
	"time"
)

// WorkerState is the shared desired state of a binding worker.
type WorkerState string

// Worker desired-state values.
const (
	WorkerIdle    WorkerState = "idle"
	WorkerRunning WorkerState = "running"
	WorkerPaused  WorkerState = "paused"
	WorkerStopped WorkerState = "stopped"
)

// WorkerConfig is the runtime configuration attached to a worker.
type WorkerConfig struct {
	IntervalMS        int
	MaxRetryStatus    int
	CooldownOnErrorMS int
	Extra             map[string]string
}

// WorkerStateRecord is the persisted desired-state snapshot for a binding.
type WorkerStateRecord struct {
	BindingID int64
	State     WorkerState
	Reason    string
	UpdatedAt time.Time
	Owner     string
}

// WorkerHeartbeat is the liveness payload emitted each worker cycle.
type WorkerHeartbeat struct {
	BindingID  int64
	Owner      string
	Cycle      int
	LastAction string
	UpdatedAt  time.Time
}

// WorkerRegistry coordinates worker desired state, config, locks, and
// heartbeats through a shared key-value store. Locks are NX with TTL;
// refresh and release are owner-scoped compare operations.
type WorkerRegistry interface {
	Start(ctx context.Context, bindingID int64, owner string, cfg WorkerConfig) (bool, error)
	Pause(ctx context.Context, bindingID int64, reason string) (bool, error)
	Resume(ctx context.Context, bindingID int64) (bool, error)
	Stop(ctx context.Context, bindingID int64, reason string) (bool, error)

	GetState(ctx context.Context, bindingID int64) (*WorkerStateRecord, error)
	GetConfig(ctx context.Context, bindingID int64) (*WorkerConfig, error)
	ListStates(ctx context.Context) ([]WorkerStateRecord, error)

	AcquireLock(ctx context.Context, bindingID int64, owner string) (bool, error)
	RefreshLock(ctx context.Context, bindingID int64, owner string) (bool, error)
	ReleaseLock(ctx context.Context, bindingID int64, owner string) (bool, error)
	GetLockOwner(ctx context.Context, bindingID int64) (string, error)

	Heartbeat(ctx context.Context, hb WorkerHeartbeat) error
	GetHeartbeat(ctx context.Context, bindingID int64) (*WorkerHeartbeat, error)
}
