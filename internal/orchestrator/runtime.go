// Package orchestrator runs the worker fleet for one process: a reconcile
// loop that watches registry desired state and per-binding worker tasks that
// drive transaction cycles. API processes never import this package.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okedigitalmedia/voucherd/internal/domain"
	"github.com/okedigitalmedia/voucherd/internal/observability"
	"github.com/okedigitalmedia/voucherd/internal/usecase"
)

const pausedPollInterval = 500 * time.Millisecond

// Defaults applied when a worker config omits a field.
const (
	defaultIntervalMS = 5000
	defaultCooldownMS = 10000
)

// Runtime reconciles registry desired state into local worker tasks. One
// Runtime per orchestrator process; multiple processes may run concurrently
// and compete for per-binding locks.
type Runtime struct {
	InstanceID   string
	Registry     domain.WorkerRegistry
	Bindings     domain.BindingRepo
	Transactions usecase.TransactionService
	Interval     time.Duration
	Logger       *slog.Logger

	mu    sync.Mutex
	tasks map[int64]struct{}
	wg    sync.WaitGroup
}

// New constructs a Runtime.
func New(instanceID string, registry domain.WorkerRegistry, bindings domain.BindingRepo,
	transactions usecase.TransactionService, interval time.Duration, logger *slog.Logger) *Runtime {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		InstanceID:   instanceID,
		Registry:     registry,
		Bindings:     bindings,
		Transactions: transactions,
		Interval:     interval,
		Logger:       logger,
		tasks:        map[int64]struct{}{},
	}
}

func (r *Runtime) owner(bindingID int64) string {
	return fmt.Sprintf("%s:%d", r.InstanceID, bindingID)
}

// Run blocks until the context is cancelled, then waits for all worker tasks
// to reach a cycle boundary and exit.
func (r *Runtime) Run(ctx context.Context) error {
	r.Logger.Info("orchestrator runtime started",
		slog.String("instance_id", r.InstanceID),
		slog.Duration("reconcile_interval", r.Interval))
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("orchestrator runtime stopping; waiting for workers")
			r.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			if err := r.reconcile(ctx); err != nil {
				r.Logger.Error("reconcile pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// reconcile spawns a worker task for every RUNNING or PAUSED desired state
// that has no live local task.
func (r *Runtime) reconcile(ctx context.Context) error {
	states, err := r.Registry.ListStates(ctx)
	if err != nil {
		return err
	}
	for _, st := range states {
		if st.State != domain.WorkerRunning && st.State != domain.WorkerPaused {
			continue
		}
		r.spawn(ctx, st.BindingID)
	}
	return nil
}

// spawn registers a local task for the binding unless one is already live.
func (r *Runtime) spawn(ctx context.Context, bindingID int64) {
	r.mu.Lock()
	if _, live := r.tasks[bindingID]; live {
		r.mu.Unlock()
		return
	}
	r.tasks[bindingID] = struct{}{}
	r.mu.Unlock()

	r.wg.Add(1)
	observability.WorkersActive.Inc()
	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.tasks, bindingID)
			r.mu.Unlock()
			observability.WorkersActive.Dec()
			r.wg.Done()
		}()
		r.runWorker(ctx, bindingID)
	}()
}

// TaskCount reports the number of live local worker tasks.
func (r *Runtime) TaskCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// workerParams is the per-worker purchase configuration read from the
// registry config extra map.
type workerParams struct {
	interval   time.Duration
	cooldown   time.Duration
	productID  string
	email      string
	limitHarga int64
}

func paramsFrom(cfg domain.WorkerConfig) workerParams {
	p := workerParams{
		interval: defaultIntervalMS * time.Millisecond,
		cooldown: defaultCooldownMS * time.Millisecond,
	}
	if cfg.IntervalMS > 0 {
		p.interval = time.Duration(cfg.IntervalMS) * time.Millisecond
	}
	if cfg.CooldownOnErrorMS > 0 {
		p.cooldown = time.Duration(cfg.CooldownOnErrorMS) * time.Millisecond
	}
	p.productID = cfg.Extra["product_id"]
	p.email = cfg.Extra["email"]
	if raw := cfg.Extra["limit_harga"]; raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			p.limitHarga = v
		}
	}
	return p
}

// runWorker is the per-binding task. It acquires the distributed lock, then
// loops transaction cycles until desired state turns STOPPED, the lock is
// lost, or the process shuts down.
func (r *Runtime) runWorker(ctx context.Context, bindingID int64) {
	owner := r.owner(bindingID)
	lg := r.Logger.With(slog.Int64("binding_id", bindingID), slog.String("owner", owner))

	ok, err := r.Registry.AcquireLock(ctx, bindingID, owner)
	if err != nil {
		lg.Error("lock acquisition failed", slog.String("error", err.Error()))
		return
	}
	if !ok {
		// Another orchestrator owns this binding.
		return
	}
	defer func() {
		released, rerr := r.Registry.ReleaseLock(context.WithoutCancel(ctx), bindingID, owner)
		if rerr != nil {
			lg.Error("lock release failed", slog.String("error", rerr.Error()))
		} else if !released {
			lg.Warn("lock no longer owned at release")
		}
	}()

	cfg, err := r.Registry.GetConfig(ctx, bindingID)
	if err != nil {
		lg.Error("config read failed", slog.String("error", err.Error()))
		return
	}
	if cfg == nil {
		lg.Warn("worker config missing; stopping worker")
		if _, serr := r.Registry.Stop(ctx, bindingID, "missing_worker_config"); serr != nil {
			lg.Error("stop on missing config failed", slog.String("error", serr.Error()))
		}
		return
	}
	params := paramsFrom(*cfg)
	lg.Info("worker started",
		slog.Duration("interval", params.interval),
		slog.String("product_id", params.productID))

	cycle := 0
	for {
		if ctx.Err() != nil {
			return
		}
		state, err := r.Registry.GetState(ctx, bindingID)
		if err != nil {
			lg.Error("state read failed", slog.String("error", err.Error()))
			return
		}
		if state == nil || state.State == domain.WorkerStopped {
			lg.Info("desired state stopped; worker exiting", slog.Int("cycles", cycle))
			return
		}

		held, err := r.Registry.RefreshLock(ctx, bindingID, owner)
		if err != nil {
			lg.Error("lock refresh failed", slog.String("error", err.Error()))
			return
		}
		if !held {
			lg.Warn("lock lost; worker exiting", slog.Int("cycles", cycle))
			return
		}
		if err := r.Registry.Heartbeat(ctx, domain.WorkerHeartbeat{
			BindingID:  bindingID,
			Owner:      owner,
			Cycle:      cycle,
			LastAction: "state:" + string(state.State),
		}); err != nil {
			lg.Error("heartbeat failed", slog.String("error", err.Error()))
		}

		if state.State == domain.WorkerPaused {
			if !sleepCtx(ctx, pausedPollInterval) {
				return
			}
			continue
		}

		result, stopReason := r.runCycle(ctx, lg, bindingID, owner, cycle, params)
		observability.WorkerCyclesTotal.WithLabelValues(result).Inc()
		switch result {
		case cycleResultPrecheckStop:
			if _, serr := r.Registry.Stop(ctx, bindingID, stopReason); serr != nil {
				lg.Error("self-stop failed", slog.String("error", serr.Error()))
			}
			lg.Info("balance exhausted; worker self-stopped", slog.String("reason", stopReason))
			return
		case cycleResultError:
			if !sleepCtx(ctx, params.cooldown) {
				return
			}
			continue
		}

		cycle++
		state, err = r.Registry.GetState(ctx, bindingID)
		if err != nil {
			lg.Error("state read failed", slog.String("error", err.Error()))
			return
		}
		if state == nil || state.State == domain.WorkerStopped {
			lg.Info("desired state stopped; worker exiting", slog.Int("cycles", cycle))
			return
		}
		if !sleepCtx(ctx, params.interval) {
			return
		}
	}
}

// Cycle results.
const (
	cycleResultOK           = "ok"
	cycleResultError        = "error"
	cycleResultPrecheckStop = "precheck_stop"
)

// runCycle runs one transaction cycle: start a purchase, then auto-decide if
// it is still in flight. Panics and errors are converted into a cycle_error
// heartbeat so one bad cycle never kills the worker.
func (r *Runtime) runCycle(ctx context.Context, lg *slog.Logger, bindingID int64,
	owner string, cycle int, params workerParams) (result, stopReason string) {
	defer func() {
		if rec := recover(); rec != nil {
			lg.Error("worker cycle panicked", slog.Any("panic", rec))
			r.heartbeatCycleError(ctx, bindingID, owner, cycle, "panic")
			result = cycleResultError
		}
	}()

	trx, err := r.Transactions.Start(ctx, bindingID, params.productID, params.email, params.limitHarga)
	if err != nil {
		lg.Warn("transaction start failed",
			slog.String("error_code", domain.ErrorCode(err)), slog.String("error", err.Error()))
		r.heartbeatCycleError(ctx, bindingID, owner, cycle, domain.ErrorName(err))
		return cycleResultError, ""
	}

	if trx.Status == domain.TrxProcessing {
		trx, _, err = r.Transactions.CheckBalanceAndContinueOrStop(ctx, trx.ID)
		if err != nil {
			lg.Warn("balance check failed",
				slog.String("error_code", domain.ErrorCode(err)), slog.String("error", err.Error()))
			r.heartbeatCycleError(ctx, bindingID, owner, cycle, domain.ErrorName(err))
			return cycleResultError, ""
		}
	}

	if trx.Status == domain.TrxGagal && containsPrecheckStop(trx.ErrorMessage) {
		return cycleResultPrecheckStop, trx.ErrorMessage
	}
	lg.Debug("worker cycle done",
		slog.Int64("transaction_id", trx.ID),
		slog.String("status", string(trx.Status)))
	return cycleResultOK, ""
}

func (r *Runtime) heartbeatCycleError(ctx context.Context, bindingID int64, owner string, cycle int, name string) {
	if err := r.Registry.Heartbeat(ctx, domain.WorkerHeartbeat{
		BindingID:  bindingID,
		Owner:      owner,
		Cycle:      cycle,
		LastAction: "cycle_error:" + name,
	}); err != nil {
		r.Logger.Error("cycle error heartbeat failed",
			slog.Int64("binding_id", bindingID), slog.String("error", err.Error()))
	}
}

func containsPrecheckStop(msg string) bool {
	return strings.Contains(msg, usecase.PrecheckStopPrefix)
}

// sleepCtx sleeps for d unless the context is cancelled first; it reports
// whether the full sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
