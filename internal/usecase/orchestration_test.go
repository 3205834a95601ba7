package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

func (e *env) orchestrationService(reg domain.WorkerRegistry) OrchestrationService {
	return NewOrchestrationService(reg, e.bindings)
}

func TestOrchestrationStartWorkers_ValidatesBindings(t *testing.T) {
	e := newEnv()
	reg := newFakeRegistry()
	svc := e.orchestrationService(reg)
	ready := e.seedBinding(t, domain.StepTokenLoginFetched)
	pending := e.seedBinding(t, domain.StepOTPRequested)

	res, err := svc.StartWorkers(context.Background(), []int64{ready.ID, pending.ID, 999}, domain.WorkerConfig{IntervalMS: 5000})
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.True(t, res[0].OK)
	assert.Equal(t, WorkerStarted, res[0].Status)
	assert.False(t, res[1].OK)
	assert.Equal(t, "binding_step_not_ready", res[1].Message)
	assert.False(t, res[2].OK)
	assert.Equal(t, "binding_not_found", res[2].Message)

	st, err := reg.GetState(context.Background(), ready.ID)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, domain.WorkerRunning, st.State)
	cfg, err := reg.GetConfig(context.Background(), ready.ID)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 5000, cfg.IntervalMS)
}

func TestOrchestrationStartWorkers_RepeatIsReported(t *testing.T) {
	e := newEnv()
	reg := newFakeRegistry()
	svc := e.orchestrationService(reg)
	b := e.seedBinding(t, domain.StepTokenLoginFetched)

	_, err := svc.StartWorkers(context.Background(), []int64{b.ID}, domain.WorkerConfig{})
	require.NoError(t, err)
	res, err := svc.StartWorkers(context.Background(), []int64{b.ID}, domain.WorkerConfig{})
	require.NoError(t, err)
	assert.False(t, res[0].OK)
	assert.Equal(t, WorkerAlreadyRunning, res[0].Status)
}

func TestOrchestrationStartWorkers_LoggedOutBindingRefused(t *testing.T) {
	e := newEnv()
	reg := newFakeRegistry()
	svc := e.orchestrationService(reg)
	b := e.seedBinding(t, domain.StepTokenLoginFetched)
	_, err := e.bindingService().Logout(context.Background(), b.ID, "", "", "")
	require.NoError(t, err)

	res, err := svc.StartWorkers(context.Background(), []int64{b.ID}, domain.WorkerConfig{})
	require.NoError(t, err)
	assert.False(t, res[0].OK)
	assert.Equal(t, "binding_logged_out", res[0].Message)
}

func TestOrchestrationPauseResumeStop(t *testing.T) {
	e := newEnv()
	reg := newFakeRegistry()
	svc := e.orchestrationService(reg)
	b := e.seedBinding(t, domain.StepTokenLoginFetched)
	ctx := context.Background()

	_, err := svc.StartWorkers(ctx, []int64{b.ID}, domain.WorkerConfig{})
	require.NoError(t, err)

	paused, err := svc.PauseWorkers(ctx, []int64{b.ID, 999}, "low balance window")
	require.NoError(t, err)
	assert.True(t, paused[0].OK)
	assert.Equal(t, WorkerPaused, paused[0].Status)
	assert.False(t, paused[1].OK)
	assert.Equal(t, WorkerNotRunning, paused[1].Status)

	resumed, err := svc.ResumeWorkers(ctx, []int64{b.ID})
	require.NoError(t, err)
	assert.True(t, resumed[0].OK)

	// Resuming a running worker reports ok, the state is already right.
	again, err := svc.ResumeWorkers(ctx, []int64{b.ID})
	require.NoError(t, err)
	assert.True(t, again[0].OK)
	assert.Equal(t, WorkerResumed, again[0].Status)

	// A repeated pause reports ok as well, keeping the first reason.
	rePaused, err := svc.PauseWorkers(ctx, []int64{b.ID}, "first")
	require.NoError(t, err)
	require.True(t, rePaused[0].OK)
	rePaused, err = svc.PauseWorkers(ctx, []int64{b.ID}, "second")
	require.NoError(t, err)
	assert.True(t, rePaused[0].OK)
	assert.Equal(t, WorkerPaused, rePaused[0].Status)
	st0, err := reg.GetState(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", st0.Reason)
	_, err = svc.ResumeWorkers(ctx, []int64{b.ID})
	require.NoError(t, err)

	stopped, err := svc.StopWorkers(ctx, []int64{b.ID}, "shift over")
	require.NoError(t, err)
	assert.True(t, stopped[0].OK)
	st, err := reg.GetState(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, domain.WorkerStopped, st.State)
	assert.Equal(t, "shift over", st.Reason)
}

func TestOrchestrationEmptyIDsRejected(t *testing.T) {
	e := newEnv()
	svc := e.orchestrationService(newFakeRegistry())
	_, err := svc.StartWorkers(context.Background(), nil, domain.WorkerConfig{})
	require.Error(t, err)
	assert.Equal(t, "orchestration_no_bindings", domain.ErrorCode(err))
	_, err = svc.Status(context.Background(), nil)
	require.Error(t, err)
}

func TestOrchestrationMonitor_CountsActive(t *testing.T) {
	e := newEnv()
	reg := newFakeRegistry()
	svc := e.orchestrationService(reg)
	ctx := context.Background()
	b1 := e.seedBinding(t, domain.StepTokenLoginFetched)
	b2 := e.seedBinding(t, domain.StepTokenLoginFetched)
	b3 := e.seedBinding(t, domain.StepTokenLoginFetched)

	_, err := svc.StartWorkers(ctx, []int64{b1.ID, b2.ID, b3.ID}, domain.WorkerConfig{})
	require.NoError(t, err)
	_, err = svc.PauseWorkers(ctx, []int64{b2.ID}, "hold")
	require.NoError(t, err)
	_, err = svc.StopWorkers(ctx, []int64{b3.ID}, "")
	require.NoError(t, err)

	require.NoError(t, reg.Heartbeat(ctx, domain.WorkerHeartbeat{
		BindingID: b1.ID, Owner: "orch-1:" + itoa(int(b1.ID)), Cycle: 3, LastAction: "state:running",
	}))
	_, err = reg.AcquireLock(ctx, b1.ID, "orch-1:"+itoa(int(b1.ID)))
	require.NoError(t, err)

	report, err := svc.Monitor(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Workers, 3)
	assert.Equal(t, 2, report.ActiveWorkers)

	var b1Status *WorkerStatus
	for i := range report.Workers {
		if report.Workers[i].BindingID == b1.ID {
			b1Status = &report.Workers[i]
		}
	}
	require.NotNil(t, b1Status)
	require.NotNil(t, b1Status.Heartbeat)
	assert.Equal(t, 3, b1Status.Heartbeat.Cycle)
	assert.NotEmpty(t, b1Status.LockOwner)
}
