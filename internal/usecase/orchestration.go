package usecase

import (
	"context"
	"errors"
	"strconv"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

// Per-item worker action outcomes.
const (
	WorkerStarted        = "started"
	WorkerAlreadyRunning = "worker_already_running"
	WorkerPaused         = "paused"
	WorkerNotRunning     = "worker_not_running"
	WorkerResumed        = "resumed"
	WorkerNotPaused      = "worker_not_paused"
	WorkerStopped        = "stopped"
	WorkerNotFound       = "worker_not_found"
)

// OrchestrationService is the control plane over the worker registry. It only
// mutates desired state; worker tasks live in orchestrator processes.
type OrchestrationService struct {
	Registry domain.WorkerRegistry
	Bindings domain.BindingRepo
}

// NewOrchestrationService constructs an OrchestrationService.
func NewOrchestrationService(registry domain.WorkerRegistry, bindings domain.BindingRepo) OrchestrationService {
	return OrchestrationService{Registry: registry, Bindings: bindings}
}

// WorkerExtra packs the purchase parameters into the config Extra map that
// worker runtimes read back.
func WorkerExtra(productID, email string, limitHarga int64) map[string]string {
	return map[string]string{
		"product_id":  productID,
		"email":       email,
		"limit_harga": strconv.FormatInt(limitHarga, 10),
	}
}

// WorkerActionResult is the per-binding outcome of a bulk control action.
type WorkerActionResult struct {
	BindingID int64  `json:"binding_id"`
	OK        bool   `json:"ok"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

// WorkerStatus joins desired state, heartbeat, and lock owner for one binding.
type WorkerStatus struct {
	BindingID int64                     `json:"binding_id"`
	State     *domain.WorkerStateRecord `json:"state,omitempty"`
	Heartbeat *domain.WorkerHeartbeat   `json:"heartbeat,omitempty"`
	LockOwner string                    `json:"lock_owner,omitempty"`
}

// MonitorReport is the dashboard view over all known workers.
type MonitorReport struct {
	Workers       []WorkerStatus `json:"workers"`
	ActiveWorkers int            `json:"active_workers"`
}

/// ValidateBindingStartable checks that a binding can host a worker: it must
// exist, be active, and have completed login.
func (s OrchestrationService) ValidateBindingStartable(ctx context.Context, bindingID int64) (bool, string) {
	b, err := s.Bindings.Get(ctx, bindingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, "binding_not_found"
		}
		return false, domain.ErrorCode(err)
	}
	if !b.Active() {
		return false, "binding_logged_out"
	}
	if b.Step != domain.StepTokenLoginFetched {
		return false, "binding_step_not_ready"
	}
	return true, ""
}

// StartWorkers writes the running desired state for each startable binding.
func (s OrchestrationService) StartWorkers(ctx context.Context, bindingIDs []int64, cfg domain.WorkerConfig) ([]WorkerActionResult, error) {
	if len(bindingIDs) == 0 {
		return nil, domain.ValidationError("orchestration_no_bindings", "binding_ids must not be empty")
	}
	out := make([]WorkerActionResult, 0, len(bindingIDs))
	for _, id := range bindingIDs {
		if ok, msg := s.ValidateBindingStartable(ctx, id); !ok {
			out = append(out, WorkerActionResult{BindingID: id, OK: false, Message: msg})
			continue
		}
		changed, err := s.Registry.Start(ctx, id, "", cfg)
		if err != nil {
			return out, err
		}
		if !changed {
			out = append(out, WorkerActionResult{BindingID: id, OK: false, Status: WorkerAlreadyRunning})
			continue
		}
		out = append(out, WorkerActionResult{BindingID: id, OK: true, Status: WorkerStarted})
	}
	return out, nil
}

// PauseWorkers pauses running workers.
func (s OrchestrationService) PauseWorkers(ctx context.Context, bindingIDs []int64, reason string) ([]WorkerActionResult, error) {
	if len(bindingIDs) == 0 {
		return nil, domain.ValidationError("orchestration_no_bindings", "binding_ids must not be empty")
	}
	out := make([]WorkerActionResult, 0, len(bindingIDs))
	for _, id := range bindingIDs {
		ok, err := s.Registry.Pause(ctx, id, reason)
		if err != nil {
			return out, err
		}
		status := WorkerPaused
		if !ok {
			status = WorkerNotRunning
		}
		out = append(out, WorkerActionResult{BindingID: id, OK: ok, Status: status})
	}
	return out, nil
}

// ResumeWorkers resumes paused workers.
func (s OrchestrationService) ResumeWorkers(ctx context.Context, bindingIDs []int64) ([]WorkerActionResult, error) {
	if len(bindingIDs) == 0 {
		return nil, domain.ValidationError("orchestration_no_bindings", "binding_ids must not be empty")
	}
	out := make([]WorkerActionResult, 0, len(bindingIDs))
	for _, id := range bindingIDs {
		ok, err := s.Registry.Resume(ctx, id)
		if err != nil {
			return out, err
		}
		status := WorkerResumed
		if !ok {
			status = WorkerNotPaused
		}
		out = append(out, WorkerActionResult{BindingID: id, OK: ok, Status: status})
	}
	return out, nil
}

// StopWorkers writes the stopped desired state; workers observe it at the
// next cycle boundary.
func (s OrchestrationService) StopWorkers(ctx context.Context, bindingIDs []int64, reason string) ([]WorkerActionResult, error) {
	if len(bindingIDs) == 0 {
		return nil, domain.ValidationError("orchestration_no_bindings", "binding_ids must not be empty")
	}
	out := make([]WorkerActionResult, 0, len(bindingIDs))
	for _, id := range bindingIDs {
		ok, err := s.Registry.Stop(ctx, id, reason)
		if err != nil {
			return out, err
		}
		status := WorkerStopped
		if !ok {
			status = WorkerNotFound
		}
		out = append(out, WorkerActionResult{BindingID: id, OK: ok, Status: status})
	}
	return out, nil
}

// Status reports state, heartbeat, and lock owner for the given bindings.
func (s OrchestrationService) Status(ctx context.Context, bindingIDs []int64) ([]WorkerStatus, error) {
	if len(bindingIDs) == 0 {
		return nil, domain.ValidationError("orchestration_no_bindings", "binding_ids must not be empty")
	}
	out := make([]WorkerStatus, 0, len(bindingIDs))
	for _, id := range bindingIDs {
		st, err := s.workerStatus(ctx, id)
		if err != nil {
			return out, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s OrchestrationService) workerStatus(ctx context.Context, bindingID int64) (WorkerStatus, error) {
	state, err := s.Registry.GetState(ctx, bindingID)
	if err != nil {
		return WorkerStatus{}, err
	}
	hb, err := s.Registry.GetHeartbeat(ctx, bindingID)
	if err != nil {
		return WorkerStatus{}, err
	}
	owner, err := s.Registry.GetLockOwner(ctx, bindingID)
	if err != nil {
		return WorkerStatus{}, err
	}
	return WorkerStatus{BindingID: bindingID, State: state, Heartbeat: hb, LockOwner: owner}, nil
}

// Monitor joins every known state record with its heartbeat and lock owner.
// active_workers counts the RUNNING and PAUSED records.
func (s OrchestrationService) Monitor(ctx context.Context) (MonitorReport, error) {
	states, err := s.Registry.ListStates(ctx)
	if err != nil {
		return MonitorReport{}, err
	}
	report := MonitorReport{Workers: make([]WorkerStatus, 0, len(states))}
	for _, st := range states {
		ws, err := s.workerStatus(ctx, st.BindingID)
		if err != nil {
			return MonitorReport{}, err
		}
		report.Workers = append(report.Workers, ws)
		if st.State == domain.WorkerRunning || st.State == domain.WorkerPaused {
			report.ActiveWorkers++
		}
	}
	return report, nil
}
