package httpserver

import (
	"net/http"
	"time"

	"github.com/okedigitalmedia/voucherd/internal/domain"
	"github.com/okedigitalmedia/voucherd/internal/usecase"
)

type workerStateDTO struct {
	State     domain.WorkerState `json:"state"`
	Reason    string             `json:"reason,omitempty"`
	Owner     string             `json:"owner,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type workerHeartbeatDTO struct {
	Owner      string    `json:"owner"`
	Cycle      int       `json:"cycle"`
	LastAction string    `json:"last_action,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type workerStatusDTO struct {
	BindingID int64               `json:"binding_id"`
	State     *workerStateDTO     `json:"state,omitempty"`
	Heartbeat *workerHeartbeatDTO `json:"heartbeat,omitempty"`
	LockOwner string              `json:"lock_owner,omitempty"`
}

func fromWorkerStatus(ws usecase.WorkerStatus) workerStatusDTO {
	dto := workerStatusDTO{BindingID: ws.BindingID, LockOwner: ws.LockOwner}
	if ws.State != nil {
		dto.State = &workerStateDTO{
			State:     ws.State.State,
			Reason:    ws.State.Reason,
			Owner:     ws.State.Owner,
			UpdatedAt: ws.State.UpdatedAt,
		}
	}
	if ws.Heartbeat != nil {
		dto.Heartbeat = &workerHeartbeatDTO{
			Owner:      ws.Heartbeat.Owner,
			Cycle:      ws.Heartbeat.Cycle,
			LastAction: ws.Heartbeat.LastAction,
			UpdatedAt:  ws.Heartbeat.UpdatedAt,
		}
	}
	return dto
}

func fromWorkerStatuses(list []usecase.WorkerStatus) []workerStatusDTO {
	out := make([]workerStatusDTO, 0, len(list))
	for _, ws := range list {
		out = append(out, fromWorkerStatus(ws))
	}
	return out
}

type startWorkersRequest struct {
	BindingIDs        []int64 `json:"binding_ids" validate:"required,min=1"`
	ProductID         string  `json:"product_id" validate:"required"`
	Email             string  `json:"email" validate:"omitempty,email"`
	LimitHarga        int64   `json:"limit_harga" validate:"gte=0"`
	IntervalMS        int     `json:"interval_ms" validate:"gte=0"`
	MaxRetryStatus    int     `json:"max_retry_status" validate:"gte=0"`
	CooldownOnErrorMS int     `json:"cooldown_on_error_ms" validate:"gte=0"`
}

// StartWorkersHandler handles POST /v1/orchestration/start.
func (s *Server) StartWorkersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startWorkersRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		cfg := domain.WorkerConfig{
			IntervalMS:        req.IntervalMS,
			MaxRetryStatus:    req.MaxRetryStatus,
			CooldownOnErrorMS: req.CooldownOnErrorMS,
			Extra:             usecase.WorkerExtra(req.ProductID, req.Email, req.LimitHarga),
		}
		results, err := s.Orchestration.StartWorkers(r.Context(), req.BindingIDs, cfg)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

type workerIDsRequest struct {
	BindingIDs []int64 `json:"binding_ids" validate:"required,min=1"`
	Reason     string  `json:"reason"`
}

// PauseWorkersHandler handles POST /v1/orchestration/pause.
func (s *Server) PauseWorkersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workerIDsRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		results, err := s.Orchestration.PauseWorkers(r.Context(), req.BindingIDs, req.Reason)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

// ResumeWorkersHandler handles POST /v1/orchestration/resume.
func (s *Server) ResumeWorkersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workerIDsRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		results, err := s.Orchestration.ResumeWorkers(r.Context(), req.BindingIDs)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

// StopWorkersHandler handles POST /v1/orchestration/stop.
func (s *Server) StopWorkersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workerIDsRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		results, err := s.Orchestration.StopWorkers(r.Context(), req.BindingIDs, req.Reason)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

// WorkersStatusHandler handles POST /v1/orchestration/status.
func (s *Server) WorkersStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workerIDsRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		statuses, err := s.Orchestration.Status(r.Context(), req.BindingIDs)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"workers": fromWorkerStatuses(statuses)})
	}
}

// WorkersMonitorHandler handles GET /v1/orchestration/monitor.
func (s *Server) WorkersMonitorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.Orchestration.Monitor(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"workers":        fromWorkerStatuses(report.Workers),
			"active_workers": report.ActiveWorkers,
		})
	}
}
