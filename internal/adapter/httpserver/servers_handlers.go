package httpserver

import (
	"net/http"

	"github.com/okedigitalmedia/voucherd/internal/domain"
	"github.com/okedigitalmedia/voucherd/internal/usecase"
)

type createServerRequest struct {
	Port               int            `json:"port" validate:"required,gt=0"`
	BaseURL            string         `json:"base_url" validate:"required"`
	Description        string         `json:"description"`
	TimeoutSeconds     int            `json:"timeout"`
	Retries            int            `json:"retries"`
	WaitBetweenRetries int            `json:"wait_between_retries"`
	MaxRequestsQueued  int            `json:"max_requests_queued"`
	IsActive           *bool          `json:"is_active"`
	Parameters         map[string]any `json:"parameters"`
	DeviceID           string         `json:"device_id"`
	Notes              string         `json:"notes"`
}

// CreateServerHandler handles POST /v1/servers.
func (s *Server) CreateServerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createServerRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		srv, err := s.Servers.Create(r.Context(), usecase.CreateServerInput{
			Port:               req.Port,
			BaseURL:            req.BaseURL,
			Description:        req.Description,
			TimeoutSeconds:     req.TimeoutSeconds,
			Retries:            req.Retries,
			WaitBetweenRetries: req.WaitBetweenRetries,
			MaxRequestsQueued:  req.MaxRequestsQueued,
			IsActive:           req.IsActive,
			Parameters:         req.Parameters,
			DeviceID:           req.DeviceID,
			Notes:              req.Notes,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, fromServer(srv))
	}
}

type bulkServersRequest struct {
	StartPort          int    `json:"start_port" validate:"required,gt=0"`
	EndPort            int    `json:"end_port" validate:"required,gt=0"`
	Host               string `json:"host" validate:"required"`
	Description        string `json:"description"`
	TimeoutSeconds     int    `json:"timeout"`
	Retries            int    `json:"retries"`
	WaitBetweenRetries int    `json:"wait_between_retries"`
	MaxRequestsQueued  int    `json:"max_requests_queued"`
	IsActive           *bool  `json:"is_active"`
	StopOnFirstError   bool   `json:"stop_on_first_error"`
}

// BulkServersHandler handles POST /v1/servers/bulk and its dry-run variant.
func (s *Server) BulkServersHandler(dryRun bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkServersRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.Servers.BulkCreate(r.Context(), usecase.BulkServersInput{
			StartPort:          req.StartPort,
			EndPort:            req.EndPort,
			Host:               req.Host,
			Description:        req.Description,
			TimeoutSeconds:     req.TimeoutSeconds,
			Retries:            req.Retries,
			WaitBetweenRetries: req.WaitBetweenRetries,
			MaxRequestsQueued:  req.MaxRequestsQueued,
			IsActive:           req.IsActive,
			StopOnFirstError:   req.StopOnFirstError,
		}, dryRun)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ListServersHandler handles GET /v1/servers.
func (s *Server) ListServersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.Servers.List(r.Context(), domain.ServerFilter{
			IsActive: queryBoolPtr(r, "is_active"),
			Skip:     queryInt(r, "skip", 0),
			Limit:    queryInt(r, "limit", 0),
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromServers(list))
	}
}

// GetServerHandler handles GET /v1/servers/{id}.
func (s *Server) GetServerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		srv, err := s.Servers.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromServer(srv))
	}
}

type updateServerRequest struct {
	Port               *int           `json:"port"`
	BaseURL            *string        `json:"base_url"`
	Description        *string        `json:"description"`
	TimeoutSeconds     *int           `json:"timeout"`
	Retries            *int           `json:"retries"`
	WaitBetweenRetries *int           `json:"wait_between_retries"`
	MaxRequestsQueued  *int           `json:"max_requests_queued"`
	IsActive           *bool          `json:"is_active"`
	Parameters         map[string]any `json:"parameters"`
	DeviceID           *string        `json:"device_id"`
	Notes              *string        `json:"notes"`
}

// UpdateServerHandler handles PATCH /v1/servers/{id}.
func (s *Server) UpdateServerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req updateServerRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		srv, err := s.Servers.Update(r.Context(), id, domain.ServerPatch{
			Port:               req.Port,
			BaseURL:            req.BaseURL,
			Description:        req.Description,
			TimeoutSeconds:     req.TimeoutSeconds,
			Retries:            req.Retries,
			WaitBetweenRetries: req.WaitBetweenRetries,
			MaxRequestsQueued:  req.MaxRequestsQueued,
			IsActive:           req.IsActive,
			Parameters:         req.Parameters,
			DeviceID:           req.DeviceID,
			Notes:              req.Notes,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromServer(srv))
	}
}

type serverStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// ServerStatusHandler handles PATCH /v1/servers/{id}/status.
func (s *Server) ServerStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req serverStatusRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		srv, err := s.Servers.SetActive(r.Context(), id, *req.IsActive)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromServer(srv))
	}
}

// DeleteServerHandler handles DELETE /v1/servers/{id}.
func (s *Server) DeleteServerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.Servers.Delete(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
