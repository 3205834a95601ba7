package httpserver

import (
	"net/http"

	"github.com/okedigitalmedia/voucherd/internal/domain"
	"github.com/okedigitalmedia/voucherd/internal/usecase"
)

type createAccountRequest struct {
	MSISDN     string `json:"msisdn" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	BatchID    string `json:"batch_id" validate:"required"`
	PIN        string `json:"pin"`
	Status     string `json:"status"`
	IsReseller bool   `json:"is_reseller"`
	Notes      string `json:"notes"`
}

func (req createAccountRequest) toInput() usecase.CreateAccountInput {
	return usecase.CreateAccountInput{
		MSISDN:     req.MSISDN,
		Email:      req.Email,
		BatchID:    req.BatchID,
		PIN:        req.PIN,
		Status:     domain.AccountStatus(req.Status),
		IsReseller: req.IsReseller,
		Notes:      req.Notes,
	}
}

// CreateAccountHandler handles POST /v1/accounts.
func (s *Server) CreateAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAccountRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		acc, err := s.Accounts.Create(r.Context(), req.toInput())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, fromAccount(acc))
	}
}

type bulkAccountsRequest struct {
	Items            []createAccountRequest `json:"items" validate:"required,min=1"`
	StopOnFirstError bool                   `json:"stop_on_first_error"`
}

// BulkAccountsHandler handles POST /v1/accounts/bulk and its dry-run variant.
func (s *Server) BulkAccountsHandler(dryRun bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkAccountsRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		items := make([]usecase.CreateAccountInput, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, item.toInput())
		}
		res, err := s.Accounts.BulkCreate(r.Context(), usecase.BulkAccountsInput{
			Items:            items,
			StopOnFirstError: req.StopOnFirstError,
		}, dryRun)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ListAccountsHandler handles GET /v1/accounts.
func (s *Server) ListAccountsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := domain.AccountFilter{
			IsReseller: queryBoolPtr(r, "is_reseller"),
			BatchID:    r.URL.Query().Get("batch_id"),
			Email:      r.URL.Query().Get("email"),
			MSISDN:     r.URL.Query().Get("msisdn"),
			Skip:       queryInt(r, "skip", 0),
			Limit:      queryInt(r, "limit", 0),
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := domain.AccountStatus(raw)
			if !status.Valid() {
				s.writeError(w, r, domain.ValidationError("account_invalid_status", "unknown account status %q", raw))
				return
			}
			f.Status = &status
		}
		list, err := s.Accounts.List(r.Context(), f)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromAccounts(list))
	}
}

// GetAccountHandler handles GET /v1/accounts/{id}.
func (s *Server) GetAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		acc, err := s.Accounts.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromAccount(acc))
	}
}

type updateAccountRequest struct {
	Email        *string `json:"email"`
	PIN          *string `json:"pin"`
	Status       *string `json:"status"`
	IsReseller   *bool   `json:"is_reseller"`
	LastDeviceID *string `json:"last_device_id"`
	Notes        *string `json:"notes"`
}

// UpdateAccountHandler handles PATCH /v1/accounts/{id}.
func (s *Server) UpdateAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req updateAccountRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		patch := domain.AccountPatch{
			Email:        req.Email,
			PIN:          req.PIN,
			IsReseller:   req.IsReseller,
			LastDeviceID: req.LastDeviceID,
			Notes:        req.Notes,
		}
		if req.Status != nil {
			status := domain.AccountStatus(*req.Status)
			patch.Status = &status
		}
		acc, err := s.Accounts.Update(r.Context(), id, patch)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromAccount(acc))
	}
}

// DeleteAccountHandler handles DELETE /v1/accounts/{id}.
func (s *Server) DeleteAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.Accounts.Delete(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteAccountByKeyHandler handles DELETE /v1/accounts addressed by
// msisdn+batch_id query parameters.
func (s *Server) DeleteAccountByKeyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msisdn := r.URL.Query().Get("msisdn")
		batchID := r.URL.Query().Get("batch_id")
		if msisdn == "" || batchID == "" {
			s.writeError(w, r, domain.ValidationError(
				"account_key_required", "msisdn and batch_id query parameters are required"))
			return
		}
		if err := s.Accounts.DeleteByMSISDNBatch(r.Context(), msisdn, batchID); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
