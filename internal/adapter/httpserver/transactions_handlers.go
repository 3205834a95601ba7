package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

type startTransactionRequest struct {
	BindingID  int64  `json:"binding_id" validate:"required,gt=0"`
	ProductID  string `json:"product_id" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	LimitHarga int64  `json:"limit_harga" validate:"gte=0"`
}

// StartTransactionHandler handles POST /v1/transactions/start.
func (s *Server) StartTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startTransactionRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		trx, err := s.Transactions.Start(r.Context(), req.BindingID, req.ProductID, req.Email, req.LimitHarga)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, fromTransaction(trx))
	}
}

type createTransactionRequest struct {
	TrxID        string `json:"trx_id"`
	BindingID    int64  `json:"binding_id" validate:"required,gt=0"`
	ProductID    string `json:"product_id" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	LimitHarga   int64  `json:"limit_harga" validate:"gte=0"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// CreateTransactionHandler handles POST /v1/transactions: a manual record
// insert without touching the provider.
func (s *Server) CreateTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTransactionRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		trx, err := s.Transactions.Create(r.Context(), domain.Transaction{
			TrxID:        req.TrxID,
			BindingID:    req.BindingID,
			ProductID:    req.ProductID,
			Email:        req.Email,
			LimitHarga:   req.LimitHarga,
			Status:       domain.TransactionStatus(req.Status),
			ErrorMessage: req.ErrorMessage,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, fromTransaction(trx))
	}
}

// ListTransactionsHandler handles GET /v1/transactions.
func (s *Server) ListTransactionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := domain.TransactionFilter{
			BindingID: queryInt64Ptr(r, "binding_id"),
			AccountID: queryInt64Ptr(r, "account_id"),
			ServerID:  queryInt64Ptr(r, "server_id"),
			BatchID:   r.URL.Query().Get("batch_id"),
			Skip:      queryInt(r, "skip", 0),
			Limit:     queryInt(r, "limit", 0),
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := domain.TransactionStatus(raw)
			if !status.Valid() {
				s.writeError(w, r, domain.ValidationError("transaction_invalid_status", "unknown status %q", raw))
				return
			}
			f.Status = &status
		}
		list, err := s.Transactions.List(r.Context(), f)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromTransactions(list))
	}
}

// GetTransactionHandler handles GET /v1/transactions/{id}.
func (s *Server) GetTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		trx, err := s.Transactions.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromTransaction(trx))
	}
}

type submitOTPRequest struct {
	OTP string `json:"otp" validate:"required"`
}

// SubmitOTPHandler handles POST /v1/transactions/{id}/otp.
func (s *Server) SubmitOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req submitOTPRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		trx, err := s.Transactions.SubmitOTP(r.Context(), id, req.OTP)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromTransaction(trx))
	}
}

// ContinueTransactionHandler handles POST /v1/transactions/{id}/continue.
func (s *Server) ContinueTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		trx, err := s.Transactions.Continue(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromTransaction(trx))
	}
}

// CheckTransactionHandler handles POST /v1/transactions/{id}/check: one
// balance-gated poll-and-decide pass, the same step the worker runs.
func (s *Server) CheckTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		trx, decision, err := s.Transactions.CheckBalanceAndContinueOrStop(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"decision":    decision,
			"transaction": fromTransaction(trx),
		})
	}
}

type transactionReasonRequest struct {
	Reason string `json:"reason"`
}

// PauseTransactionHandler handles POST /v1/transactions/{id}/pause.
func (s *Server) PauseTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req transactionReasonRequest
		if err := decodeBody(r, &req, true); err != nil {
			s.writeError(w, r, err)
			return
		}
		trx, err := s.Transactions.Pause(r.Context(), id, req.Reason)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromTransaction(trx))
	}
}

// ResumeTransactionHandler handles POST /v1/transactions/{id}/resume.
func (s *Server) ResumeTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		trx, err := s.Transactions.Resume(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromTransaction(trx))
	}
}

// StopTransactionHandler handles POST /v1/transactions/{id}/stop.
func (s *Server) StopTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req transactionReasonRequest
		if err := decodeBody(r, &req, true); err != nil {
			s.writeError(w, r, err)
			return
		}
		trx, err := s.Transactions.Stop(r.Context(), id, req.Reason)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromTransaction(trx))
	}
}

type transactionStatusRequest struct {
	Status       string `json:"status" validate:"required"`
	ErrorMessage string `json:"error_message"`
}

// TransactionStatusHandler handles PATCH /v1/transactions/{id}/status for
// operator corrections.
func (s *Server) TransactionStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req transactionStatusRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		trx, err := s.Transactions.SetStatus(r.Context(), id, domain.TransactionStatus(req.Status), req.ErrorMessage)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromTransaction(trx))
	}
}

// DeleteTransactionHandler handles DELETE /v1/transactions/{id}.
func (s *Server) DeleteTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.Transactions.Delete(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetSnapshotHandler handles GET /v1/transactions/{id}/snapshot.
func (s *Server) GetSnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		snap, err := s.Transactions.GetSnapshot(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromSnapshot(snap))
	}
}

type updateSnapshotRequest struct {
	BalanceStart json.RawMessage `json:"balance_start"`
	BalanceEnd   json.RawMessage `json:"balance_end"`
	TrxIDVRaw    json.RawMessage `json:"trx_idv_raw"`
	StatusIDVRaw json.RawMessage `json:"status_idv_raw"`
}

// UpdateSnapshotHandler handles PATCH /v1/transactions/{id}/snapshot.
func (s *Server) UpdateSnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req updateSnapshotRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		balanceStart, err := optInt64("balance_start", req.BalanceStart)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		balanceEnd, err := optInt64("balance_end", req.BalanceEnd)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		snap, err := s.Transactions.UpdateSnapshot(r.Context(), id, domain.SnapshotPatch{
			BalanceStart: balanceStart,
			BalanceEnd:   balanceEnd,
			TrxIDVRaw:    req.TrxIDVRaw,
			StatusIDVRaw: req.StatusIDVRaw,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromSnapshot(snap))
	}
}
