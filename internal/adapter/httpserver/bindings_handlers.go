package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/okedigitalmedia/voucherd/internal/domain"
	"github.com/okedigitalmedia/voucherd/internal/usecase"
)

type createBindingRequest struct {
	ServerID     int64  `json:"server_id" validate:"required,gt=0"`
	AccountID    int64  `json:"account_id" validate:"required,gt=0"`
	BalanceStart *int64 `json:"balance_start"`
}

// CreateBindingHandler handles POST /v1/bindings.
func (s *Server) CreateBindingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createBindingRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		b, err := s.Bindings.Create(r.Context(), req.ServerID, req.AccountID, req.BalanceStart)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, fromBinding(b))
	}
}

type bulkBindingItemRequest struct {
	ServerID  int64  `json:"server_id"`
	AccountID int64  `json:"account_id"`
	Port      int    `json:"port"`
	MSISDN    string `json:"msisdn"`
	BatchID   string `json:"batch_id"`
}

type bulkBindingsRequest struct {
	Items            []bulkBindingItemRequest `json:"items" validate:"required,min=1"`
	StopOnFirstError bool                     `json:"stop_on_first_error"`
}

// BulkBindingsHandler handles POST /v1/bindings/bulk and its dry-run variant.
func (s *Server) BulkBindingsHandler(dryRun bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkBindingsRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		items := make([]usecase.BulkBindingItem, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, usecase.BulkBindingItem{
				ServerID:  item.ServerID,
				AccountID: item.AccountID,
				Port:      item.Port,
				MSISDN:    item.MSISDN,
				BatchID:   item.BatchID,
			})
		}
		res, err := s.Bindings.BulkCreate(r.Context(), usecase.BulkBindingsInput{
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

func bindingFilterFrom(r *http.Request) (domain.BindingFilter, error) {
	f := domain.BindingFilter{
		ServerID:   queryInt64Ptr(r, "server_id"),
		AccountID:  queryInt64Ptr(r, "account_id"),
		BatchID:    r.URL.Query().Get("batch_id"),
		ActiveOnly: r.URL.Query().Get("active_only") == "true",
		Skip:       queryInt(r, "skip", 0),
		Limit:      queryInt(r, "limit", 0),
	}
	if raw := r.URL.Query().Get("step"); raw != "" {
		step := domain.BindingStep(raw)
		if !step.Valid() {
			return f, domain.ValidationError("binding_invalid_step", "unknown binding step %q", raw)
		}
		f.Step = &step
	}
	return f, nil
}

// ListBindingsHandler handles GET /v1/bindings.
func (s *Server) ListBindingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := bindingFilterFrom(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		list, err := s.Bindings.List(r.Context(), f)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromBindings(list))
	}
}

// ListBindingViewHandler handles GET /v1/bindings/view.
func (s *Server) ListBindingViewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := bindingFilterFrom(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		list, err := s.Bindings.ListView(r.Context(), f)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromBindingViews(list))
	}
}

// GetBindingHandler handles GET /v1/bindings/{id}.
func (s *Server) GetBindingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		b, err := s.Bindings.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromBinding(b))
	}
}

type updateBindingRequest struct {
	IsReseller *bool `json:"is_reseller"`
	// RawMessage keeps absent and explicit null apart: absent leaves the
	// column alone, null clears it.
	BalanceStart     json.RawMessage `json:"balance_start"`
	BalanceLast      json.RawMessage `json:"balance_last"`
	LastErrorCode    *string         `json:"last_error_code"`
	LastErrorMessage *string         `json:"last_error_message"`
	DeviceID         *string         `json:"device_id"`
}

// optInt64 maps a raw JSON field onto the double-pointer patch shape.
func optInt64(field string, raw json.RawMessage) (**int64, error) {
	if raw == nil {
		return nil, nil
	}
	var v *int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, domain.ValidationError("invalid_request_body", "field %s must be an integer or null", field)
	}
	return &v, nil
}

// UpdateBindingHandler handles PATCH /v1/bindings/{id}.
func (s *Server) UpdateBindingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req updateBindingRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		balanceStart, err := optInt64("balance_start", req.BalanceStart)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		balanceLast, err := optInt64("balance_last", req.BalanceLast)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		b, err := s.Bindings.Update(r.Context(), id, usecase.UpdateBindingInput{
			IsReseller:       req.IsReseller,
			BalanceStart:     balanceStart,
			BalanceLast:      balanceLast,
			LastErrorCode:    req.LastErrorCode,
			LastErrorMessage: req.LastErrorMessage,
			DeviceID:         req.DeviceID,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromBinding(b))
	}
}

// DeleteBindingHandler handles DELETE /v1/bindings/{id}.
func (s *Server) DeleteBindingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.Bindings.Delete(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type requestLoginRequest struct {
	PIN string `json:"pin"`
}

// RequestLoginHandler handles POST /v1/bindings/{id}/request-login.
func (s *Server) RequestLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req requestLoginRequest
		if err := decodeBody(r, &req, true); err != nil {
			s.writeError(w, r, err)
			return
		}
		b, err := s.Bindings.RequestLogin(r.Context(), id, req.PIN)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromBinding(b))
	}
}

type verifyLoginRequest struct {
	OTP string `json:"otp" validate:"required"`
}

// VerifyLoginHandler handles POST /v1/bindings/{id}/verify-login.
func (s *Server) VerifyLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req verifyLoginRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		b, err := s.Bindings.VerifyLoginAndReseller(r.Context(), id, req.OTP)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromBinding(b))
	}
}

// CheckBalanceHandler handles POST /v1/bindings/{id}/check-balance.
func (s *Server) CheckBalanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		b, err := s.Bindings.CheckBalance(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromBinding(b))
	}
}

// RefreshTokenLocationHandler handles POST /v1/bindings/{id}/refresh-token-location.
func (s *Server) RefreshTokenLocationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		b, err := s.Bindings.RefreshTokenLocation(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromBinding(b))
	}
}

// VerifyResellerHandler handles POST /v1/bindings/{id}/verify-reseller.
func (s *Server) VerifyResellerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		b, err := s.Bindings.VerifyReseller(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromBinding(b))
	}
}

type logoutRequest struct {
	LastErrorCode    string `json:"last_error_code"`
	LastErrorMessage string `json:"last_error_message"`
	AccountStatus    string `json:"account_status"`
}

// LogoutHandler handles POST /v1/bindings/{id}/logout.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req logoutRequest
		if err := decodeBody(r, &req, true); err != nil {
			s.writeError(w, r, err)
			return
		}
		b, err := s.Bindings.Logout(r.Context(), id,
			req.LastErrorCode, req.LastErrorMessage, domain.AccountStatus(req.AccountStatus))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fromBinding(b))
	}
}

type productsPreviewRequest struct {
	BindingIDs   []int64 `json:"binding_ids" validate:"required,min=1"`
	ResellerOnly bool    `json:"reseller_only"`
}

type productPreviewItem struct {
	BindingID int64  `json:"binding_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Products  any    `json:"products,omitempty"`
}

// ProductsPreviewHandler handles POST /v1/bindings/products/preview: a
// per-binding product list fetch without persistence. With reseller_only,
// non-reseller bindings are skipped instead of queried.
func (s *Server) ProductsPreviewHandler() http.HandlerFunc {
	type product struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		LowerPrice *int64 `json:"lower_price"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req productsPreviewRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		items := make([]productPreviewItem, 0, len(req.BindingIDs))
		for _, id := range req.BindingIDs {
			b, err := s.Bindings.Get(r.Context(), id)
			if err != nil {
				items = append(items, productPreviewItem{BindingID: id, Status: "failed", Reason: domain.ErrorCode(err)})
				continue
			}
			if req.ResellerOnly && !b.IsReseller {
				items = append(items, productPreviewItem{BindingID: id, Status: "skipped", Reason: "not_reseller"})
				continue
			}
			res, err := s.Bindings.PreviewProducts(r.Context(), id)
			if err != nil {
				items = append(items, productPreviewItem{BindingID: id, Status: "failed", Reason: domain.ErrorCode(err)})
				continue
			}
			products := make([]product, 0, len(res.Products))
			for _, p := range res.Products {
				products = append(products, product{ID: p.ID, Name: p.Name, LowerPrice: p.LowerPrice})
			}
			items = append(items, productPreviewItem{BindingID: id, Status: "ok", Products: products})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}
