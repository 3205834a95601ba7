package httpserver

import (
	"encoding/json"
	"net/http"
)

// Provider passthroughs. These hit the upstream directly, resolving the
// server from an explicit server_id, the msisdn's active binding, or the
// first active server.

type toolsBaseRequest struct {
	ServerID *int64 `json:"server_id" validate:"omitempty,gt=0"`
	MSISDN   string `json:"msisdn" validate:"required"`
}

type toolsOTPRequest struct {
	toolsBaseRequest
	PIN string `json:"pin"`
}

// ToolsRequestOTPHandler handles POST /v1/tools/otp.
func (s *Server) ToolsRequestOTPHandler() http.HandlerFunc {
	type response struct {
		Status     string          `json:"status"`
		DataStatus string          `json:"data_status,omitempty"`
		TokenID    string          `json:"token_id,omitempty"`
		Message    string          `json:"message,omitempty"`
		Raw        json.RawMessage `json:"raw,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req toolsOTPRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.Tools.RequestOTP(r.Context(), req.ServerID, req.MSISDN, req.PIN)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, response{
			Status:     res.Status,
			DataStatus: res.DataStatus,
			TokenID:    res.TokenID,
			Message:    res.Message,
			Raw:        res.Raw,
		})
	}
}

type toolsVerifyOTPRequest struct {
	toolsBaseRequest
	OTP string `json:"otp" validate:"required"`
}

// ToolsVerifyOTPHandler handles POST /v1/tools/verify-otp.
func (s *Server) ToolsVerifyOTPHandler() http.HandlerFunc {
	type response struct {
		Status     string          `json:"status"`
		DataStatus string          `json:"data_status,omitempty"`
		TokenID    string          `json:"token_id,omitempty"`
		Message    string          `json:"message,omitempty"`
		Raw        json.RawMessage `json:"raw,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req toolsVerifyOTPRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.Tools.VerifyOTP(r.Context(), req.ServerID, req.MSISDN, req.OTP)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, response{
			Status:     res.Status,
			DataStatus: res.DataStatus,
			TokenID:    res.TokenID,
			Message:    res.Message,
			Raw:        res.Raw,
		})
	}
}

// ToolsBalanceHandler handles POST /v1/tools/balance.
func (s *Server) ToolsBalanceHandler() http.HandlerFunc {
	type response struct {
		Balance *int64          `json:"balance"`
		Raw     json.RawMessage `json:"raw,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req toolsBaseRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.Tools.Balance(r.Context(), req.ServerID, req.MSISDN)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, response{Balance: res.Balance, Raw: res.Raw})
	}
}

// ToolsProductsHandler handles POST /v1/tools/products.
func (s *Server) ToolsProductsHandler() http.HandlerFunc {
	type productDTO struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		LowerPrice *int64 `json:"lower_price"`
	}
	type response struct {
		Status      string          `json:"status,omitempty"`
		StatusMsg   string          `json:"status_msg,omitempty"`
		ProductType string          `json:"product_type,omitempty"`
		DeviceID    string          `json:"device_id,omitempty"`
		Reseller    bool            `json:"reseller"`
		Products    []productDTO    `json:"products"`
		Raw         json.RawMessage `json:"raw,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req toolsBaseRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.Tools.Products(r.Context(), req.ServerID, req.MSISDN)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		products := make([]productDTO, 0, len(res.Products))
		for _, p := range res.Products {
			products = append(products, productDTO{ID: p.ID, Name: p.Name, LowerPrice: p.LowerPrice})
		}
		writeJSON(w, http.StatusOK, response{
			Status:      res.Status,
			StatusMsg:   res.StatusMsg,
			ProductType: res.ProductType,
			DeviceID:    res.DeviceID,
			Reseller:    res.Reseller(),
			Products:    products,
			Raw:         res.Raw,
		})
	}
}

// ToolsTokenHandler handles POST /v1/tools/token.
func (s *Server) ToolsTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toolsBaseRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.Tools.Token(r.Context(), req.ServerID, req.MSISDN)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": res.Token})
	}
}

type toolsTrxRequest struct {
	toolsBaseRequest
	ProductID  string `json:"product_id" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	LimitHarga int64  `json:"limit_harga" validate:"gte=0"`
}

// ToolsTrxHandler handles POST /v1/tools/trx.
func (s *Server) ToolsTrxHandler() http.HandlerFunc {
	type response struct {
		TrxID     string          `json:"trx_id,omitempty"`
		TID       string          `json:"t_id,omitempty"`
		IsSuccess *int            `json:"is_success"`
		Raw       json.RawMessage `json:"raw,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req toolsTrxRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.Tools.Trx(r.Context(), req.ServerID, req.MSISDN, req.ProductID, req.Email, req.LimitHarga)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, response{
			TrxID:     res.TrxID,
			TID:       res.TID,
			IsSuccess: res.IsSuccess,
			Raw:       res.Raw,
		})
	}
}

type toolsTrxOTPRequest struct {
	toolsBaseRequest
	OTP string `json:"otp" validate:"required"`
}

// ToolsTrxOTPHandler handles POST /v1/tools/trx-otp.
func (s *Server) ToolsTrxOTPHandler() http.HandlerFunc {
	type response struct {
		Status    string          `json:"status,omitempty"`
		StatusMsg string          `json:"status_msg,omitempty"`
		Message   string          `json:"message,omitempty"`
		OK        bool            `json:"ok"`
		Raw       json.RawMessage `json:"raw,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req toolsTrxOTPRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.Tools.TrxOTP(r.Context(), req.ServerID, req.MSISDN, req.OTP)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, response{
			Status:    res.Status,
			StatusMsg: res.StatusMsg,
			Message:   res.Message,
			OK:        res.OK(),
			Raw:       res.Raw,
		})
	}
}

type toolsTrxStatusRequest struct {
	toolsBaseRequest
	TrxID string `json:"trx_id" validate:"required"`
}

// ToolsTrxStatusHandler handles POST /v1/tools/trx-status.
func (s *Server) ToolsTrxStatusHandler() http.HandlerFunc {
	type response struct {
		IsSuccess *int            `json:"is_success"`
		Voucher   string          `json:"voucher,omitempty"`
		Raw       json.RawMessage `json:"raw,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req toolsTrxStatusRequest
		if err := decodeBody(r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateBody(req); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.Tools.TrxStatus(r.Context(), req.ServerID, req.MSISDN, req.TrxID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, response{
			IsSuccess: res.IsSuccess,
			Voucher:   res.Voucher,
			Raw:       res.Raw,
		})
	}
}
