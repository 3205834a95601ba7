package httpserver

import (
	"encoding/json"
	"time"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

// Response DTOs. Domain entities stay json-agnostic; the wire shape lives
// here.

type serverDTO struct {
	ID                 int64          `json:"id"`
	Port               int            `json:"port"`
	BaseURL            string         `json:"base_url"`
	Description        string         `json:"description,omitempty"`
	TimeoutSeconds     int            `json:"timeout,omitempty"`
	Retries            int            `json:"retries,omitempty"`
	WaitBetweenRetries int            `json:"wait_between_retries,omitempty"`
	MaxRequestsQueued  int            `json:"max_requests_queued,omitempty"`
	IsActive           bool           `json:"is_active"`
	Parameters         map[string]any `json:"parameters,omitempty"`
	DeviceID           string         `json:"device_id,omitempty"`
	Notes              string         `json:"notes,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func fromServer(s domain.ServerInstance) serverDTO {
	return serverDTO{
		ID:                 s.ID,
		Port:               s.Port,
		BaseURL:            s.BaseURL,
		Description:        s.Description,
		TimeoutSeconds:     s.TimeoutSeconds,
		Retries:            s.Retries,
		WaitBetweenRetries: s.WaitBetweenRetries,
		MaxRequestsQueued:  s.MaxRequestsQueued,
		IsActive:           s.IsActive,
		Parameters:         s.Parameters,
		DeviceID:           s.DeviceID,
		Notes:              s.Notes,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func fromServers(list []domain.ServerInstance) []serverDTO {
	out := make([]serverDTO, 0, len(list))
	for _, s := range list {
		out = append(out, fromServer(s))
	}
	return out
}

type accountDTO struct {
	ID           int64                `json:"id"`
	MSISDN       string               `json:"msisdn"`
	Email        string               `json:"email,omitempty"`
	BatchID      string               `json:"batch_id"`
	Status       domain.AccountStatus `json:"status"`
	IsReseller   bool                 `json:"is_reseller"`
	BalanceLast  *int64               `json:"balance_last"`
	UsedCount    int                  `json:"used_count"`
	LastUsedAt   *time.Time           `json:"last_used_at,omitempty"`
	LastDeviceID string               `json:"last_device_id,omitempty"`
	Notes        string               `json:"notes,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func fromAccount(a domain.Account) accountDTO {
	return accountDTO{
		ID:           a.ID,
		MSISDN:       a.MSISDN,
		Email:        a.Email,
		BatchID:      a.BatchID,
		Status:       a.Status,
		IsReseller:   a.IsReseller,
		BalanceLast:  a.BalanceLast,
		UsedCount:    a.UsedCount,
		LastUsedAt:   a.LastUsedAt,
		LastDeviceID: a.LastDeviceID,
		Notes:        a.Notes,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromAccounts(list []domain.Account) []accountDTO {
	out := make([]accountDTO, 0, len(list))
	for _, a := range list {
		out = append(out, fromAccount(a))
	}
	return out
}

type bindingDTO struct {
	ID                       int64              `json:"id"`
	ServerID                 int64              `json:"server_id"`
	AccountID                int64              `json:"account_id"`
	BatchID                  string             `json:"batch_id"`
	Step                     domain.BindingStep `json:"step"`
	IsReseller               bool               `json:"is_reseller"`
	BalanceStart             *int64             `json:"balance_start"`
	BalanceLast              *int64             `json:"balance_last"`
	LastErrorCode            string             `json:"last_error_code,omitempty"`
	LastErrorMessage         string             `json:"last_error_message,omitempty"`
	TokenLocation            string             `json:"token_location,omitempty"`
	TokenLocationRefreshedAt *time.Time         `json:"token_location_refreshed_at,omitempty"`
	DeviceID                 string             `json:"device_id,omitempty"`
	BoundAt                  time.Time          `json:"bound_at"`
	UnboundAt                *time.Time         `json:"unbound_at,omitempty"`
	CreatedAt                time.Time          `json:"created_at"`
	UpdatedAt                time.Time          `json:"updated_at"`
}

func fromBinding(b domain.Binding) bindingDTO {
	return bindingDTO{
		ID:                       b.ID,
		ServerID:                 b.ServerID,
		AccountID:                b.AccountID,
		BatchID:                  b.BatchID,
		Step:                     b.Step,
		IsReseller:               b.IsReseller,
		BalanceStart:             b.BalanceStart,
		BalanceLast:              b.BalanceLast,
		LastErrorCode:            b.LastErrorCode,
		LastErrorMessage:         b.LastErrorMessage,
		TokenLocation:            b.TokenLocation,
		TokenLocationRefreshedAt: b.TokenLocationRefreshedAt,
		DeviceID:                 b.DeviceID,
		BoundAt:                  b.BoundAt,
		UnboundAt:                b.UnboundAt,
		CreatedAt:                b.CreatedAt,
		UpdatedAt:                b.UpdatedAt,
	}
}

func fromBindings(list []domain.Binding) []bindingDTO {
	out := make([]bindingDTO, 0, len(list))
	for _, b := range list {
		out = append(out, fromBinding(b))
	}
	return out
}

type bindingViewDTO struct {
	bindingDTO
	ServerBaseURL  string               `json:"server_base_url"`
	ServerPort     int                  `json:"server_port"`
	ServerIsActive bool                 `json:"server_is_active"`
	ServerDeviceID string               `json:"server_device_id,omitempty"`
	AccountMSISDN  string               `json:"account_msisdn"`
	AccountEmail   string               `json:"account_email,omitempty"`
	AccountStatus  domain.AccountStatus `json:"account_status"`
	AccountBatchID string               `json:"account_batch_id"`
}

func fromBindingViews(list []domain.BindingView) []bindingViewDTO {
	out := make([]bindingViewDTO, 0, len(list))
	for _, v := range list {
		out = append(out, bindingViewDTO{
			bindingDTO:     fromBinding(v.Binding),
			ServerBaseURL:  v.ServerBaseURL,
			ServerPort:     v.ServerPort,
			ServerIsActive: v.ServerIsActive,
			ServerDeviceID: v.ServerDeviceID,
			AccountMSISDN:  v.AccountMSISDN,
			AccountEmail:   v.AccountEmail,
			AccountStatus:  v.AccountStatus,
			AccountBatchID: v.AccountBatchID,
		})
	}
	return out
}

type transactionDTO struct {
	ID           int64                    `json:"id"`
	TrxID        string                   `json:"trx_id"`
	TID          string                   `json:"t_id,omitempty"`
	ServerID     int64                    `json:"server_id"`
	AccountID    int64                    `json:"account_id"`
	BindingID    int64                    `json:"binding_id"`
	BatchID      string                   `json:"batch_id"`
	DeviceID     string                   `json:"device_id,omitempty"`
	ProductID    string                   `json:"product_id"`
	Email        string                   `json:"email,omitempty"`
	LimitHarga   int64                    `json:"limit_harga"`
	Amount       *int64                   `json:"amount,omitempty"`
	VoucherCode  string                   `json:"voucher_code,omitempty"`
	Status       domain.TransactionStatus `json:"status"`
	IsSuccess    *int                     `json:"is_success"`
	ErrorMessage string                   `json:"error_message,omitempty"`
	OTPRequired  bool                     `json:"otp_required"`
	OTPStatus    *domain.OTPStatus        `json:"otp_status,omitempty"`
	PauseReason  string                   `json:"pause_reason,omitempty"`
	PausedAt     *time.Time               `json:"paused_at,omitempty"`
	ResumedAt    *time.Time               `json:"resumed_at,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

func fromTransaction(t domain.Transaction) transactionDTO {
	return transactionDTO{
		ID:           t.ID,
		TrxID:        t.TrxID,
		TID:          t.TID,
		ServerID:     t.ServerID,
		AccountID:    t.AccountID,
		BindingID:    t.BindingID,
		BatchID:      t.BatchID,
		DeviceID:     t.DeviceID,
		ProductID:    t.ProductID,
		Email:        t.Email,
		LimitHarga:   t.LimitHarga,
		Amount:       t.Amount,
		VoucherCode:  t.VoucherCode,
		Status:       t.Status,
		IsSuccess:    t.IsSuccess,
		ErrorMessage: t.ErrorMessage,
		OTPRequired:  t.OTPRequired,
		OTPStatus:    t.OTPStatus,
		PauseReason:  t.PauseReason,
		PausedAt:     t.PausedAt,
		ResumedAt:    t.ResumedAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func fromTransactions(list []domain.Transaction) []transactionDTO {
	out := make([]transactionDTO, 0, len(list))
	for _, t := range list {
		out = append(out, fromTransaction(t))
	}
	return out
}

type snapshotDTO struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	BalanceStart  *int64          `json:"balance_start"`
	BalanceEnd    *int64          `json:"balance_end"`
	TrxIDVRaw     json.RawMessage `json:"trx_idv_raw,omitempty"`
	StatusIDVRaw  json.RawMessage `json:"status_idv_raw,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func fromSnapshot(s domain.TransactionSnapshot) snapshotDTO {
	return snapshotDTO{
		ID:            s.ID,
		TransactionID: s.TransactionID,
		BalanceStart:  s.BalanceStart,
		BalanceEnd:    s.BalanceEnd,
		TrxIDVRaw:     s.TrxIDVRaw,
		StatusIDVRaw:  s.StatusIDVRaw,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}
