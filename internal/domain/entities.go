// Package domain holds the entities, enums, and ports of the voucher
// orchestration core. Adapters depend on this package, never the reverse.
package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AccountStatus is the account lifecycle status.
type AccountStatus string

// Account lifecycle values.
const (
	AccountNew       AccountStatus = "new"
	AccountActive    AccountStatus = "active"
	AccountExhausted AccountStatus = "exhausted"
	AccountDisabled  AccountStatus = "disabled"
)

// Valid reports whether the status is a known value.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountNew, AccountActive, AccountExhausted, AccountDisabled:
		return true
	}
	return false
}

// BindingStep is the binding lifecycle step.
type BindingStep string

// Binding lifecycle values.
const (
	StepBound             BindingStep = "bound"
	StepOTPRequested      BindingStep = "otp_requested"
	StepOTPVerification   BindingStep = "otp_verification"
	StepOTPVerified       BindingStep = "otp_verified"
	StepTokenLoginFetched BindingStep = "token_login_fetched"
	StepLoggedOut         BindingStep = "logged_out"
)

// Valid reports whether the step is a known value.
func (s BindingStep) Valid() bool {
	switch s {
	case StepBound, StepOTPRequested, StepOTPVerification, StepOTPVerified,
		StepTokenLoginFetched, StepLoggedOut:
		return true
	}
	return false
}

// TransactionStatus is the per-purchase lifecycle status.
type TransactionStatus string

// Transaction lifecycle values. SUKSES and GAGAL are terminal.
const (
	TrxProcessing TransactionStatus = "PROCESSING"
	TrxPaused     TransactionStatus = "PAUSED"
	TrxResumed    TransactionStatus = "RESUMED"
	TrxSukses     TransactionStatus = "SUKSES"
	TrxSuspect    TransactionStatus = "SUSPECT"
	TrxGagal      TransactionStatus = "GAGAL"
)

// Valid reports whether the status is a known value.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TrxProcessing, TrxPaused, TrxResumed, TrxSukses, TrxSuspect, TrxGagal:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s TransactionStatus) Terminal() bool {
	return s == TrxSukses || s == TrxGagal
}

// OTPStatus tracks the transaction OTP sub-state.
type OTPStatus string

// OTP sub-state values.
const (
	OTPPending OTPStatus = "PENDING"
	OTPSuccess OTPStatus = "SUCCESS"
	OTPFailed  OTPStatus = "FAILED"
)

// ServerInstance is a remote agent that proxies provider calls for one bound
// MSISDN at a time, identified by unique port and base URL.
type ServerInstance struct {
	ID          int64
	Port        int
	BaseURL     string
	Description string

	// Connection tuning applied to the provider adapter.
	TimeoutSeconds     int
	Retries            int
	WaitBetweenRetries int
	MaxRequestsQueued  int

	IsActive   bool
	Parameters map[string]any
	DeviceID   string
	Notes      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account is an MSISDN within a batch. Unique per (msisdn, batch_id).
type Account struct {
	ID           int64
	MSISDN       string
	Email        string
	BatchID      string
	PIN          string
	Status       AccountStatus
	IsReseller   bool
	BalanceLast  *int64
	UsedCount    int
	LastUsedAt   *time.Time
	LastDeviceID string
	Notes        string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Binding is the exclusive pairing of one account with one server instance.
// At most one binding with UnboundAt == nil may exist per server and per
// account at any instant.
type Binding struct {
	ID        int64
	ServerID  int64
	AccountID int64
	BatchID   string

	Step       BindingStep
	IsReseller bool

	BalanceStart *int64
	BalanceLast  *int64

	LastErrorCode    string
	LastErrorMessage string

	TokenLogin               string
	TokenLocation            string
	TokenLocationRefreshedAt *time.Time
	DeviceID                 string

	BoundAt   time.Time
	UnboundAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the binding has not been logged out.
func (b Binding) Active() bool { return b.UnboundAt == nil }

// Transaction is a single voucher purchase attempt on a binding.
type Transaction struct {
	ID   int64
	TrxID string
	TID   string

	ServerID  int64
	AccountID int64
	BindingID int64
	BatchID   string
	DeviceID  string

	ProductID   string
	Email       string
	LimitHarga  int64
	Amount      *int64
	VoucherCode string

	Status       TransactionStatus
	IsSuccess    *int
	ErrorMessage string
	OTPRequired  bool
	OTPStatus    *OTPStatus

	PauseReason string
	PausedAt    *time.Time
	ResumedAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionSnapshot is the 1:1 evidence record of a transaction: balances
// around the purchase plus the opaque provider payloads.
type TransactionSnapshot struct {
	ID            int64
	TransactionID int64
	BalanceStart  *int64
	BalanceEnd    *int64
	TrxIDVRaw     json.RawMessage
	StatusIDVRaw  json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BindingView is a binding row joined with server and account display fields.
type BindingView struct {
	Binding
	ServerBaseURL  string
	ServerPort     int
	ServerIsActive bool
	ServerDeviceID string
	AccountMSISDN  string
	AccountEmail   string
	AccountStatus  AccountStatus
	AccountBatchID string
}

// Patch structs carry partial updates; nil fields are left untouched.

// ServerPatch is a partial server update.
type ServerPatch struct {
	Port               *int
	BaseURL            *string
	Description        *string
	TimeoutSeconds     *int
	Retries            *int
	WaitBetweenRetries *int
	MaxRequestsQueued  *int
	IsActive           *bool
	Parameters         map[string]any
	DeviceID           *string
	Notes              *string
}

// AccountPatch is a partial account update.
type AccountPatch struct {
	Email        *string
	PIN          *string
	Status       *AccountStatus
	IsReseller   *bool
	BalanceLast  **int64
	UsedCount    *int
	LastUsedAt   *time.Time
	LastDeviceID *string
	Notes        *string
}

// BindingPatch is a partial binding update.
type BindingPatch struct {
	Step                     *BindingStep
	IsReseller               *bool
	BalanceStart             **int64
	BalanceLast              **int64
	LastErrorCode            *string
	LastErrorMessage         *string
	TokenLogin               *string
	TokenLocation            *string
	TokenLocationRefreshedAt *time.Time
	DeviceID                 *string
	UnboundAt                *time.Time
}

// TransactionPatch is a partial transaction update. VoucherCode and OTPStatus
// use double pointers so callers can distinguish "leave alone" from "clear".
type TransactionPatch struct {
	Status       *TransactionStatus
	IsSuccess    **int
	VoucherCode  **string
	ErrorMessage **string
	OTPStatus    **OTPStatus
	PauseReason  *string
	PausedAt     *time.Time
	ResumedAt    *time.Time
	Amount       *int64
}

// SnapshotPatch is a partial snapshot update.
type SnapshotPatch struct {
	BalanceStart **int64
	BalanceEnd   **int64
	TrxIDVRaw    json.RawMessage
	StatusIDVRaw json.RawMessage
}

// Filters.

// ServerFilter narrows server listings.
type ServerFilter struct {
	IsActive *bool
	Skip     int
	Limit    int
}

// AccountFilter narrows account listings.
type AccountFilter struct {
	Status     *AccountStatus
	IsReseller *bool
	BatchID    string
	Email      string
	MSISDN     string
	Skip       int
	Limit      int
}

// BindingFilter narrows binding listings.
type BindingFilter struct {
	ServerID   *int64
	AccountID  *int64
	BatchID    string
	Step       *BindingStep
	ActiveOnly bool
	Skip       int
	Limit      int
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	Status    *TransactionStatus
	BindingID *int64
	AccountID *int64
	ServerID  *int64
	BatchID   string
	Skip      int
	Limit     int
}

// Repository ports.

// ServerRepo persists server instances.
type ServerRepo interface {
	Create(ctx context.Context, s ServerInstance) (ServerInstance, error)
	Get(ctx context.Context, id int64) (ServerInstance, error)
	GetByPort(ctx context.Context, port int) (ServerInstance, error)
	GetByBaseURL(ctx context.Context, baseURL string) (ServerInstance, error)
	List(ctx context.Context, f ServerFilter) ([]ServerInstance, error)
	Update(ctx context.Context, id int64, p ServerPatch) (ServerInstance, error)
	Delete(ctx context.Context, id int64) error
}

// AccountRepo persists accounts.
type AccountRepo interface {
	Create(ctx context.Context, a Account) (Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	GetByMSISDNBatch(ctx context.Context, msisdn, batchID string) (Account, error)
	ListByMSISDN(ctx context.Context, msisdn string) ([]Account, error)
	List(ctx context.Context, f AccountFilter) ([]Account, error)
	Update(ctx context.Context, id int64, p AccountPatch) (Account, error)
	Delete(ctx context.Context, id int64) error
}

// BindingRepo persists bindings.
type BindingRepo interface {
	Create(ctx context.Context, b Binding) (Binding, error)
	Get(ctx context.Context, id int64) (Binding, error)
	GetActiveByServer(ctx context.Context, serverID int64) (Binding, error)
	GetActiveByAccount(ctx context.Context, accountID int64) (Binding, error)
	List(ctx context.Context, f BindingFilter) ([]Binding, error)
	ListView(ctx context.Context, f BindingFilter) ([]BindingView, error)
	Update(ctx context.Context, id int64, p BindingPatch) (Binding, error)
	Delete(ctx context.Context, id int64) error
}

// TransactionRepo persists transactions and their snapshots.
type TransactionRepo interface {
	Create(ctx context.Context, t Transaction) (Transaction, error)
	Get(ctx context.Context, id int64) (Transaction, error)
	List(ctx context.Context, f TransactionFilter) ([]Transaction, error)
	Update(ctx context.Context, id int64, p TransactionPatch) (Transaction, error)
	Delete(ctx context.Context, id int64) error

	CreateSnapshot(ctx context.Context, s TransactionSnapshot) (TransactionSnapshot, error)
	GetSnapshot(ctx context.Context, transactionID int64) (TransactionSnapshot, error)
	UpdateSnapshot(ctx context.Context, transactionID int64, p SnapshotPatch) (TransactionSnapshot, error)
}
