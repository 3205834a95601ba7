package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

// In-memory fakes over the domain ports, shared by the service tests.

type fakeServerRepo struct {
	mu      sync.Mutex
	nextID  int64
	servers map[int64]domain.ServerInstance
}

func newFakeServerRepo() *fakeServerRepo {
	return &fakeServerRepo{servers: map[int64]domain.ServerInstance{}}
}

func (r *fakeServerRepo) Create(_ context.Context, s domain.ServerInstance) (domain.ServerInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.servers {
		if existing.Port == s.Port || existing.BaseURL == s.BaseURL {
			return domain.ServerInstance{}, domain.ValidationError("duplicate_resource", "resource already exists")
		}
	}
	r.nextID++
	s.ID = r.nextID
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	r.servers[s.ID] = s
	return s, nil
}

func (r *fakeServerRepo) Get(_ context.Context, id int64) (domain.ServerInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[id]
	if !ok {
		return domain.ServerInstance{}, domain.NotFoundError("server_not_found", "server %d not found", id)
	}
	return s, nil
}

func (r *fakeServerRepo) GetByPort(_ context.Context, port int) (domain.ServerInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.servers {
		if s.Port == port {
			return s, nil
		}
	}
	return domain.ServerInstance{}, domain.NotFoundError("server_not_found", "server with port %d not found", port)
}

func (r *fakeServerRepo) GetByBaseURL(_ context.Context, baseURL string) (domain.ServerInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.servers {
		if s.BaseURL == baseURL {
			return s, nil
		}
	}
	return domain.ServerInstance{}, domain.NotFoundError("server_not_found", "server not found")
}

func (r *fakeServerRepo) List(_ context.Context, f domain.ServerFilter) ([]domain.ServerInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ServerInstance, 0)
	for _, s := range r.servers {
		if f.IsActive != nil && s.IsActive != *f.IsActive {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeServerRepo) Update(_ context.Context, id int64, p domain.ServerPatch) (domain.ServerInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[id]
	if !ok {
		return domain.ServerInstance{}, domain.NotFoundError("server_not_found", "server %d not found", id)
	}
	if p.Port != nil {
		s.Port = *p.Port
	}
	if p.BaseURL != nil {
		s.BaseURL = *p.BaseURL
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	if p.DeviceID != nil {
		s.DeviceID = *p.DeviceID
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	s.UpdatedAt = time.Now().UTC()
	r.servers[id] = s
	return s, nil
}

func (r *fakeServerRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.servers[id]; !ok {
		return domain.NotFoundError("server_not_found", "server %d not found", id)
	}
	delete(r.servers, id)
	return nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]domain.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[int64]domain.Account{}}
}

func (r *fakeAccountRepo) Create(_ context.Context, a domain.Account) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.MSISDN == a.MSISDN && existing.BatchID == a.BatchID {
			return domain.Account{}, domain.ValidationError("duplicate_resource", "resource already exists")
		}
	}
	r.nextID++
	a.ID = r.nextID
	if a.Status == "" {
		a.Status = domain.AccountNew
	}
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	r.accounts[a.ID] = a
	return a, nil
}

func (r *fakeAccountRepo) Get(_ context.Context, id int64) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.NotFoundError("account_not_found", "account %d not found", id)
	}
	return a, nil
}

func (r *fakeAccountRepo) GetByMSISDNBatch(_ context.Context, msisdn, batchID string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.MSISDN == msisdn && a.BatchID == batchID {
			return a, nil
		}
	}
	return domain.Account{}, domain.NotFoundError("account_not_found", "account not found")
}

func (r *fakeAccountRepo) ListByMSISDN(_ context.Context, msisdn string) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Account, 0)
	for _, a := range r.accounts {
		if a.MSISDN == msisdn {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) List(_ context.Context, f domain.AccountFilter) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Account, 0)
	for _, a := range r.accounts {
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.BatchID != "" && a.BatchID != f.BatchID {
			continue
		}
		if f.MSISDN != "" && a.MSISDN != f.MSISDN {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeAccountRepo) Update(_ context.Context, id int64, p domain.AccountPatch) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.NotFoundError("account_not_found", "account %d not found", id)
	}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.PIN != nil {
		a.PIN = *p.PIN
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.IsReseller != nil {
		a.IsReseller = *p.IsReseller
	}
	if p.BalanceLast != nil {
		a.BalanceLast = *p.BalanceLast
	}
	if p.UsedCount != nil {
		a.UsedCount = *p.UsedCount
	}
	if p.LastUsedAt != nil {
		a.LastUsedAt = p.LastUsedAt
	}
	if p.LastDeviceID != nil {
		a.LastDeviceID = *p.LastDeviceID
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	a.UpdatedAt = time.Now().UTC()
	r.accounts[id] = a
	return a, nil
}

func (r *fakeAccountRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return domain.NotFoundError("account_not_found", "account %d not found", id)
	}
	delete(r.accounts, id)
	return nil
}

type fakeBindingRepo struct {
	mu       sync.Mutex
	nextID   int64
	bindings map[int64]domain.Binding
}

func newFakeBindingRepo() *fakeBindingRepo {
	return &fakeBindingRepo{bindings: map[int64]domain.Binding{}}
}

func (r *fakeBindingRepo) Create(_ context.Context, b domain.Binding) (domain.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.bindings {
		if existing.UnboundAt == nil && (existing.ServerID == b.ServerID || existing.AccountID == b.AccountID) {
			return domain.Binding{}, domain.ValidationError("duplicate_resource", "resource already exists")
		}
	}
	r.nextID++
	b.ID = r.nextID
	if b.Step == "" {
		b.Step = domain.StepBound
	}
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	r.bindings[b.ID] = b
	return b, nil
}

func (r *fakeBindingRepo) Get(_ context.Context, id int64) (domain.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[id]
	if !ok {
		return domain.Binding{}, domain.NotFoundError("binding_not_found", "binding %d not found", id)
	}
	return b, nil
}

func (r *fakeBindingRepo) GetActiveByServer(_ context.Context, serverID int64) (domain.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bindings {
		if b.ServerID == serverID && b.UnboundAt == nil {
			return b, nil
		}
	}
	return domain.Binding{}, domain.NotFoundError("binding_not_found", "no active binding")
}

func (r *fakeBindingRepo) GetActiveByAccount(_ context.Context, accountID int64) (domain.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bindings {
		if b.AccountID == accountID && b.UnboundAt == nil {
			return b, nil
		}
	}
	return domain.Binding{}, domain.NotFoundError("binding_not_found", "no active binding")
}

func (r *fakeBindingRepo) List(_ context.Context, f domain.BindingFilter) ([]domain.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Binding, 0)
	for _, b := range r.bindings {
		if f.ServerID != nil && b.ServerID != *f.ServerID {
			continue
		}
		if f.AccountID != nil && b.AccountID != *f.AccountID {
			continue
		}
		if f.ActiveOnly && b.UnboundAt != nil {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *fakeBindingRepo) ListView(ctx context.Context, f domain.BindingFilter) ([]domain.BindingView, error) {
	bindings, err := r.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BindingView, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, domain.BindingView{Binding: b})
	}
	return out, nil
}

func (r *fakeBindingRepo) Update(_ context.Context, id int64, p domain.BindingPatch) (domain.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[id]
	if !ok {
		return domain.Binding{}, domain.NotFoundError("binding_not_found", "binding %d not found", id)
	}
	if p.Step != nil {
		b.Step = *p.Step
	}
	if p.IsReseller != nil {
		b.IsReseller = *p.IsReseller
	}
	if p.BalanceStart != nil {
		b.BalanceStart = *p.BalanceStart
	}
	if p.BalanceLast != nil {
		b.BalanceLast = *p.BalanceLast
	}
	if p.LastErrorCode != nil {
		b.LastErrorCode = *p.LastErrorCode
	}
	if p.LastErrorMessage != nil {
		b.LastErrorMessage = *p.LastErrorMessage
	}
	if p.TokenLogin != nil {
		b.TokenLogin = *p.TokenLogin
	}
	if p.TokenLocation != nil {
		b.TokenLocation = *p.TokenLocation
	}
	if p.TokenLocationRefreshedAt != nil {
		b.TokenLocationRefreshedAt = p.TokenLocationRefreshedAt
	}
	if p.DeviceID != nil {
		b.DeviceID = *p.DeviceID
	}
	if p.UnboundAt != nil {
		b.UnboundAt = p.UnboundAt
	}
	b.UpdatedAt = time.Now().UTC()
	r.bindings[id] = b
	return b, nil
}

func (r *fakeBindingRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bindings[id]; !ok {
		return domain.NotFoundError("binding_not_found", "binding %d not found", id)
	}
	delete(r.bindings, id)
	return nil
}

type fakeTransactionRepo struct {
	mu        sync.Mutex
	nextID    int64
	trx       map[int64]domain.Transaction
	snapshots map[int64]domain.TransactionSnapshot
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{
		trx:       map[int64]domain.Transaction{},
		snapshots: map[int64]domain.TransactionSnapshot{},
	}
}

func (r *fakeTransactionRepo) Create(_ context.Context, t domain.Transaction) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	if t.Status == "" {
		t.Status = domain.TrxProcessing
	}
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	r.trx[t.ID] = t
	return t, nil
}

func (r *fakeTransactionRepo) Get(_ context.Context, id int64) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trx[id]
	if !ok {
		return domain.Transaction{}, domain.NotFoundError("transaction_not_found", "transaction %d not found", id)
	}
	return t, nil
}

func (r *fakeTransactionRepo) List(_ context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Transaction, 0)
	for _, t := range r.trx {
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.BindingID != nil && t.BindingID != *f.BindingID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *fakeTransactionRepo) Update(_ context.Context, id int64, p domain.TransactionPatch) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trx[id]
	if !ok {
		return domain.Transaction{}, domain.NotFoundError("transaction_not_found", "transaction %d not found", id)
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.IsSuccess != nil {
		t.IsSuccess = *p.IsSuccess
	}
	if p.VoucherCode != nil {
		if *p.VoucherCode == nil {
			t.VoucherCode = ""
		} else {
			t.VoucherCode = **p.VoucherCode
		}
	}
	if p.ErrorMessage != nil {
		if *p.ErrorMessage == nil {
			t.ErrorMessage = ""
		} else {
			t.ErrorMessage = **p.ErrorMessage
		}
	}
	if p.OTPStatus != nil {
		t.OTPStatus = *p.OTPStatus
	}
	if p.PauseReason != nil {
		t.PauseReason = *p.PauseReason
	}
	if p.PausedAt != nil {
		t.PausedAt = p.PausedAt
	}
	if p.ResumedAt != nil {
		t.ResumedAt = p.ResumedAt
	}
	if p.Amount != nil {
		t.Amount = p.Amount
	}
	t.UpdatedAt = time.Now().UTC()
	r.trx[id] = t
	return t, nil
}

func (r *fakeTransactionRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trx[id]; !ok {
		return domain.NotFoundError("transaction_not_found", "transaction %d not found", id)
	}
	delete(r.trx, id)
	delete(r.snapshots, id)
	return nil
}

func (r *fakeTransactionRepo) CreateSnapshot(_ context.Context, s domain.TransactionSnapshot) (domain.TransactionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = s.TransactionID
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	r.snapshots[s.TransactionID] = s
	return s, nil
}

func (r *fakeTransactionRepo) GetSnapshot(_ context.Context, transactionID int64) (domain.TransactionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[transactionID]
	if !ok {
		return domain.TransactionSnapshot{}, domain.NotFoundError("snapshot_not_found", "snapshot not found")
	}
	return s, nil
}

func (r *fakeTransactionRepo) UpdateSnapshot(_ context.Context, transactionID int64, p domain.SnapshotPatch) (domain.TransactionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[transactionID]
	if !ok {
		return domain.TransactionSnapshot{}, domain.NotFoundError("snapshot_not_found", "snapshot not found")
	}
	if p.BalanceStart != nil {
		s.BalanceStart = *p.BalanceStart
	}
	if p.BalanceEnd != nil {
		s.BalanceEnd = *p.BalanceEnd
	}
	if p.TrxIDVRaw != nil {
		s.TrxIDVRaw = p.TrxIDVRaw
	}
	if p.StatusIDVRaw != nil {
		s.StatusIDVRaw = p.StatusIDVRaw
	}
	s.UpdatedAt = time.Now().UTC()
	r.snapshots[transactionID] = s
	return s, nil
}

// fakeProvider scripts IDV responses and records the endpoints hit.
type fakeProvider struct {
	mu    sync.Mutex
	calls []string

	otpResult     domain.LoginOTPResult
	verifyResult  domain.LoginOTPResult
	balances      []int64
	balanceNil    bool
	balanceIdx    int
	token         string
	products      domain.ProductListResult
	order         domain.OrderResult
	orderErr      error
	status        domain.StatusResult
	otpTrx        domain.OTPTrxResult
	requestOTPErr error
}

func (p *fakeProvider) record(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
}

func (p *fakeProvider) callCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (p *fakeProvider) RequestOTP(_ context.Context, _, _ string) (domain.LoginOTPResult, error) {
	p.record("request_otp")
	return p.otpResult, p.requestOTPErr
}

func (p *fakeProvider) VerifyOTP(_ context.Context, _, _ string) (domain.LoginOTPResult, error) {
	p.record("verify_otp")
	return p.verifyResult, nil
}

func (p *fakeProvider) Logout(_ context.Context, _ string) (json.RawMessage, error) {
	p.record("logout")
	return json.RawMessage(`{"status":"0"}`), nil
}

func (p *fakeProvider) BalancePulsa(_ context.Context, _ string) (domain.BalanceResult, error) {
	p.record("balance")
	if p.balanceNil || len(p.balances) == 0 {
		return domain.BalanceResult{}, nil
	}
	p.mu.Lock()
	idx := p.balanceIdx
	if idx >= len(p.balances) {
		idx = len(p.balances) - 1
	}
	p.balanceIdx++
	p.mu.Unlock()
	bal := p.balances[idx]
	return domain.BalanceResult{Balance: &bal}, nil
}

func (p *fakeProvider) TokenLocation3(_ context.Context, _ string) (domain.TokenResult, error) {
	p.record("token_location3")
	return domain.TokenResult{Token: p.token}, nil
}

func (p *fakeProvider) ListProduk(_ context.Context, _ string) (domain.ProductListResult, error) {
	p.record("list_produk")
	return p.products, nil
}

func (p *fakeProvider) TrxVoucher(_ context.Context, _, _, _ string, _ int64) (domain.OrderResult, error) {
	p.record("trx_voucher")
	return p.order, p.orderErr
}

func (p *fakeProvider) OTPTrx(_ context.Context, _, _ string) (domain.OTPTrxResult, error) {
	p.record("otp_trx")
	return p.otpTrx, nil
}

func (p *fakeProvider) StatusTrx(_ context.Context, _, _ string) (domain.StatusResult, error) {
	p.record("status_trx")
	return p.status, nil
}

type fakeFactory struct{ p *fakeProvider }

func (f fakeFactory) ForServer(domain.ServerInstance) domain.Provider { return f.p }

// fakeRegistry is a map-backed WorkerRegistry.
type fakeRegistry struct {
	mu     sync.Mutex
	states map[int64]domain.WorkerStateRecord
	cfgs   map[int64]domain.WorkerConfig
	locks  map[int64]string
	hbs    map[int64]domain.WorkerHeartbeat
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		states: map[int64]domain.WorkerStateRecord{},
		cfgs:   map[int64]domain.WorkerConfig{},
		locks:  map[int64]string{},
		hbs:    map[int64]domain.WorkerHeartbeat{},
	}
}

func (r *fakeRegistry) Start(_ context.Context, id int64, owner string, cfg domain.WorkerConfig) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, had := r.states[id]; had && prev.State == domain.WorkerRunning {
		return false, nil
	}
	r.cfgs[id] = cfg
	r.states[id] = domain.WorkerStateRecord{
		BindingID: id, State: domain.WorkerRunning, Owner: owner, UpdatedAt: time.Now().UTC(),
	}
	return true, nil
}

func (r *fakeRegistry) Pause(_ context.Context, id int64, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		return false, nil
	}
	if st.State == domain.WorkerPaused {
		return true, nil
	}
	if st.State != domain.WorkerRunning {
		return false, nil
	}
	st.State = domain.WorkerPaused
	st.Reason = reason
	r.states[id] = st
	return true, nil
}

func (r *fakeRegistry) Resume(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		return false, nil
	}
	if st.State == domain.WorkerRunning {
		return true, nil
	}
	if st.State != domain.WorkerPaused {
		return false, nil
	}
	st.State = domain.WorkerRunning
	st.Reason = ""
	r.states[id] = st
	return true, nil
}

func (r *fakeRegistry) Stop(_ context.Context, id int64, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok || st.State == domain.WorkerStopped {
		return false, nil
	}
	st.State = domain.WorkerStopped
	st.Reason = reason
	r.states[id] = st
	return true, nil
}

func (r *fakeRegistry) GetState(_ context.Context, id int64) (*domain.WorkerStateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		return nil, nil
	}
	cp := st
	return &cp, nil
}

func (r *fakeRegistry) GetConfig(_ context.Context, id int64) (*domain.WorkerConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.cfgs[id]
	if !ok {
		return nil, nil
	}
	cp := cfg
	return &cp, nil
}

func (r *fakeRegistry) ListStates(_ context.Context) ([]domain.WorkerStateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.WorkerStateRecord, 0, len(r.states))
	for _, st := range r.states {
		out = append(out, st)
	}
	return out, nil
}

func (r *fakeRegistry) AcquireLock(_ context.Context, id int64, owner string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.locks[id]; held {
		return false, nil
	}
	r.locks[id] = owner
	return true, nil
}

func (r *fakeRegistry) RefreshLock(_ context.Context, id int64, owner string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locks[id] == owner, nil
}

func (r *fakeRegistry) ReleaseLock(_ context.Context, id int64, owner string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locks[id] != owner {
		return false, nil
	}
	delete(r.locks, id)
	return true, nil
}

func (r *fakeRegistry) GetLockOwner(_ context.Context, id int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locks[id], nil
}

func (r *fakeRegistry) Heartbeat(_ context.Context, hb domain.WorkerHeartbeat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	hb.UpdatedAt = time.Now().UTC()
	r.hbs[hb.BindingID] = hb
	return nil
}

func (r *fakeRegistry) GetHeartbeat(_ context.Context, id int64) (*domain.WorkerHeartbeat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hb, ok := r.hbs[id]
	if !ok {
		return nil, nil
	}
	cp := hb
	return &cp, nil
}
