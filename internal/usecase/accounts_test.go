package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

func TestAccountCreate_DefaultsAndValidation(t *testing.T) {
	e := newEnv()
	svc := NewAccountService(e.accounts, e.bindings)

	acc, err := svc.Create(context.Background(), CreateAccountInput{
		MSISDN:  " 628111000001 ",
		BatchID: "B1",
	})
	require.NoError(t, err)
	assert.Equal(t, "628111000001", acc.MSISDN)
	assert.Equal(t, domain.AccountNew, acc.Status)

	_, err = svc.Create(context.Background(), CreateAccountInput{BatchID: "B1"})
	require.Error(t, err)
	assert.Equal(t, "account_msisdn_required", domain.ErrorCode(err))

	_, err = svc.Create(context.Background(), CreateAccountInput{MSISDN: "628", BatchID: ""})
	require.Error(t, err)
	assert.Equal(t, "account_batch_id_required", domain.ErrorCode(err))

	_, err = svc.Create(context.Background(), CreateAccountInput{MSISDN: "628", BatchID: "B1", Status: "bogus"})
	require.Error(t, err)
	assert.Equal(t, "account_invalid_status", domain.ErrorCode(err))
}

func TestAccountDelete_RefusedWhileBound(t *testing.T) {
	e := newEnv()
	svc := NewAccountService(e.accounts, e.bindings)
	b := e.seedBinding(t, domain.StepBound)

	err := svc.Delete(context.Background(), b.AccountID)
	require.Error(t, err)
	assert.Equal(t, "account_has_active_binding", domain.ErrorCode(err))
}

func TestAccountDeleteByMSISDNBatch(t *testing.T) {
	e := newEnv()
	svc := NewAccountService(e.accounts, e.bindings)
	acc := e.seedAccount(t, "628111000001", "B1")

	require.NoError(t, svc.DeleteByMSISDNBatch(context.Background(), acc.MSISDN, acc.BatchID))
	_, err := e.accounts.Get(context.Background(), acc.ID)
	require.Error(t, err)

	err = svc.DeleteByMSISDNBatch(context.Background(), "unknown", "B1")
	require.Error(t, err)
	assert.Equal(t, "account_not_found", domain.ErrorCode(err))
}

func TestAccountBulkCreate_DuplicatesDetected(t *testing.T) {
	e := newEnv()
	svc := NewAccountService(e.accounts, e.bindings)
	e.seedAccount(t, "628111000001", "B1")

	in := BulkAccountsInput{Items: []CreateAccountInput{
		{MSISDN: "628111000001", BatchID: "B1"},
		{MSISDN: "628111000002", BatchID: "B1"},
		{MSISDN: "628111000002", BatchID: "B1"},
		{MSISDN: "628111000002", BatchID: "B2"},
	}}

	res, err := svc.BulkCreate(context.Background(), in, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, "account_already_exists", res.Items[0].Reason)
	assert.Equal(t, "duplicate_in_request", res.Items[2].Reason)
}

func TestAccountBulkCreate_StopOnFirstError(t *testing.T) {
	e := newEnv()
	svc := NewAccountService(e.accounts, e.bindings)
	e.seedAccount(t, "628111000001", "B1")

	res, err := svc.BulkCreate(context.Background(), BulkAccountsInput{
		Items: []CreateAccountInput{
			{MSISDN: "628111000001", BatchID: "B1"},
			{MSISDN: "628111000002", BatchID: "B1"},
		},
		StopOnFirstError: true,
	}, false)
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Created)
}
