package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okedigitalmedia/voucherd/internal/adapter/repo/postgres"
	"github.com/okedigitalmedia/voucherd/internal/domain"
)

func transactionRowStub() rowStub {
	return rowStub{scan: func(dest ...any) error {
		*(dest[0].(*int64)) = 11
		*(dest[1].(*string)) = "TX-11"
		*(dest[2].(*string)) = "T-11"
		*(dest[3].(*int64)) = 1
		*(dest[4].(*int64)) = 2
		*(dest[5].(*int64)) = 3
		*(dest[6].(*string)) = "batch-1"
		*(dest[7].(*string)) = "dev-1"
		*(dest[8].(*string)) = "VCR5"
		*(dest[9].(*string)) = "a@b.com"
		*(dest[10].(*int64)) = 50000
		*(dest[11].(**int64)) = nil
		*(dest[12].(*string)) = ""
		*(dest[13].(*domain.TransactionStatus)) = domain.TrxProcessing
		*(dest[14].(**int)) = nil
		*(dest[15].(*string)) = ""
		*(dest[16].(*bool)) = false
		*(dest[17].(**domain.OTPStatus)) = nil
		*(dest[18].(*string)) = ""
		*(dest[19].(**time.Time)) = nil
		*(dest[20].(**time.Time)) = nil
		*(dest[21].(*time.Time)) = time.Now().UTC()
		*(dest[22].(*time.Time)) = time.Now().UTC()
		return nil
	}}
}

func TestTransactionRepoGet(t *testing.T) {
	pool := &poolStub{row: transactionRowStub()}
	repo := postgres.NewTransactionRepo(pool)

	trx, err := repo.Get(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "TX-11", trx.TrxID)
	assert.Equal(t, domain.TrxProcessing, trx.Status)
	assert.Nil(t, trx.IsSuccess)
}

func TestTransactionRepoUpdateClearsWithDoublePointer(t *testing.T) {
	pool := &poolStub{row: transactionRowStub()}
	repo := postgres.NewTransactionRepo(pool)

	status := domain.TrxGagal
	var clearedOTP *domain.OTPStatus
	_, err := repo.Update(context.Background(), 11, domain.TransactionPatch{
		Status:    &status,
		OTPStatus: &clearedOTP,
	})
	require.NoError(t, err)
	assert.Contains(t, pool.lastSQL, "status=$1")
	assert.Contains(t, pool.lastSQL, "otp_status=$2")
	require.Len(t, pool.lastArgs, 4)
	assert.Equal(t, domain.TrxGagal, pool.lastArgs[0])
	assert.Nil(t, pool.lastArgs[1])
}

func TestTransactionRepoSnapshotNotFound(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewTransactionRepo(pool)

	_, err := repo.GetSnapshot(context.Background(), 11)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, "snapshot_not_found", domain.ErrorCode(err))
}
