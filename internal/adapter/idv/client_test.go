package idv

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okedigitalmedia/voucherd/internal/config"
	"github.com/okedigitalmedia/voucherd/internal/domain"
)

func testFactory() *Factory {
	return NewFactory(config.Config{
		HTTPXTimeoutSeconds: 2,
		HTTPXMaxConnections: 10,
		HTTPXMaxKeepalive:   5,
		HTTPXRetries:        2,
		HTTPXBackoffFactor:  0.01,
	})
}

func providerFor(t *testing.T, handler http.Handler) domain.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return testFactory().ForServer(domain.ServerInstance{BaseURL: srv.URL})
}

func TestRequestOTPParsesEnvelope(t *testing.T) {
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/otp", r.URL.Path)
		assert.Equal(t, "62811111111", r.URL.Query().Get("username"))
		assert.Equal(t, "123456", r.URL.Query().Get("pin"))
		_, _ = w.Write([]byte(`{"status":0,"message":"ok","data":{"status":true,"tokenid":"tok-1"}}`))
	}))

	res, err := p.RequestOTP(context.Background(), "62811111111", "123456")
	require.NoError(t, err)
	assert.Equal(t, "0", res.Status)
	assert.Equal(t, "true", res.DataStatus)
	assert.Equal(t, "tok-1", res.TokenID)
	assert.True(t, res.OK(true))
}

func TestRequestOTPFailureEnvelope(t *testing.T) {
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1","message":"wrong pin","data":{"status":"false"}}`))
	}))

	res, err := p.RequestOTP(context.Background(), "62811111111", "0000")
	require.NoError(t, err)
	assert.False(t, res.OK(true))
	assert.Equal(t, "wrong pin", res.ErrorMessage())
}

func TestRequestOTPMissingUsername(t *testing.T) {
	p := testFactory().ForServer(domain.ServerInstance{BaseURL: "http://unused.invalid"})
	_, err := p.RequestOTP(context.Background(), " ", "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, "idv_missing_field", domain.ErrorCode(err))
}

func TestTrxVoucherRejectsNonPositiveLimit(t *testing.T) {
	p := testFactory().ForServer(domain.ServerInstance{BaseURL: "http://unused.invalid"})
	_, err := p.TrxVoucher(context.Background(), "62811111111", "VCR5", "a@b.com", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, "idv_invalid_limit_harga", domain.ErrorCode(err))
}

func TestTrxVoucherParsesOrder(t *testing.T) {
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trx_idv", r.URL.Path)
		assert.Equal(t, "50000", r.URL.Query().Get("limit_harga"))
		_, _ = w.Write([]byte(`{"res":{"data":{"trx_id":"TX-9","t_id":"T-9","is_success":1}}}`))
	}))

	res, err := p.TrxVoucher(context.Background(), "62811111111", "VCR5", "a@b.com", 50000)
	require.NoError(t, err)
	assert.Equal(t, "TX-9", res.TrxID)
	assert.Equal(t, "T-9", res.TID)
	require.NotNil(t, res.IsSuccess)
	assert.Equal(t, 1, *res.IsSuccess)
}

func TestStatusTrxParsesVoucher(t *testing.T) {
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status_idv", r.URL.Path)
		assert.Equal(t, "TX-9", r.URL.Query().Get("trx_id"))
		_, _ = w.Write([]byte(`{"res":{"data":{"is_success":"2","voucher":"ABCD-EFGH"}}}`))
	}))

	res, err := p.StatusTrx(context.Background(), "62811111111", "TX-9")
	require.NoError(t, err)
	require.NotNil(t, res.IsSuccess)
	assert.Equal(t, 2, *res.IsSuccess)
	assert.Equal(t, "ABCD-EFGH", res.Voucher)
}

func TestBalancePulsaUnknownWhenNonNumeric(t *testing.T) {
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"res":{"balance":"N/A"}}`))
	}))

	res, err := p.BalancePulsa(context.Background(), "62811111111")
	require.NoError(t, err)
	assert.Nil(t, res.Balance)
}

func TestBalancePulsaParsesDigitString(t *testing.T) {
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"res":{"balance":"125000"}}`))
	}))

	res, err := p.BalancePulsa(context.Background(), "62811111111")
	require.NoError(t, err)
	require.NotNil(t, res.Balance)
	assert.Equal(t, int64(125000), *res.Balance)
}

func TestTokenLocation3WrapsTextBody(t *testing.T) {
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token_location3", r.URL.Path)
		_, _ = w.Write([]byte("  loc-token-abc\n"))
	}))

	res, err := p.TokenLocation3(context.Background(), "62811111111")
	require.NoError(t, err)
	assert.Equal(t, "loc-token-abc", res.Token)
}

func TestListProdukParsesReseller(t *testing.T) {
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"status":"200","status_msg":"success",
			"data":{
				"product_group":{"product_type":"reseller"},
				"identifier":{"device_id":"dev-7"},
				"product_list":[
					{"id":"VCR5","name":"Voucher 5K","lower_price":"4800"},
					{"id":"VCR10","name":"Voucher 10K","lower_price":9600},
					{"id":"VCR25","name":"Voucher 25K","lower_price":"-"}
				]
			}
		}`))
	}))

	res, err := p.ListProduk(context.Background(), "62811111111")
	require.NoError(t, err)
	assert.True(t, res.Reseller())
	assert.Equal(t, "dev-7", res.DeviceID)
	require.Len(t, res.Products, 3)
	require.NotNil(t, res.Products[0].LowerPrice)
	assert.Equal(t, int64(4800), *res.Products[0].LowerPrice)
	require.NotNil(t, res.Products[1].LowerPrice)
	assert.Equal(t, int64(9600), *res.Products[1].LowerPrice)
	assert.Nil(t, res.Products[2].LowerPrice)
}

func TestOTPTrxParsesResFields(t *testing.T) {
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/otp_idv", r.URL.Path)
		_, _ = w.Write([]byte(`{"res":{"status":200,"status_msg":"success","message":"otp accepted"}}`))
	}))

	res, err := p.OTPTrx(context.Background(), "62811111111", "9999")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "otp accepted", res.Message)
}

func TestRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"res":{"balance":1000}}`))
	}))

	res, err := p.BalancePulsa(context.Background(), "62811111111")
	require.NoError(t, err)
	require.NotNil(t, res.Balance)
	assert.Equal(t, int64(1000), *res.Balance)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := p.BalancePulsa(context.Background(), "62811111111")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExternalService))
	assert.Equal(t, "external_service_http_error", domain.ErrorCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerErrorsExhaustRetries(t *testing.T) {
	var calls atomic.Int32
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := p.BalancePulsa(context.Background(), "62811111111")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExternalService))
	// 1 initial call + 2 retries
	assert.Equal(t, int32(3), calls.Load())
}

func TestTimeoutMapsToExternalTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	f := NewFactory(config.Config{
		HTTPXTimeoutSeconds: 0.05,
		HTTPXRetries:        0,
		HTTPXBackoffFactor:  0.01,
	})
	p := f.ForServer(domain.ServerInstance{BaseURL: srv.URL})

	_, err := p.BalancePulsa(context.Background(), "62811111111")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExternalServiceTimeout))
	assert.Equal(t, "external_service_timeout", domain.ErrorCode(err))
}

func TestInvalidJSONBody(t *testing.T) {
	p := providerFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))

	_, err := p.BalancePulsa(context.Background(), "62811111111")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExternalService))
	assert.Equal(t, "external_service_invalid_response", domain.ErrorCode(err))
}

func TestServerTuningOverridesDefaults(t *testing.T) {
	f := testFactory()
	p := f.ForServer(domain.ServerInstance{
		BaseURL:            "http://example.invalid/",
		TimeoutSeconds:     7,
		Retries:            5,
		WaitBetweenRetries: 1,
		MaxRequestsQueued:  3,
	})
	c, ok := p.(*Client)
	require.True(t, ok)
	assert.Equal(t, "http://example.invalid", c.baseURL)
	assert.Equal(t, 7*time.Second, c.timeout)
	assert.Equal(t, 5, c.retries)
	assert.Equal(t, float64(1), c.backoffFactor)
	assert.Equal(t, 3, c.maxConns)
}
