package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

func TestServerCreate_NormalizesBaseURL(t *testing.T) {
	e := newEnv()
	svc := NewServerService(e.servers, e.bindings)

	srv, err := svc.Create(context.Background(), CreateServerInput{
		Port:    8101,
		BaseURL: "http://10.0.0.1:8101/",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8101", srv.BaseURL)
	assert.True(t, srv.IsActive)
}

func TestServerCreate_Validation(t *testing.T) {
	e := newEnv()
	svc := NewServerService(e.servers, e.bindings)

	_, err := svc.Create(context.Background(), CreateServerInput{Port: 0, BaseURL: "http://x"})
	require.Error(t, err)
	assert.Equal(t, "server_invalid_port", domain.ErrorCode(err))

	_, err = svc.Create(context.Background(), CreateServerInput{Port: 8101, BaseURL: "  "})
	require.Error(t, err)
	assert.Equal(t, "server_base_url_required", domain.ErrorCode(err))
}

func TestServerDelete_RefusedWhileBound(t *testing.T) {
	e := newEnv()
	svc := NewServerService(e.servers, e.bindings)
	b := e.seedBinding(t, domain.StepBound)

	err := svc.Delete(context.Background(), b.ServerID)
	require.Error(t, err)
	assert.Equal(t, "server_has_active_binding", domain.ErrorCode(err))

	_, err = e.bindingService().Logout(context.Background(), b.ID, "", "", "")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), b.ServerID))
}

func TestServerBulkCreate_PortRange(t *testing.T) {
	e := newEnv()
	svc := NewServerService(e.servers, e.bindings)
	e.seedServer(t, 8102)

	res, err := svc.BulkCreate(context.Background(), BulkServersInput{
		StartPort: 8101,
		EndPort:   8103,
		Host:      "http://10.0.0.1",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "port_already_registered", res.Items[1].Reason)

	srv, err := e.servers.GetByPort(context.Background(), 8103)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8103", srv.BaseURL)
}

func TestServerBulkCreate_DryRunPersistsNothing(t *testing.T) {
	e := newEnv()
	svc := NewServerService(e.servers, e.bindings)

	res, err := svc.BulkCreate(context.Background(), BulkServersInput{
		StartPort: 8101, EndPort: 8105, Host: "http://10.0.0.1",
	}, true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 5, res.WouldCreate)

	all, err := e.servers.List(context.Background(), domain.ServerFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestServerBulkCreate_RangeLimits(t *testing.T) {
	e := newEnv()
	svc := NewServerService(e.servers, e.bindings)

	_, err := svc.BulkCreate(context.Background(), BulkServersInput{
		StartPort: 9000, EndPort: 8000, Host: "http://x",
	}, false)
	require.Error(t, err)
	assert.Equal(t, "server_invalid_port_range", domain.ErrorCode(err))

	_, err = svc.BulkCreate(context.Background(), BulkServersInput{
		StartPort: 1000, EndPort: 2000, Host: "http://x",
	}, false)
	require.Error(t, err)
	assert.Equal(t, "server_port_range_too_large", domain.ErrorCode(err))
}
