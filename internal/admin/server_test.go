package admin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/internal/admin"
	"tenantgate/internal/admission"
	"tenantgate/internal/cache"
	"tenantgate/internal/device"
	"tenantgate/internal/resp"
	"tenantgate/internal/resp/resptest"
)

type staticValidator struct {
	valid bool
}

func (v *staticValidator) Validate(_ context.Context, _ string) bool {
	return v.valid
}

func (v *staticValidator) BindDevice(_ context.Context, _, _ string) bool {
	return true
}

func newTestServer(t *testing.T) (*admin.Server, *cache.Cache) {
	t.Helper()

	backend, err := resptest.NewServer()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	pool := cache.NewPool(resp.Config{Addr: backend.Addr(), Timeout: time.Second}, 4)
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })
	store := cache.New(pool, nil)

	validator := &staticValidator{valid: true}
	enforcer := device.NewEnforcer(store, validator, device.Config{
		MaxDevices:    1,
		SessionTTL:    time.Minute,
		BlockDuration: time.Minute,
	}, nil)

	registry := prometheus.NewRegistry()
	gate := admission.NewGate(store, validator, enforcer, admission.NewMetrics(registry), nil)

	return admin.NewServer(admin.Config{Port: 0}, gate, store, registry, nil), store
}

func doRequest(t *testing.T, s *admin.Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestEvaluateEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/evaluate?code=acme&ip=10.0.0.1")
	require.Equal(t, http.StatusOK, rec.Code)

	var decision admission.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.True(t, decision.Allowed)
	assert.Equal(t, device.ReasonRegistered, decision.Reason)
}

func TestEvaluateEndpoint_MissingCode(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/evaluate?ip=10.0.0.1")
	require.Equal(t, http.StatusOK, rec.Code)

	var decision admission.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.False(t, decision.Allowed)
	assert.Equal(t, admission.ReasonNoTenantCode, decision.Reason)
}

func TestUnblockEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	// Block the tenant through the normal path.
	doRequest(t, s, http.MethodGet, "/api/v1/evaluate?code=acme&ip=10.0.0.1")
	doRequest(t, s, http.MethodGet, "/api/v1/evaluate?code=acme&ip=10.0.0.2")
	require.True(t, store.Exists(ctx, device.BlockKey("acme")))

	rec := doRequest(t, s, http.MethodPost, "/api/v1/tenants/acme/unblock")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	assert.False(t, store.Exists(ctx, device.BlockKey("acme")))
	assert.False(t, store.Exists(ctx, device.DeviceKey("acme")))
}

func TestUnblockEndpoint_BadCode(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/tenants/not%20a%20code/unblock")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	doRequest(t, s, http.MethodGet, "/api/v1/evaluate?code=acme&ip=10.0.0.1")

	rec := doRequest(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admission_decisions_total")
}
