package validate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T, handler http.HandlerFunc) (*APIClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	api := NewAPIClient(APIConfig{
		Base:           srv.URL,
		ValidatePath:   "/validate",
		BindDevicePath: "/bind",
	})
	return api, srv
}

func TestAPIClient_ValidateTenant(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		valid bool
	}{
		{"literal true", `{"valid": true}`, true},
		{"literal false", `{"valid": false}`, false},
		{"bare one", `{"valid": 1}`, true},
		{"bare zero", `{"valid": 0}`, false},
		{"quoted one", `{"valid": "1"}`, true},
		{"quoted zero", `{"valid": "0"}`, false},
		{"fallback field", `{"is_valid": true}`, true},
		{"third field", `{"result": "1"}`, true},
		{"first recognizable wins", `{"valid": "maybe", "is_valid": true}`, true},
		{"no recognized field", `{"status": "ok"}`, false},
		{"not json", `tenant ok`, false},
		{"empty object", `{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, _ := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/validate", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})

			valid, err := api.ValidateTenant(context.Background(), "acme")
			require.NoError(t, err)
			assert.Equal(t, tt.valid, valid)
		})
	}
}

func TestAPIClient_ValidateTenantSendsCode(t *testing.T) {
	var gotCode string
	api, _ := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		gotCode = r.URL.Query().Get("code")
		_, _ = w.Write([]byte(`{"valid": true}`))
	})

	_, err := api.ValidateTenant(context.Background(), "acme-01")
	require.NoError(t, err)
	assert.Equal(t, "acme-01", gotCode)
}

func TestAPIClient_NonOKStatusIsError(t *testing.T) {
	api, _ := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := api.ValidateTenant(context.Background(), "acme")
	assert.Error(t, err)
}

func TestAPIClient_TransportErrorIsError(t *testing.T) {
	api := NewAPIClient(APIConfig{
		Base:         "http://127.0.0.1:1",
		ValidatePath: "/validate",
	})

	_, err := api.ValidateTenant(context.Background(), "acme")
	assert.Error(t, err)
}

func TestAPIClient_BindDevice(t *testing.T) {
	var gotQuery map[string][]string
	api, _ := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/bind", r.URL.Path)
		gotQuery = r.URL.Query()
		w.WriteHeader(http.StatusOK)
	})

	err := api.BindDevice(context.Background(), "acme", "10.0.0.1:4433")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, gotQuery["code"])
	assert.Equal(t, []string{"10.0.0.1:4433"}, gotQuery["ip"])
}

func TestAPIClient_BindDeviceNonOK(t *testing.T) {
	api, _ := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	assert.Error(t, api.BindDevice(context.Background(), "acme", "10.0.0.1"))
}
