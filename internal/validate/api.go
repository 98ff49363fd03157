package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHTTPTimeout = 3 * time.Second

// boolFields is the ordered list of response fields probed for the validity
// flag. First recognizable value wins.
var boolFields = []string{"valid", "is_valid", "result"}

type APIConfig struct {
	Base           string
	ValidatePath   string
	BindDevicePath string
	Timeout        time.Duration
}

// APIClient talks to the remote validation authority. All calls are GET;
// the authority treats the bind-device mutation as an idempotent GET as well.
type APIClient struct {
	cfg    APIConfig
	client *http.Client
}

func NewAPIClient(cfg APIConfig) *APIClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &APIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// ValidateTenant asks the authority whether code names a valid tenant. A body
// without a recognizable validity field resolves to false with no error.
func (a *APIClient) ValidateTenant(ctx context.Context, code string) (bool, error) {
	query := url.Values{"code": {code}}
	body, err := a.get(ctx, a.cfg.ValidatePath, query)
	if err != nil {
		return false, err
	}

	valid, ok := parseBoolField(body, boolFields)
	if !ok {
		return false, nil
	}
	return valid, nil
}

// BindDevice reports the (tenant, address) pair to the authority. A 200 is
// success; the body is not inspected.
func (a *APIClient) BindDevice(ctx context.Context, code, addr string) error {
	query := url.Values{"code": {code}, "ip": {addr}}
	_, err := a.get(ctx, a.cfg.BindDevicePath, query)
	return err
}

func (a *APIClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := a.cfg.Base + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	res, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validation API unreachable: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validation API returned status %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// parseBoolField decodes body as a JSON object and probes fields in order.
// The second return is false when no field carries a recognizable boolean.
func parseBoolField(body []byte, fields []string) (bool, bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return false, false
	}

	for _, field := range fields {
		raw, ok := doc[field]
		if !ok {
			continue
		}
		if value, ok := decodeBoolToken(raw); ok {
			return value, true
		}
	}

	return false, false
}

// decodeBoolToken accepts literal true/false and "1"/"0", quoted or bare.
func decodeBoolToken(raw json.RawMessage) (bool, bool) {
	switch strings.TrimSpace(string(raw)) {
	case "true":
		return true, true
	case "false":
		return false, true
	case "1", `"1"`:
		return true, true
	case "0", `"0"`:
		return false, true
	}
	return false, false
}
