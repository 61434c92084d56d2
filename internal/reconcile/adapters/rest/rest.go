// Package rest is a generic JSON-over-HTTP issuer adapter.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/adapters"
)

const (
	defaultTimeout = 10 * time.Second
	apiKeyHeader   = "X-API-Key"
	maxBodyBytes   = 8 << 20
)

// Adapter fetches records from GET {base}/records/{id} and verifies them with
// POST {base}/verify.
type Adapter struct {
	issuer  string
	baseURL string
	apiKey  string
	client  *http.Client
}

type Option func(*Adapter)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		if c != nil {
			a.client = c
		}
	}
}

func WithAPIKey(key string) Option {
	return func(a *Adapter) { a.apiKey = strings.TrimSpace(key) }
}

func New(issuer, baseURL string, opts ...Option) (*Adapter, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, fmt.Errorf("rest adapter: issuer name is required")
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.ParseRequestURI(base); err != nil || base == "" {
		return nil, fmt.Errorf("rest adapter %s: invalid base url %q", issuer, baseURL)
	}
	a := &Adapter{
		issuer:  issuer,
		baseURL: base,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Issuer() string { return a.issuer }

func (a *Adapter) FetchAuthoritativeData(ctx context.Context, recordID credential.RecordID) (adapters.Payload, error) {
	endpoint := a.baseURL + "/records/" + url.PathEscape(recordID.String())
	status, body, err := a.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, adapters.Classify(a.issuer, "fetch record", err)
	}
	return parseRecordResponse(a.issuer, status, body)
}

func (a *Adapter) Verify(ctx context.Context, payload adapters.Payload) (adapters.VerifyResult, error) {
	status, body, err := a.do(ctx, http.MethodPost, a.baseURL+"/verify", payload)
	if err != nil {
		return adapters.VerifyResult{}, adapters.Classify(a.issuer, "verify payload", err)
	}
	return parseVerifyResponse(a.issuer, status, body)
}

func (a *Adapter) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.apiKey != "" {
		req.Header.Set(apiKeyHeader, a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func parseRecordResponse(issuer string, status int, body []byte) (adapters.Payload, error) {
	if err := statusError(issuer, "fetch record", status, body); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, adapters.NewAdapterError(adapters.ErrorBadData, issuer, "record body is not valid JSON", nil)
	}
	return adapters.Payload(trimmed), nil
}

type verifyResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

func parseVerifyResponse(issuer string, status int, body []byte) (adapters.VerifyResult, error) {
	if err := statusError(issuer, "verify payload", status, body); err != nil {
		return adapters.VerifyResult{}, err
	}
	var parsed verifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return adapters.VerifyResult{}, adapters.NewAdapterError(adapters.ErrorBadData, issuer, "decode verify response", err)
	}
	if parsed.Success == nil {
		return adapters.VerifyResult{}, adapters.NewAdapterError(adapters.ErrorBadData, issuer, "verify response has no success field", nil)
	}
	return adapters.VerifyResult{Success: *parsed.Success, Message: parsed.Message}, nil
}

// statusError maps an HTTP status onto the adapter error taxonomy.
func statusError(issuer, op string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := fmt.Sprintf("%s: status %d", op, status)
	if snippet := strings.TrimSpace(string(body)); snippet != "" {
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		msg += ": " + snippet
	}
	var category adapters.ErrorCategory
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = adapters.ErrorAuthentication
	case status == http.StatusNotFound:
		category = adapters.ErrorNotFound
	case status == http.StatusTooManyRequests:
		category = adapters.ErrorRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		category = adapters.ErrorTimeout
	case status >= 500:
		category = adapters.ErrorIssuerOutage
	default:
		category = adapters.ErrorBadData
	}
	return adapters.NewAdapterError(category, issuer, msg, nil)
}
