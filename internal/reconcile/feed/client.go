// Package feed reads lifecycle events for a time window from the upstream
// analytics feed.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/models"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 32 << 20
)

// Batch is the parsed result of one fetch, in feed order.
type Batch struct {
	Events  []models.LifecycleEvent
	Dropped int
}

// Client calls GET {base}/summary/{from}/{to}.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the request timeout on a copy of the current HTTP client,
// so a caller supplied *http.Client is never mutated.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			c := *cl.http
			c.Timeout = d
			cl.http = &c
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(cl *Client) { cl.tokens = ts }
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		if now != nil {
			cl.now = now
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type summaryResponse struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type summaryItem struct {
	Type           string `json:"type"`
	RecordPublicID string `json:"record_public_id"`
}

// Fetch returns the events recorded upstream in [window.From, window.To).
// Every failure is a *FetchError.
func (c *Client) Fetch(ctx context.Context, window models.Window) (Batch, error) {
	endpoint := fmt.Sprintf("%s/summary/%s/%s",
		c.baseURL,
		window.From.UTC().Format(time.RFC3339),
		window.To.UTC().Format(time.RFC3339),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Batch{}, newFetchError(FailureTransport, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token(c.now())
		if err != nil {
			return Batch{}, newFetchError(FailureAuthSigner, "sign request", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Batch{}, newFetchError(FailureTransport, "request summary", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Batch{}, newFetchError(FailureTransport, "read body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fe := newFetchError(FailureStatus, strings.TrimSpace(truncate(string(body), 256)), nil)
		fe.StatusCode = resp.StatusCode
		return Batch{}, fe
	}
	return c.parse(ctx, body)
}

func (c *Client) parse(ctx context.Context, body []byte) (Batch, error) {
	var parsed summaryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Batch{}, newFetchError(FailureMalformed, "decode summary", err)
	}
	if parsed.Success == nil || !*parsed.Success {
		return Batch{}, newFetchError(FailureUnsuccess, "feed reported success != true", nil)
	}
	data := bytes.TrimSpace(parsed.Data)
	if len(data) == 0 || data[0] != '[' {
		return Batch{}, newFetchError(FailureShape, "data is missing or not a list", nil)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return Batch{}, newFetchError(FailureShape, "decode data list", err)
	}

	batch := Batch{Events: make([]models.LifecycleEvent, 0, len(items))}
	for i, raw := range items {
		var item summaryItem
		if err := json.Unmarshal(raw, &item); err != nil || strings.TrimSpace(item.RecordPublicID) == "" {
			batch.Dropped++
			c.logger.WarnContext(ctx, "dropping feed item without record_public_id", "index", i)
			continue
		}
		batch.Events = append(batch.Events, models.LifecycleEvent{
			EventType: strings.TrimSpace(item.Type),
			RecordID:  credential.RecordID(strings.TrimSpace(item.RecordPublicID)),
		})
	}
	return batch, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
