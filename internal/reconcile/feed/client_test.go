package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/models"
	"credsync/pkg/platform/sentinel"
)

var testWindow = models.Window{
	From: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	To:   time.Date(2025, 4, 1, 3, 0, 0, 0, time.UTC),
}

type capture struct {
	mu     sync.Mutex
	path   string
	header http.Header
}

func (c *capture) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

func (c *capture) Header(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header.Get(key)
}

func serve(t *testing.T, status int, body string) (*httptest.Server, *capture) {
	t.Helper()
	captured := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.mu.Lock()
		captured.path = r.URL.Path
		captured.header = r.Header.Clone()
		captured.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestFetch(t *testing.T) {
	t.Run("parses events in feed order", func(t *testing.T) {
		srv, req := serve(t, http.StatusOK, `{
			"success": true,
			"data": [
				{"type": "record_anchored", "record_public_id": "R1", "extra": 1},
				{"type": "record_deleted", "record_public_id": "R2"}
			]
		}`)
		batch, err := New(srv.URL).Fetch(context.Background(), testWindow)
		require.NoError(t, err)
		assert.Equal(t, "/summary/2025-04-01T00:00:00Z/2025-04-01T03:00:00Z", req.Path())
		assert.Equal(t, []models.LifecycleEvent{
			{EventType: "record_anchored", RecordID: credential.RecordID("R1")},
			{EventType: "record_deleted", RecordID: credential.RecordID("R2")},
		}, batch.Events)
		assert.Zero(t, batch.Dropped)
	})

	t.Run("drops items without record_public_id", func(t *testing.T) {
		srv, _ := serve(t, http.StatusOK, `{"success": true, "data": [
			{"type": "record_anchored"},
			{"type": "record_revoked", "record_public_id": "  "},
			{"type": "record_revoked", "record_public_id": "R9"},
			"not-an-object"
		]}`)
		batch, err := New(srv.URL).Fetch(context.Background(), testWindow)
		require.NoError(t, err)
		require.Len(t, batch.Events, 1)
		assert.Equal(t, credential.RecordID("R9"), batch.Events[0].RecordID)
		assert.Equal(t, 3, batch.Dropped)
	})

	t.Run("empty list is a valid batch", func(t *testing.T) {
		srv, _ := serve(t, http.StatusOK, `{"success": true, "data": []}`)
		batch, err := New(srv.URL).Fetch(context.Background(), testWindow)
		require.NoError(t, err)
		assert.Empty(t, batch.Events)
	})
}

func TestFetchHardFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   FailureKind
	}{
		{"non-2xx", http.StatusBadGateway, `upstream down`, FailureStatus},
		{"malformed body", http.StatusOK, `{"success": tru`, FailureMalformed},
		{"success false", http.StatusOK, `{"success": false, "data": []}`, FailureUnsuccess},
		{"success missing", http.StatusOK, `{"data": []}`, FailureUnsuccess},
		{"data missing", http.StatusOK, `{"success": true}`, FailureShape},
		{"data null", http.StatusOK, `{"success": true, "data": null}`, FailureShape},
		{"data not a list", http.StatusOK, `{"success": true, "data": {"type": "x"}}`, FailureShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := serve(t, tt.status, tt.body)
			_, err := New(srv.URL).Fetch(context.Background(), testWindow)
			require.Error(t, err)

			var fe *FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.kind, fe.Kind)
			assert.True(t, errors.Is(err, sentinel.ErrUnavailable))
			assert.True(t, IsFetchError(err))
		})
	}

	t.Run("transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		_, err := New(srv.URL).Fetch(context.Background(), testWindow)
		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, FailureTransport, fe.Kind)
	})

	t.Run("status code is recorded", func(t *testing.T) {
		srv, _ := serve(t, http.StatusUnauthorized, `nope`)
		_, err := New(srv.URL).Fetch(context.Background(), testWindow)
		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, http.StatusUnauthorized, fe.StatusCode)
		assert.Contains(t, fe.Error(), "status 401")
	})
}

func TestFetchAuthorization(t *testing.T) {
	t.Run("static token", func(t *testing.T) {
		srv, req := serve(t, http.StatusOK, `{"success": true, "data": []}`)
		_, err := New(srv.URL, WithTokenSource(StaticToken("abc"))).Fetch(context.Background(), testWindow)
		require.NoError(t, err)
		assert.Equal(t, "Bearer abc", req.Header("Authorization"))
	})

	t.Run("signed token", func(t *testing.T) {
		key := []byte("0123456789abcdef0123456789abcdef")
		signer, err := NewHMACSigner(key, "analytics", time.Minute)
		require.NoError(t, err)
		now := time.Now()

		srv, req := serve(t, http.StatusOK, `{"success": true, "data": []}`)
		client := New(srv.URL, WithTokenSource(signer), WithClock(func() time.Time { return now }))
		_, err = client.Fetch(context.Background(), testWindow)
		require.NoError(t, err)

		raw := strings.TrimPrefix(req.Header("Authorization"), "Bearer ")
		claims := &jwt.RegisteredClaims{}
		_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithAudience("analytics"),
			jwt.WithIssuer(signerIssuer),
		)
		require.NoError(t, err)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("empty signing key is rejected", func(t *testing.T) {
		_, err := NewHMACSigner(nil, "", 0)
		assert.Error(t, err)
	})
}

func TestWithTimeoutLeavesCallerClientUntouched(t *testing.T) {
	transport := &http.Transport{}
	shared := &http.Client{Timeout: time.Minute, Transport: transport}

	c := New("https://feed.example.test", WithHTTPClient(shared), WithTimeout(5*time.Second))

	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, 5*time.Second, c.http.Timeout)
	assert.Same(t, transport, c.http.Transport)
	assert.NotSame(t, shared, c.http)
}
