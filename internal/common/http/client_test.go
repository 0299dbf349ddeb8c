package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/items", r.URL.Path)
		assert.Equal(t, "acme", r.URL.Query().Get("q"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"name":"Acme"}`))
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithBaseURL(srv.URL+"/"), WithBearerToken("tok"), WithHeader("X-Extra", "yes"))

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/v1/items", url.Values{"q": {"acme"}}, &out))
	assert.Equal(t, "Acme", out.Name)
}

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ping", body["msg"])
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithBaseURL(srv.URL))
	assert.NoError(t, c.PostJSON(context.Background(), "/send", map[string]string{"msg": "ping"}, nil))
}

func TestClient_StatusError(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		retryAfter    string
		wantTemporary bool
		wantWait      time.Duration
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, retryAfter: "2", wantTemporary: true, wantWait: 2 * time.Second},
		{name: "server error", status: http.StatusBadGateway, wantTemporary: true},
		{name: "unauthorized", status: http.StatusUnauthorized, wantTemporary: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(" nope \n"))
			}))
			defer srv.Close()

			err := NewClient(time.Second, WithBaseURL(srv.URL)).GetJSON(context.Background(), "/x", nil, nil)
			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, "nope", se.Body)
			assert.Equal(t, tt.wantTemporary, se.Temporary())
			assert.Equal(t, tt.wantWait, se.RetryAfter)
		})
	}
}

func TestClient_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := NewClient(time.Second, WithBaseURL(srv.URL)).GetJSON(context.Background(), "/", nil, &out)
	assert.ErrorContains(t, err, "failed to decode response")
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), ParseRetryAfter(""))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-3"))
	assert.Equal(t, 1500*time.Millisecond, ParseRetryAfter("1.5"))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	d := ParseRetryAfter(future)
	assert.Greater(t, d, 50*time.Second)
	assert.LessOrEqual(t, d, time.Minute)
}
