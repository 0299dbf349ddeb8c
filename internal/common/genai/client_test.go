package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
)

const completionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "test-model",
	"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"subject\":\"Hi\"}"}}]
}`

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		BaseURL:     server.URL,
		APIKey:      "sk-test",
		Model:       "test-model",
		MaxTokens:   2000,
		Temperature: 0.7,
		Timeout:     5 * time.Second,
	})
}

func TestClient_Generate(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		assert.Equal(t, float64(2000), body["max_tokens"])
		msgs := body["messages"].([]interface{})
		require.Len(t, msgs, 1)
		assert.Equal(t, "user", msgs[0].(map[string]interface{})["role"])
		assert.Equal(t, "draft please", msgs[0].(map[string]interface{})["content"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody))
	})

	text, err := c.Generate(context.Background(), "draft please")
	require.NoError(t, err)
	assert.Equal(t, `{"subject":"Hi"}`, text)
}

func TestClient_Generate_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		retryAfter    string
		wantRetryable bool
		wantDelay     time.Duration
	}{
		{"rate limited with retry-after", http.StatusTooManyRequests, "3", true, 3 * time.Second},
		{"server error", http.StatusBadGateway, "", true, 0},
		{"overloaded", 529, "", true, 0},
		{"bad request", http.StatusBadRequest, "", false, 0},
		{"unauthorized", http.StatusUnauthorized, "", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope","type":"error"}}`))
			})

			_, err := c.Generate(context.Background(), "x")
			require.Error(t, err)
			assert.Equal(t, 1, calls, "client must not retry on its own")
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeGenerationFailed))
			assert.Equal(t, tt.wantRetryable, apperrors.IsRetryable(err))

			var genErr *Error
			require.True(t, errors.As(err, &genErr))
			assert.Equal(t, tt.status, genErr.StatusCode)
			assert.Equal(t, tt.wantDelay, genErr.RetryAfter())
		})
	}
}

func TestClient_Generate_NoChoices(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	})

	_, err := c.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestClient_Generate_ContextEnds(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	t.Run("deadline is transient", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := c.Generate(ctx, "x")
		require.Error(t, err)
		assert.True(t, apperrors.IsRetryable(err))
	})

	t.Run("cancellation is not", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		_, err := c.Generate(ctx, "x")
		require.Error(t, err)
		assert.False(t, apperrors.IsRetryable(err))
	})
}
