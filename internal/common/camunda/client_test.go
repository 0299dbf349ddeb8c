package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sneurgaonkar/sales-ai-agents/internal/common/config"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
)

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.CamundaConfig{BrokerAddress: "zeebe:26500", RequestTimeout: 5000})
	assert.Equal(t, "zeebe:26500", opts.Address)
	assert.Equal(t, 5*time.Second, opts.RequestTimeout)
	assert.True(t, opts.Plaintext)
	assert.Equal(t, 3, opts.MaxRetries)

	assert.Equal(t, 30*time.Second, OptionsFromConfig(config.CamundaConfig{BrokerAddress: "x"}).RequestTimeout)
}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestRetry(t *testing.T) {
	c := &Client{opts: Options{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}}

	t.Run("transient errors are retried until success", func(t *testing.T) {
		calls := 0
		err := c.retry(context.Background(), "topology", func(context.Context) error {
			calls++
			if calls < 3 {
				return status.Error(codes.Unavailable, "gateway down")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("retries are bounded", func(t *testing.T) {
		calls := 0
		err := c.retry(context.Background(), "topology", func(context.Context) error {
			calls++
			return status.Error(codes.Unavailable, "gateway down")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.True(t, errors.HasCode(err, errors.ErrCodeExternalServiceError))
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		calls := 0
		err := c.retry(context.Background(), "deploy", func(context.Context) error {
			calls++
			return status.Error(codes.Unauthenticated, "bad token")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
	})

	t.Run("cancelled context stops the backoff", func(t *testing.T) {
		slow := &Client{opts: Options{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := slow.retry(ctx, "topology", func(context.Context) error {
			return status.Error(codes.Unavailable, "gateway down")
		})
		assert.True(t, errors.HasCode(err, errors.ErrCodeTimeout))
	})
}

func TestMapError(t *testing.T) {
	err := mapError(status.Error(codes.DeadlineExceeded, "slow"), "topology", 1)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTimeout))
	assert.Contains(t, err.Error(), "after 2 attempts")

	assert.True(t, errors.HasCode(mapError(stderrors.New("plain"), "deploy", 0), errors.ErrCodeExternalServiceError))
	assert.False(t, transient(stderrors.New("plain")))
	assert.True(t, transient(status.Error(codes.ResourceExhausted, "backpressure")))
}
