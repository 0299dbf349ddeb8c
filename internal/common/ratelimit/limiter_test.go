package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/logger"
)

// ====== Token bucket ======

func TestLimiter_AcquireWithinQuota(t *testing.T) {
	l := New(Options{Default: Quota{Requests: 3, Window: time.Hour}})

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background(), "crm"))
	}
}

func TestLimiter_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		maxWait  time.Duration
		ctx      func() (context.Context, context.CancelFunc)
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "no wait budget",
			maxWait:  0,
			ctx:      func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			wantCode: apperrors.ErrCodeRateLimitExceeded,
		},
		{
			name:     "wait budget shorter than refill",
			maxWait:  50 * time.Millisecond,
			ctx:      func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			wantCode: apperrors.ErrCodeRateLimitExceeded,
		},
		{
			name:    "caller context already cancelled",
			maxWait: time.Second,
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx, cancel
			},
			wantCode: apperrors.ErrCodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(Options{Default: Quota{Requests: 1, Window: time.Hour}, MaxWait: tt.maxWait})
			require.NoError(t, l.Acquire(context.Background(), "slack"))

			ctx, cancel := tt.ctx()
			defer cancel()

			err := l.Acquire(ctx, "slack")
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)
			assert.True(t, apperrors.IsRetryable(err))
		})
	}
}

func TestLimiter_WaitsForRefill(t *testing.T) {
	l := New(Options{Default: Quota{Requests: 10, Window: time.Second}, MaxWait: 2 * time.Second})
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(context.Background(), "web"))
	}

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "web"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New(Options{
		Default: Quota{Requests: 1, Window: time.Hour},
		Quotas:  map[string]Quota{"hubspot": {Requests: 2, Window: time.Hour}},
	})

	require.NoError(t, l.Acquire(context.Background(), "hubspot"))
	require.NoError(t, l.Acquire(context.Background(), "hubspot"))
	require.NoError(t, l.Acquire(context.Background(), "slack"))
	require.NoError(t, l.Acquire(context.Background(), "fireflies"))

	assert.Error(t, l.Acquire(context.Background(), "hubspot"))
	assert.Error(t, l.Acquire(context.Background(), "slack"))
}

func TestLimiter_ConcurrentCallersShareOneBucket(t *testing.T) {
	l := New(Options{Default: Quota{Requests: 5, Window: time.Hour}})

	var granted int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire(context.Background(), "crm") == nil {
				atomic.AddInt32(&granted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), granted)
}

func TestLimiter_InvalidQuotasFallBackToDefault(t *testing.T) {
	l := New(Options{Quotas: map[string]Quota{"bad": {Requests: 0, Window: time.Second}}})

	assert.Equal(t, DefaultQuota, l.QuotaFor("bad"))
	assert.Equal(t, DefaultQuota, l.QuotaFor("anything"))
}

// ====== Shared window ======

func newMiniredisWindow(t *testing.T, now time.Time) (*RedisWindow, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	w := NewRedisWindow(client, "test")
	w.now = func() time.Time { return now }
	return w, mr
}

func TestRedisWindow_Reserve(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)
	w, mr := newMiniredisWindow(t, now)
	q := Quota{Requests: 2, Window: time.Minute}

	ok, _, err := w.Reserve(context.Background(), "hubspot", q)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = w.Reserve(context.Background(), "hubspot", q)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, retryAfter, err := w.Reserve(context.Background(), "hubspot", q)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retryAfter)

	key, _ := w.windowKey("hubspot", q, now)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))
}

func TestRedisWindow_IncrFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	now := time.UnixMilli(1_700_000_000_000)
	w := NewRedisWindow(db, "test")
	w.now = func() time.Time { return now }

	q := Quota{Requests: 5, Window: time.Second}
	key, _ := w.windowKey("slack", q, now)
	mock.ExpectIncr(key).SetErr(errors.New("connection refused"))

	_, _, err := w.Reserve(context.Background(), "slack", q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisWindow_SetsExpiryOnFirstHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	now := time.UnixMilli(1_700_000_000_000)
	w := NewRedisWindow(db, "test")
	w.now = func() time.Time { return now }

	q := Quota{Requests: 5, Window: time.Second}
	key, _ := w.windowKey("slack", q, now)
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectPExpire(key, time.Second).SetVal(true)
	mock.ExpectIncr(key).SetVal(2)

	for i := 0; i < 2; i++ {
		ok, _, err := w.Reserve(context.Background(), "slack", q)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

type failingWindow struct{ calls int32 }

func (f *failingWindow) Reserve(context.Context, string, Quota) (bool, time.Duration, error) {
	atomic.AddInt32(&f.calls, 1)
	return false, 0, errors.New("redis down")
}

func TestLimiter_SharedWindowFailsOpen(t *testing.T) {
	shared := &failingWindow{}
	l := New(Options{
		Default: Quota{Requests: 5, Window: time.Second},
		MaxWait: time.Second,
		Shared:  shared,
		Logger:  logger.NewTestLogger(t),
	})

	require.NoError(t, l.Acquire(context.Background(), "crm"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&shared.calls))
}

func TestLimiter_SharedWindowExhausted(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w, _ := newMiniredisWindow(t, now)

	l := New(Options{
		Default: Quota{Requests: 1, Window: time.Hour},
		Quotas:  map[string]Quota{"crm": {Requests: 100, Window: time.Hour}},
		MaxWait: 100 * time.Millisecond,
		Shared:  w,
	})
	// Another process already spent the shared window.
	for i := 0; i < 100; i++ {
		_, _, err := w.Reserve(context.Background(), "crm", l.QuotaFor("crm"))
		require.NoError(t, err)
	}

	err := l.Acquire(context.Background(), "crm")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRateLimitExceeded))
}

// ====== Transport ======

func TestTransport_AcquiresBeforeEachRequest(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	l := New(Options{Default: Quota{Requests: 1, Window: time.Hour}})
	client := NewHTTPClient(l, "web", 5*time.Second)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	_, err = client.Get(server.URL)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRateLimitExceeded))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
