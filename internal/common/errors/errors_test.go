package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode_FollowsWrapping(t *testing.T) {
	base := NewRequiredSourceFailedError("crm", stderrors.New("503 Service Unavailable"))
	wrapped := fmt.Errorf("scan: %w", base)

	assert.True(t, HasCode(wrapped, ErrCodeRequiredSourceFailed))
	assert.False(t, HasCode(wrapped, ErrCodeTimeout))
	assert.False(t, HasCode(nil, ErrCodeInternal))
	assert.False(t, HasCode(stderrors.New("plain"), ErrCodeInternal))

	se, ok := AsStandardError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "crm", se.Metadata["source"])
	assert.Equal(t, "503 Service Unavailable", se.Details)
	assert.ErrorContains(t, se, "required source crm failed")
}

func TestNormalize(t *testing.T) {
	timeout := NewTimeoutError("followup run", nil)
	assert.Same(t, timeout, Normalize(fmt.Errorf("outer: %w", timeout)))

	plain := stderrors.New("boom")
	n := Normalize(plain)
	assert.Equal(t, ErrCodeInternal, n.Code)
	assert.False(t, n.Retryable)
	assert.ErrorIs(t, n, plain)
}

func TestRateLimitExceededError(t *testing.T) {
	err := NewRateLimitExceededError("hubspot", 30*time.Second)
	assert.True(t, err.Retryable)
	assert.Equal(t, "no token available within 30s", err.Details)
	assert.Equal(t, "hubspot", err.Metadata["key"])
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
	}{
		{
			name:        "crm failure",
			err:         NewRequiredSourceFailedError("crm", stderrors.New("down")),
			wantCode:    "CRM_UNAVAILABLE",
			wantRetries: 0,
		},
		{
			name:        "delivery failure is retried",
			err:         NewDeliveryFailedError("ses", stderrors.New("throttled")),
			wantCode:    "DIGEST_DELIVERY_FAILED",
			wantRetries: 3,
		},
		{
			name:        "timeout",
			err:         NewTimeoutError("followup run", nil),
			wantCode:    "RUN_TIMEOUT",
			wantRetries: 2,
		},
		{
			name:        "validation",
			err:         NewValidationError("staleThresholdDays must be >= 0"),
			wantCode:    "INVALID_INPUT",
			wantRetries: 0,
		},
		{
			name:        "unmapped code keeps its name",
			err:         NewInternalError(stderrors.New("nil map")),
			wantCode:    "INTERNAL_ERROR",
			wantRetries: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)
			assert.Equal(t, tt.err.Retryable, bpmn.Retryable)

			vars := bpmn.ToErrorVariables()
			assert.Equal(t, tt.wantCode, vars["errorCode"])
			assert.Equal(t, string(tt.err.Code), vars["originalErrorCode"])
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "RESEARCH", GetErrorCategory(ErrCodeSourceUnavailable))
	assert.Equal(t, "RESEARCH", GetErrorCategory(ErrCodeRateLimitExceeded))
	assert.Equal(t, "AI", GetErrorCategory(ErrCodeGenerationFailed))
	assert.Equal(t, "NOTIFICATION", GetErrorCategory(ErrCodeDeliveryFailed))
	assert.Equal(t, "TIMEOUT", GetErrorCategory(ErrCodeTimeout))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeConfigInvalid))
	assert.Equal(t, "INTEGRATION", GetErrorCategory(ErrCodeExternalServiceError))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewSourceUnavailableError("slack", nil)))
	assert.False(t, IsRetryable(NewConfigInvalidError("missing key")))
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.True(t, IsRetryableErrorCode(ErrCodeGenerationFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeValidationFailed))
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		jobRetries  int32
		wantRetry   bool
		wantRetries int
		wantCode    string
	}{
		{
			name:        "delivery failure with retries left",
			err:         NewDeliveryFailedError("ses", stderrors.New("throttled")),
			jobRetries:  3,
			wantRetry:   true,
			wantRetries: 2,
			wantCode:    "DIGEST_DELIVERY_FAILED",
		},
		{
			name:        "retries capped by the error code",
			err:         NewGenerationFailedError(stderrors.New("529"), true),
			jobRetries:  5,
			wantRetry:   true,
			wantRetries: 1,
			wantCode:    "GENERATION_FAILED",
		},
		{
			name:       "last attempt throws",
			err:        NewDeliveryFailedError("smtp", stderrors.New("refused")),
			jobRetries: 1,
			wantCode:   "DIGEST_DELIVERY_FAILED",
		},
		{
			name:       "non-retryable throws immediately",
			err:        NewRequiredSourceFailedError("crm", stderrors.New("401")),
			jobRetries: 3,
			wantCode:   "CRM_UNAVAILABLE",
		},
		{
			name:       "unknown errors become internal",
			err:        stderrors.New("nil pointer"),
			jobRetries: 3,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.err, tt.jobRetries)
			assert.Equal(t, tt.wantRetry, d.Retry)
			assert.Equal(t, tt.wantRetries, d.Retries)
			assert.Equal(t, tt.wantCode, d.Error.Code)
		})
	}
}
