package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMatchingByCode(t *testing.T) {
	err := NewUnknownTargetError("DURIAN")

	assert.True(t, errors.Is(err, ErrUnknownTarget))
	assert.False(t, errors.Is(err, ErrBackendUnavailable))
	assert.False(t, errors.Is(err, ErrInvalidPayload))
}

func TestWrappedErrorsStillMatch(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", NewBackendUnavailableError("MANGO", context.DeadlineExceeded))

	assert.True(t, errors.Is(err, ErrBackendUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, ErrCodeBackendUnavailable, GetErrorCode(err))
}

func TestHTTPStatusCodes(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{NewUnknownTargetError("x"), http.StatusNotFound},
		{NewInvalidPayloadError("x", "negative"), http.StatusBadRequest},
		{NewConfigRejectedError("x", "bad"), http.StatusBadRequest},
		{NewBackendUnavailableError("x", errors.New("boom")), http.StatusServiceUnavailable},
		{NewInvalidRequestError("empty"), http.StatusBadRequest},
		{NewError(ErrCodeRateLimitExceeded, "rate_limiter", "slow down"), http.StatusTooManyRequests},
		{NewError(ErrCodeConfigLoad, "config_reload", "bad yaml"), http.StatusUnprocessableEntity},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, GetHTTPStatusCode(tt.err), tt.err.Error())
	}
}

func TestErrorStringIncludesRequestID(t *testing.T) {
	err := NewBackendUnavailableError("PEAR", errors.New("timeout")).WithRequestID("req_1")

	assert.Contains(t, err.Error(), "req_1")
	assert.Contains(t, err.Error(), string(ErrCodeBackendUnavailable))
	assert.Equal(t, "timeout", err.Details)
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError(nil, ErrCodeInternalError, "x", "y"))
	assert.False(t, IsDispatchError(errors.New("plain")))
}

func TestAsDispatchErrorThroughWrapping(t *testing.T) {
	inner := NewUnknownTargetError("DURIAN")
	wrapped := fmt.Errorf("dispatch: %w", inner)

	dErr, ok := AsDispatchError(wrapped)
	assert.True(t, ok)
	assert.Same(t, inner, dErr)

	_, ok = AsDispatchError(errors.New("plain"))
	assert.False(t, ok)
}
