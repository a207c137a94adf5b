package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Cyclone1070/triage/internal/provider"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"rate limit code", &provider.ProviderError{Code: provider.ErrorCodeRateLimit}, ClassThrottle},
		{"quota code", fmt.Errorf("wrapped: %w", &provider.ProviderError{Code: provider.ErrorCodeQuota}), ClassThrottle},
		{"timeout code", &provider.ProviderError{Code: provider.ErrorCodeTimeout}, ClassTimeout},
		{"auth code", &provider.ProviderError{Code: provider.ErrorCodeAuth}, ClassFatal},
		{"unavailable code", &provider.ProviderError{Code: provider.ErrorCodeUnavailable}, ClassFatal},
		{"throttling text", errors.New("An error occurred (ThrottlingException) when calling Converse"), ClassThrottle},
		{"service quota text", errors.New("ServiceQuotaExceededException: too many tokens"), ClassThrottle},
		{"too many requests text", errors.New("HTTP 429 Too Many Requests"), ClassThrottle},
		{"rate limit text", errors.New("Rate limit exceeded, slow down"), ClassThrottle},
		{"read timeout text", errors.New("Read timeout on endpoint URL"), ClassTimeout},
		{"read timeout error text", errors.New("ReadTimeoutError: pool closed"), ClassTimeout},
		{"net timeout", timeoutErr{}, ClassTimeout},
		{"deadline", context.DeadlineExceeded, ClassTimeout},
		{"canceled", context.Canceled, ClassFatal},
		{"validation", errors.New("ValidationException: bad input"), ClassFatal},
		{"nil", nil, ClassFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestBackoff_Throttle(t *testing.T) {
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, Backoff(ClassThrottle, i+1), "attempt %d", i+1)
	}
}

func TestBackoff_Timeout(t *testing.T) {
	want := []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second, 20 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, Backoff(ClassTimeout, i+1), "attempt %d", i+1)
	}
}

func TestDecide_RetriesUntilCeiling(t *testing.T) {
	p := DefaultPolicy()
	err := &provider.ProviderError{Code: provider.ErrorCodeRateLimit}

	for attempt := 1; attempt <= 3; attempt++ {
		d := p.Decide(err, attempt)
		assert.True(t, d.Retry, "attempt %d", attempt)
		assert.Equal(t, ClassThrottle, d.Class)
	}
	d := p.Decide(err, 4)
	assert.False(t, d.Retry)
	assert.Equal(t, ClassThrottle, d.Class)
}

func TestDecide_FatalNeverRetries(t *testing.T) {
	d := DefaultPolicy().Decide(errors.New("boom"), 1)

	assert.False(t, d.Retry)
	assert.Equal(t, time.Duration(0), d.Wait)
	assert.Equal(t, "fatal", d.Class.String())
}

func TestSleep_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleep_Elapses(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
