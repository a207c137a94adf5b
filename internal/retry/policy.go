// Package retry classifies LLM call failures and computes backoff.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/Cyclone1070/triage/internal/provider"
)

// Class groups failures by how they are retried.
type Class int

const (
	ClassFatal Class = iota
	ClassThrottle
	ClassTimeout
)

func (c Class) String() string {
	switch c {
	case ClassThrottle:
		return "throttle"
	case ClassTimeout:
		return "timeout"
	default:
		return "fatal"
	}
}

// DefaultMaxRetries is the number of retries allowed after the initial attempt.
const DefaultMaxRetries = 3

// Message fragments that mark a failure as transient when no typed error is
// available. They match case-insensitively.
var (
	throttleSignals = []string{"ThrottlingException", "ServiceQuotaExceededException", "RESOURCE_EXHAUSTED", "Too Many Requests", "rate limit"}
	timeoutSignals  = []string{"Read timeout on endpoint", "ReadTimeoutError"}
)

// Policy decides whether a failed call is retried and how long to wait first.
type Policy struct {
	MaxRetries int
}

// DefaultPolicy returns a policy allowing DefaultMaxRetries retries.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries}
}

// Decision is the outcome of consulting the policy about one failure.
type Decision struct {
	Retry bool
	Wait  time.Duration
	Class Class
}

// Decide classifies err and, for a retryable class, returns the wait before
// retry number attempt (1-based). Exceeding MaxRetries yields Retry=false.
func (p Policy) Decide(err error, attempt int) Decision {
	class := Classify(err)
	if class == ClassFatal || attempt > p.MaxRetries {
		return Decision{Class: class}
	}
	return Decision{Retry: true, Wait: Backoff(class, attempt), Class: class}
}

// Backoff returns the wait before retry number attempt.
// Timeouts wait 5s per attempt capped at 20s; throttling waits 2^attempt seconds capped at 30s.
func Backoff(class Class, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch class {
	case ClassTimeout:
		return min(time.Duration(5*attempt)*time.Second, 20*time.Second)
	case ClassThrottle:
		if attempt >= 5 {
			return 30 * time.Second
		}
		return min(time.Duration(1<<attempt)*time.Second, 30*time.Second)
	default:
		return 0
	}
}

// Classify maps an error to its retry class.
func Classify(err error) Class {
	if err == nil || errors.Is(err, context.Canceled) {
		return ClassFatal
	}

	switch provider.CodeOf(err) {
	case provider.ErrorCodeRateLimit, provider.ErrorCodeQuota:
		return ClassThrottle
	case provider.ErrorCodeTimeout:
		return ClassTimeout
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, throttleSignals) {
		return ClassThrottle
	}
	if containsAny(msg, timeoutSignals) {
		return ClassTimeout
	}
	return ClassFatal
}

func containsAny(msg string, signals []string) bool {
	for _, s := range signals {
		if strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
