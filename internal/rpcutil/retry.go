// Package rpcutil retries transient chain RPC failures with exponential
// backoff. Definitive answers, a missing transaction included, pass
// through untouched so verification semantics never depend on retry
// behavior.
package rpcutil

import (
	"context"
	"strings"
	"time"

	"github.com/solbeacon/server/internal/logger"
)

// Policy controls retry behavior.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy covers the flaky-endpoint case without stretching a
// request past its timeout: at most 3 attempts, 100ms then 200ms apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond}
}

// Do runs op under the default policy.
func Do[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return DoWithPolicy(ctx, DefaultPolicy(), op)
}

// DoWithPolicy runs op, retrying transient failures with exponential
// backoff until the policy is exhausted or the context ends.
func DoWithPolicy[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err = op()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil || !Transient(err) || attempt == p.MaxAttempts {
			return result, err
		}

		delay := p.BaseDelay * time.Duration(1<<uint(attempt-1))
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Dur("retry_delay", delay).
			Msg("rpc.retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}
	return result, err
}

// Transient reports whether an RPC error is worth retrying. Open circuit
// breakers are not: the breaker already decided the endpoint needs rest.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "circuit breaker") {
		return false
	}

	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "no such host"):
		return true
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"):
		return true
	case strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "gateway timeout"):
		return true
	}
	return false
}
