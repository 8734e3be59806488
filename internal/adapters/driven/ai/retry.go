package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/veridian-labs/regcore/internal/core/domain"
)

const (
	defaultRetryAttempts = 3
	retryBaseDelay       = 500 * time.Millisecond
)

// statusError maps a provider HTTP status to the domain error taxonomy.
// 429 and 5xx are transient and retryable; everything else is not.
func statusError(provider string, status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s returned 429", domain.ErrRateLimited, provider)
	case status >= 500:
		return fmt.Errorf("%w: %s returned status %d", domain.ErrModelUnavailable, provider, status)
	default:
		return fmt.Errorf("%s API returned status %d", provider, status)
	}
}

// withRetries runs fn up to attempts times, backing off exponentially on
// rate-limit and availability errors. Other errors fail immediately.
func withRetries(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrRateLimited) && !errors.Is(err, domain.ErrModelUnavailable) {
			return err
		}
		if i == attempts-1 {
			break
		}

		delay := retryBaseDelay << i
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
