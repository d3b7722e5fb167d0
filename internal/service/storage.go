package service

import (
	"context"
	"errors"
	"fmt"

	"cashback/internal/domain"
	"cashback/pkg/circuitbreaker"
)

// guard runs fn through the storage breaker and maps infrastructure
// failures onto ErrStorageUnavailable. Business rejections and CAS misses
// pass through untouched.
func guard(breaker *circuitbreaker.CircuitBreaker, fn func() error) error {
	if breaker == nil {
		return classify(fn())
	}
	return classify(breaker.Execute(fn))
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsBusinessError(err),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrStorageUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
}

// retryable reports whether another attempt may succeed.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || domain.IsBusinessError(err) || errors.Is(err, domain.ErrCommitOutcomeUnknown) {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return false
	}
	return true
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsBusinessError(err):
		return "rejected"
	case errors.Is(err, domain.ErrConcurrentModificationRetryExceeded):
		return "conflict"
	default:
		return "unavailable"
	}
}
