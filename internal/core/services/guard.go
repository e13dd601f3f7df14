package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// callService runs fn against an external service with a deadline and maps
// its failure onto the domain taxonomy:
//
//   - the caller's own cancellation or deadline is returned unchanged
//   - a deadline hit by this call becomes domain.ErrServiceTimeout
//   - anything else becomes domain.ErrServiceError
//
// A timeout of zero or less means no extra deadline.
func callService(ctx context.Context, service string, timeout time.Duration, fn func(ctx context.Context) error) error {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := fn(callCtx)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, domain.ErrServiceTimeout) || errors.Is(err, domain.ErrServiceError) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %s: %v", service, domain.ErrServiceTimeout, timeout, err)
	}
	return fmt.Errorf("%s: %w: %v", service, domain.ErrServiceError, err)
}

// indexError tags vector index failures as domain.ErrIndexUnavailable unless
// they already carry a domain meaning or come from cancellation.
func indexError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	switch {
	case errors.Is(err, domain.ErrIndexUnavailable),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("vector index %s: %w", op, err)
	default:
		return fmt.Errorf("vector index %s: %w: %v", op, domain.ErrIndexUnavailable, err)
	}
}
