package middleware

import (
	"context"
	"errors"
	"time"

	"copro-rpc/dispatch"
)

// Retry re-issues a call up to maxRetries times with exponential backoff.
// Only timeouts and send-path transport failures are retried; remote errors,
// encoding errors, and a closed transport are final. The remote may have
// executed a timed-out call, so only use this on idempotent commands.
func Retry(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next dispatch.Invoker) dispatch.Invoker {
		return func(ctx context.Context, name string, args ...any) (any, error) {
			val, err := next(ctx, name, args...)
			for i := 0; i < maxRetries && retryable(err); i++ {
				select {
				case <-time.After(baseDelay * time.Duration(1<<i)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				val, err = next(ctx, name, args...)
			}
			return val, err
		}
	}
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, dispatch.ErrTimeout) {
		return true
	}
	var te *dispatch.TransportError
	return errors.As(err, &te)
}
