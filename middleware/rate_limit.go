package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"copro-rpc/dispatch"
)

// ErrRateLimited is returned when a call exceeds the configured rate.
var ErrRateLimited = errors.New("middleware: rate limit exceeded")

// RateLimit rejects calls beyond r per second with a burst allowance, token
// bucket style. Useful when the co-processor's command queue is shallow and
// a flood of calls would only turn into timeouts.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next dispatch.Invoker) dispatch.Invoker {
		return func(ctx context.Context, name string, args ...any) (any, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, name, args...)
		}
	}
}
