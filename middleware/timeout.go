package middleware

import (
	"context"
	"time"

	"copro-rpc/dispatch"
)

// Timeout bounds each call with a context deadline, tighter of this and any
// deadline already on the context. The dispatcher's own response window
// still applies; this adds an end-to-end cap that also covers send time.
func Timeout(timeout time.Duration) Middleware {
	return func(next dispatch.Invoker) dispatch.Invoker {
		return func(ctx context.Context, name string, args ...any) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, name, args...)
		}
	}
}
