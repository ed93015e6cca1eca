// Package middleware provides composable wrappers around the dispatch call
// path: logging, per-call timeouts, retries, and rate limiting. The core
// performs none of these itself; callers opt in by wrapping an Invoker.
package middleware

import (
	"copro-rpc/dispatch"
)

// Middleware wraps an Invoker with additional behavior.
type Middleware func(next dispatch.Invoker) dispatch.Invoker

// Chain composes middlewares into one. The first middleware in the list is
// the outermost wrapper.
func Chain(middlewares ...Middleware) Middleware {
	return func(next dispatch.Invoker) dispatch.Invoker {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
