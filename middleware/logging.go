package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"copro-rpc/dispatch"
)

// Logging logs every call with its duration and outcome.
func Logging(log *zap.Logger) Middleware {
	return func(next dispatch.Invoker) dispatch.Invoker {
		return func(ctx context.Context, name string, args ...any) (any, error) {
			start := time.Now()
			val, err := next(ctx, name, args...)
			fields := []zap.Field{
				zap.String("command", name),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				log.Warn("call failed", append(fields, zap.Error(err))...)
			} else {
				log.Debug("call completed", fields...)
			}
			return val, err
		}
	}
}
