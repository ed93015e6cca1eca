package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"copro-rpc/dispatch"
)

// echoInvoker returns its first argument.
func echoInvoker(ctx context.Context, name string, args ...any) (any, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return nil, nil
}

// slowInvoker respects context cancellation, like a real dispatcher call.
func slowInvoker(d time.Duration) dispatch.Invoker {
	return func(ctx context.Context, name string, args ...any) (any, error) {
		select {
		case <-time.After(d):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestLoggingPassthrough(t *testing.T) {
	invoke := Logging(zap.NewNop())(echoInvoker)

	val, err := invoke(context.Background(), "bt.enable", "ok")
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if val != "ok" {
		t.Fatalf("expect 'ok', got %v", val)
	}
}

func TestTimeoutPass(t *testing.T) {
	invoke := Timeout(500 * time.Millisecond)(slowInvoker(10 * time.Millisecond))

	if _, err := invoke(context.Background(), "bt.enable"); err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	invoke := Timeout(20 * time.Millisecond)(slowInvoker(200 * time.Millisecond))

	_, err := invoke(context.Background(), "bt.enable")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect DeadlineExceeded, got %v", err)
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	flaky := func(ctx context.Context, name string, args ...any) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, dispatch.ErrTimeout
		}
		return "ok", nil
	}

	invoke := Retry(3, time.Millisecond)(flaky)
	val, err := invoke(context.Background(), "bt.enable")
	if err != nil {
		t.Fatalf("expect success after retries, got %v", err)
	}
	if val != "ok" || attempts != 3 {
		t.Fatalf("val=%v attempts=%d", val, attempts)
	}
}

func TestRetrySkipsNonRetryable(t *testing.T) {
	attempts := 0
	failing := func(ctx context.Context, name string, args ...any) (any, error) {
		attempts++
		return nil, &dispatch.RemoteError{Status: 5}
	}

	invoke := Retry(3, time.Millisecond)(failing)
	_, err := invoke(context.Background(), "bt.enable")
	var re *dispatch.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expect RemoteError, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("remote errors must not be retried, got %d attempts", attempts)
	}
}

func TestRetryGivesUp(t *testing.T) {
	attempts := 0
	failing := func(ctx context.Context, name string, args ...any) (any, error) {
		attempts++
		return nil, dispatch.ErrTimeout
	}

	invoke := Retry(2, time.Millisecond)(failing)
	_, err := invoke(context.Background(), "bt.enable")
	if !errors.Is(err, dispatch.ErrTimeout) {
		t.Fatalf("expect ErrTimeout, got %v", err)
	}
	if attempts != 3 { // initial + 2 retries
		t.Fatalf("expect 3 attempts, got %d", attempts)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1/s, burst=2: first two pass, third rejected.
	invoke := RateLimit(1, 2)(echoInvoker)

	for i := 0; i < 2; i++ {
		if _, err := invoke(context.Background(), "bt.enable"); err != nil {
			t.Fatalf("request %d should pass, got %v", i, err)
		}
	}
	if _, err := invoke(context.Background(), "bt.enable"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("request 3 should be limited, got %v", err)
	}
}

func TestChainOrderAndPassthrough(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next dispatch.Invoker) dispatch.Invoker {
			return func(ctx context.Context, cmd string, args ...any) (any, error) {
				order = append(order, name)
				return next(ctx, cmd, args...)
			}
		}
	}

	chained := Chain(tag("outer"), tag("inner"), Timeout(500*time.Millisecond))
	invoke := chained(echoInvoker)

	val, err := invoke(context.Background(), "bt.enable", 42)
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if val != 42 {
		t.Fatalf("expect 42, got %v", val)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("wrap order wrong: %v", order)
	}
}
