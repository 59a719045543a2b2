package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn in a goroutine carrying a pprof "goroutine_name" label and
// returns a channel that receives fn's result exactly once.
//
//	done := groutine.Go(ctx, "ble-scan", scanner.Run)
//	...
//	if err := <-done; err != nil { ... }
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context) error) <-chan error {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	done := make(chan error, 1)
	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		done <- fn(ctx)
		close(done)
	})

	return done
}

// Name retrieves the goroutine name from the context.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(goroutineNameKey).(string); ok {
		return v
	}
	return ""
}
