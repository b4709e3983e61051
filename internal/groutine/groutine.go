// Package groutine starts named background goroutines. The name is attached
// as a pprof label so the BLE, connect and loop workers are identifiable in
// goroutine profiles.
package groutine

import (
	"context"
	"runtime/pprof"
)

type nameKey struct{}

// LabelName is the pprof label carrying the goroutine name.
const LabelName = "witctl_goroutine"

// Go runs fn on a new goroutine labelled name. The returned channel is
// closed when fn returns. A nil parent uses context.Background.
func Go(parent context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	if parent == nil {
		parent = context.Background()
	}
	done := make(chan struct{})
	go pprof.Do(parent, pprof.Labels(LabelName, name), func(ctx context.Context) {
		defer close(done)
		fn(context.WithValue(ctx, nameKey{}, name))
	})
	return done
}

// Name returns the name given to Go, or "" outside a named goroutine.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(nameKey{}).(string)
	return name
}
