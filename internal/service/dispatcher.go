package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campus_social/pkg/logger"
)

// Dispatcher runs best-effort side effects (notifications, realtime pushes)
// outside the caller's primary operation. Failures and panics are logged and
// never reach the caller.
type Dispatcher struct {
	timeout time.Duration
	log     logger.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(timeout time.Duration, log logger.Logger) *Dispatcher {
	return &Dispatcher{timeout: timeout, log: log}
}

// Go runs fn in the background with the default side-effect timeout.
func (d *Dispatcher) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	d.GoWithin(ctx, name, d.timeout, fn)
}

// GoWithin is Go with an explicit timeout. A zero timeout means none.
// The returned effect keeps ctx values but not its cancellation, so it
// outlives the request that triggered it.
func (d *Dispatcher) GoWithin(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, name, timeout, fn)
	}()
}

// Run executes fn synchronously with the same isolation as Go.
func (d *Dispatcher) Run(ctx context.Context, name string, fn func(ctx context.Context) error) {
	d.run(context.WithoutCancel(ctx), name, d.timeout, fn)
}

func (d *Dispatcher) run(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Side effect panicked", "effect", name, "panic", fmt.Sprint(r))
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := fn(ctx); err != nil {
		d.log.Warn("Side effect failed", "effect", name, "error", err)
	}
}

// Wait blocks until every side effect started so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown waits for in-flight side effects or gives up when ctx expires.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
