package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// ErrorHandler receives the error returned by a background task, or the
// recovered panic converted to an error.
type ErrorHandler func(taskName string, err error)

// PanicError is reported to the ErrorHandler when a task panics
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// SafeGo executes fn in a goroutine with a timeout and panic recovery.
// Errors and panics go to onError, which may be nil.
//
// Use this instead of bare `go func()` so a failing background task can
// never crash the process.
//
//	SafeGo(context.WithoutCancel(ctx), 5*time.Second, "audit write", onError, func(ctx context.Context) error {
//	    return recorder.Write(ctx, entry)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, onError ErrorHandler, fn func(context.Context) error) {
	go run(parentCtx, timeout, taskName, onError, fn)
}

func run(parentCtx context.Context, timeout time.Duration, taskName string, onError ErrorHandler, fn func(context.Context) error) {
	ctx := parentCtx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parentCtx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil && onError != nil {
			onError(taskName, &PanicError{Value: r, Stack: debug.Stack()})
		}
	}()

	if err := fn(ctx); err != nil && onError != nil {
		onError(taskName, err)
	}
}

// Group tracks background tasks started through it so they can be drained
// before shutdown.
type Group struct {
	wg      sync.WaitGroup
	onError ErrorHandler
}

// NewGroup creates a group reporting task failures to onError
func NewGroup(onError ErrorHandler) *Group {
	return &Group{onError: onError}
}

// Go starts fn like SafeGo and tracks it until it returns
func (g *Group) Go(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		run(parentCtx, timeout, taskName, g.onError, fn)
	}()
}

// Wait blocks until every tracked task has returned or ctx is done
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background tasks still running: %w", ctx.Err())
	}
}
