// Package runtime drives executors from trigger channels. Each executor
// runs in its own goroutine, one Execute call per trigger, and fires the
// triggers of downstream executors when the call completes.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

type (
	// Executor executes a single cycle of work.
	Executor interface {
		Start(context.Context) error
		Execute(context.Context) error
		Flush(context.Context) error
	}

	// StartFunc is a closure that triggers executor start hook.
	StartFunc func(ctx context.Context) error
	// FlushFunc is a closure that triggers executor flush hook.
	FlushFunc func(ctx context.Context) error
	// ExecuteFunc is a closure that executes a single cycle.
	ExecuteFunc func(ctx context.Context) error
)

// Start calls the start hook.
func (fn StartFunc) Start(ctx context.Context) error {
	return callHook(ctx, fn)
}

// Flush calls the flush hook.
func (fn FlushFunc) Flush(ctx context.Context) error {
	return callHook(ctx, fn)
}

// Execute calls the execute function.
func (fn ExecuteFunc) Execute(ctx context.Context) error {
	return callHook(ctx, fn)
}

func callHook(ctx context.Context, hook func(context.Context) error) error {
	if hook == nil {
		return nil
	}
	return hook(ctx)
}

// Func composes executor of closures.
type Func struct {
	StartFunc
	ExecuteFunc
	FlushFunc
}

// Trigger wakes up an executor. Pending trigger is never duplicated: a
// trigger fired while previous one is not consumed yet is counted as
// missed.
type Trigger struct {
	c      chan struct{}
	missed atomic.Uint64
}

// NewTrigger returns new trigger.
func NewTrigger() *Trigger {
	return &Trigger{c: make(chan struct{}, 1)}
}

// Fire signals the trigger. False is returned if previous signal wasn't
// consumed.
func (t *Trigger) Fire() bool {
	select {
	case t.c <- struct{}{}:
		return true
	default:
		t.missed.Add(1)
		return false
	}
}

// C returns channel to wait on.
func (t *Trigger) C() <-chan struct{} {
	return t.c
}

// Missed returns number of coalesced signals.
func (t *Trigger) Missed() uint64 {
	return t.missed.Load()
}

// Run starts executor and executes it on every trigger signal until
// context is done or executor returns an error. Flush is always called
// after successful start. io.EOF returned by executor stops it without
// error.
func Run(ctx context.Context, e Executor, trigger *Trigger, next ...*Trigger) (err error) {
	if err := e.Start(ctx); err != nil {
		return fmt.Errorf("error starting executor: %w", err)
	}
	defer func() {
		if flushErr := e.Flush(ctx); flushErr != nil {
			err = errors.Join(err, fmt.Errorf("error flushing executor: %w", flushErr))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-trigger.C():
		}
		if err := e.Execute(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("error running executor: %w", err)
		}
		for _, t := range next {
			t.Fire()
		}
	}
}
