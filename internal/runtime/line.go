package runtime

import (
	"context"
	"errors"
)

// Line is a sequence of executors run in the same goroutine. Executors
// are started in order; if any fails to start, the started ones are
// flushed in reverse order.
type Line struct {
	started   int
	Executors []Executor
}

// Start starts all executors.
func (l *Line) Start(ctx context.Context) error {
	l.started = 0
	for _, e := range l.Executors {
		if err := e.Start(ctx); err != nil {
			if flushErr := l.Flush(ctx); flushErr != nil {
				return errors.Join(err, flushErr)
			}
			return err
		}
		l.started++
	}
	return nil
}

// Execute executes all executors in order and stops on first error.
func (l *Line) Execute(ctx context.Context) error {
	for _, e := range l.Executors {
		if err := e.Execute(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes started executors in reverse order. All errors are
// returned.
func (l *Line) Flush(ctx context.Context) error {
	var errs []error
	for i := l.started - 1; i >= 0; i-- {
		if err := l.Executors[i].Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	l.started = 0
	return errors.Join(errs...)
}
