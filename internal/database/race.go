package database

import (
	"context"
	"time"
)

type outcome[T any] struct {
	val T
	err error
}

// Race runs fn concurrently with a timer of duration d and returns whichever
// finishes first.
//
// If fn returns before d elapses its result is returned unchanged. If the
// timer fires first Race returns a *TimeoutError for op immediately; fn is
// not cancelled and keeps running. If ctx is done first, ctx.Err() is
// returned. In both losing cases the eventual outcome of fn is passed to
// late on a detached goroutine, so a late connection can be reclaimed and a
// late failure is observed rather than lost. late may be nil.
//
// A zero or negative d is an immediate timeout, not "no timeout".
func Race[T any](ctx context.Context, op Operation, d time.Duration, fn func() (T, error), late func(T, error)) (T, error) {
	done := make(chan outcome[T], 1)
	go func() {
		val, err := fn()
		done <- outcome[T]{val: val, err: err}
	}()

	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case o := <-done:
		return o.val, o.err
	case <-timer.C:
		// fn may have settled in the same instant; its result wins.
		select {
		case o := <-done:
			return o.val, o.err
		default:
		}
		abandon(done, late)
		return zero, &TimeoutError{Operation: op, Timeout: d}
	case <-ctx.Done():
		abandon(done, late)
		return zero, ctx.Err()
	}
}

// abandon hands the losing side of a race to late once it settles.
func abandon[T any](done <-chan outcome[T], late func(T, error)) {
	if late == nil {
		return
	}
	go func() {
		o := <-done
		late(o.val, o.err)
	}()
}
