// Package session resolves an authenticated identity into the internal user
// id that owns notes and folders.
package session

import (
	"context"
	"time"
)

// Status tags the outcome of a Race.
type Status int

const (
	StatusOK Status = iota
	StatusTimedOut
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "failed"
	}
}

// Result is the tagged union returned by Race. Value is meaningful only for
// StatusOK and Err only for StatusFailed.
type Result[T any] struct {
	Status Status
	Value  T
	Err    error
}

// Race runs fn against a timer of length d. fn receives a context that is
// cancelled as soon as the race is decided, so a well-behaved fn abandons its
// I/O when it loses. Race itself never waits longer than d (or ctx).
func Race[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) Result[T] {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if ctx.Err() != nil {
				return Result[T]{Status: StatusTimedOut}
			}
			return Result[T]{Status: StatusFailed, Err: o.err}
		}
		return Result[T]{Status: StatusOK, Value: o.v}
	case <-ctx.Done():
		return Result[T]{Status: StatusTimedOut}
	}
}
