package service

import (
	"context"
	"sync"
	"time"
)

// inFlightCall is one upstream call that several callers may wait on.
type inFlightCall[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// requestCoalescer collapses concurrent calls for the same key into one upstream call.
type requestCoalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightCall[T]
	timeout  time.Duration
}

func newRequestCoalescer[T any](timeout time.Duration) *requestCoalescer[T] {
	return &requestCoalescer[T]{
		inFlight: make(map[string]*inFlightCall[T]),
		timeout:  timeout,
	}
}

// Do runs fn for key unless a call for key is already running, in which case it waits
// for that call's result. shared reports whether the result came from another caller's call.
// fn runs detached from the first caller's cancellation, bounded by the coalescer timeout,
// so that one abandoned request does not fail every waiter.
func (rc *requestCoalescer[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (val T, shared bool, err error) {
	rc.mu.Lock()
	if call, ok := rc.inFlight[key]; ok {
		rc.mu.Unlock()
		val, err = rc.wait(ctx, call)
		return val, true, err
	}
	call := &inFlightCall[T]{done: make(chan struct{})}
	rc.inFlight[key] = call
	rc.mu.Unlock()

	go func() {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		defer cancel()
		call.val, call.err = fn(callCtx)

		rc.mu.Lock()
		delete(rc.inFlight, key)
		rc.mu.Unlock()
		close(call.done)
	}()

	val, err = rc.wait(ctx, call)
	return val, false, err
}

func (rc *requestCoalescer[T]) wait(ctx context.Context, call *inFlightCall[T]) (T, error) {
	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-call.done:
		return call.val, call.err
	case <-waitCtx.Done():
		var zero T
		return zero, waitCtx.Err()
	}
}
