package replica

import (
	"context"
	"sync"
)

// Result is the outcome of one backend call
type Result struct {
	Total float64
	Err   error
}

// Future is completed exactly once by the replica that served the call
type Future struct {
	ch   chan struct{}
	res  Result
	once sync.Once
}

func newFuture() *Future {
	return &Future{ch: make(chan struct{})}
}

// complete sets the result; later calls are ignored
func (f *Future) complete(res Result) {
	f.once.Do(func() {
		f.res = res
		close(f.ch)
	})
}

// Done returns a channel closed when the result is available
func (f *Future) Done() <-chan struct{} {
	return f.ch
}

// Wait blocks until the future completes or ctx is done
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.ch:
		return f.res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
