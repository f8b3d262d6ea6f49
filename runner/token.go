package runner

import (
	"context"
	"sync/atomic"
)

// CancelToken is a one-shot cancellation signal handed to exactly one job.
// Executors observe it at their own checkpoints; signaling it never stops anything by force.
type CancelToken struct {
	signaled atomic.Bool
	ch       chan struct{}
}

func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Signal fires the token. It reports whether this call was the one that fired it.
func (t *CancelToken) Signal() bool {
	if !t.signaled.CompareAndSwap(false, true) {
		return false
	}
	close(t.ch)
	return true
}

// Done is closed once the token has been signaled.
func (t *CancelToken) Done() <-chan struct{} {
	return t.ch
}

func (t *CancelToken) Cancelled() bool {
	return t.signaled.Load()
}

// Err returns ErrCancelled once signaled, so an executor checkpoint reads:
//
//	if err := token.Err(); err != nil {
//		return Output{}, err
//	}
func (t *CancelToken) Err() error {
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// Context derives a context that is cancelled when the token fires or parent is done.
func (t *CancelToken) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-t.ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
