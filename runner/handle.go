package runner

import (
	"context"
	"sync"
)

// Handle is what a submitter holds: the job id, its eventual Result, and a way to
// cancel whichever job is currently running.
type Handle struct {
	id     JobID
	cancel func()

	once   sync.Once
	done   chan struct{}
	result Result
}

func NewHandle(id JobID, cancel func()) *Handle {
	if cancel == nil {
		cancel = func() {}
	}
	return &Handle{id: id, cancel: cancel, done: make(chan struct{})}
}

func (h *Handle) ID() JobID {
	return h.id
}

// Done is closed when the Result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the terminal Result and whether the job has settled.
func (h *Handle) Result() (Result, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the job settles or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel requests cancellation of the currently running job, which is not
// necessarily the job this Handle was issued for.
func (h *Handle) Cancel() {
	h.cancel()
}

// Settle records r as the job's Result. Only the first call has any effect;
// it reports whether this call settled the job.
func (h *Handle) Settle(r Result) bool {
	settled := false
	h.once.Do(func() {
		r.JobID = h.id
		h.result = r
		close(h.done)
		settled = true
	})
	return settled
}
