package runners

import "time"

// oneShot is a restartable single-shot timer owned by the scheduler loop.
// Its channel is nil while disarmed, so selecting on it blocks forever.
type oneShot struct {
	t *time.Timer
}

// Reset disarms the timer and arms it again to fire after d.
func (o *oneShot) Reset(d time.Duration) {
	o.Stop()
	if d < 0 {
		d = 0
	}
	o.t = time.NewTimer(d)
}

func (o *oneShot) Stop() {
	if o.t != nil {
		o.t.Stop()
		o.t = nil
	}
}

func (o *oneShot) Armed() bool {
	return o.t != nil
}

func (o *oneShot) C() <-chan time.Time {
	if o.t == nil {
		return nil
	}
	return o.t.C
}

// fired must be called by the loop after receiving from C.
func (o *oneShot) fired() {
	o.t = nil
}
