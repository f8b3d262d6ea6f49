package runners

import (
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/runner"
)

// Events beyond this many undelivered ones are dropped, oldest first.
const maxRelayBacklog = 1024

// relay forwards one job's progress to that job's sink from its own goroutine,
// so neither the executor nor the scheduler loop ever waits on a slow sink.
type relay struct {
	id        runner.JobID
	sink      runner.ProgressSink
	isCurrent func(runner.JobID) bool
	limiter   *rate.Limiter
	stat      stats.StatsReceiver

	mu     sync.Mutex
	queue  []runner.Progress
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newRelay(
	id runner.JobID,
	sink runner.ProgressSink,
	isCurrent func(runner.JobID) bool,
	limiter *rate.Limiter,
	stat stats.StatsReceiver,
) *relay {
	if sink == nil {
		sink = runner.NopSink
	}
	r := &relay{
		id:        id,
		sink:      sink,
		isCurrent: isCurrent,
		limiter:   limiter,
		stat:      stat,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// Push enqueues p for delivery. It never blocks and reports false once the relay is closed.
func (r *relay) Push(p runner.Progress) bool {
	p.JobID = r.id
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if len(r.queue) >= maxRelayBacklog {
		r.queue = r.queue[1:]
		r.stat.Counter(stats.SchedProgressDroppedCounter).Inc(1)
	}
	r.queue = append(r.queue, p)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops accepting events and returns once everything queued has been delivered.
func (r *relay) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
	<-r.done
}

func (r *relay) run() {
	defer close(r.done)
	for {
		r.mu.Lock()
		batch := r.queue
		r.queue = nil
		closed := r.closed
		r.mu.Unlock()

		for _, p := range batch {
			r.deliver(p)
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-r.wake
		}
	}
}

func (r *relay) deliver(p runner.Progress) {
	if !r.isCurrent(p.JobID) {
		r.stat.Counter(stats.SchedProgressDroppedCounter).Inc(1)
		return
	}
	p = runner.Normalize(p)
	r.stat.Counter(stats.SchedProgressCounter).Inc(1)
	if r.limiter.Allow() {
		log.WithFields(log.Fields{
			"jobID": p.JobID,
			"phase": p.Phase,
			"hint":  p.Hint,
		}).Debugf("progress %s", percentString(p))
	}
	r.sink(p)
}

func percentString(p runner.Progress) string {
	if p.Percent == nil {
		return "-"
	}
	return strconv.Itoa(*p.Percent) + "%"
}
