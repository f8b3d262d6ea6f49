package runners

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/runner"
)

var ErrLifecycleBusy = errors.New("another lifecycle operation is in progress")
var ErrLifecycleUnsupported = errors.New("executor does not support lifecycle operations")

type LifecycleOp string

const (
	LOAD   LifecycleOp = "load"
	UNLOAD LifecycleOp = "unload"
	PURGE  LifecycleOp = "purge"
)

// Lifecycle loads, unloads and purges an executor's model. Calls never overlap:
// a call made while another is in flight fails with ErrLifecycleBusy.
type Lifecycle struct {
	loader   runner.Loader
	stat     stats.StatsReceiver
	inFlight atomic.Bool
}

// NewLifecycle wraps exec. If exec is not a runner.Loader every call
// returns ErrLifecycleUnsupported.
func NewLifecycle(exec runner.Executor, stat stats.StatsReceiver) *Lifecycle {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	l := &Lifecycle{stat: stat}
	if loader, ok := exec.(runner.Loader); ok {
		l.loader = loader
	}
	return l
}

func (l *Lifecycle) Load(ctx context.Context) error {
	return l.do(ctx, LOAD)
}

func (l *Lifecycle) Unload(ctx context.Context) error {
	return l.do(ctx, UNLOAD)
}

func (l *Lifecycle) Purge(ctx context.Context) error {
	return l.do(ctx, PURGE)
}

func (l *Lifecycle) Do(ctx context.Context, op LifecycleOp) error {
	return l.do(ctx, op)
}

func (l *Lifecycle) do(ctx context.Context, op LifecycleOp) error {
	if l.loader == nil {
		return ErrLifecycleUnsupported
	}
	if !l.inFlight.CompareAndSwap(false, true) {
		log.Infof("Rejecting %s, another lifecycle operation is in flight", op)
		l.stat.Counter(stats.LifecycleBusyCounter).Inc(1)
		return ErrLifecycleBusy
	}
	defer l.inFlight.Store(false)
	defer l.stat.Latency(stats.LifecycleLatency_ms).Time().Stop()

	start := time.Now()
	var err error
	switch op {
	case LOAD:
		err = l.loader.Load(ctx)
	case UNLOAD:
		err = l.loader.Unload(ctx)
	case PURGE:
		err = l.loader.Purge(ctx)
	default:
		return errors.New("unknown lifecycle operation " + string(op))
	}
	log.WithFields(log.Fields{"op": op, "elapsed": time.Since(start), "err": err}).Info("Lifecycle operation done")
	return err
}
