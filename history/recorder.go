package history

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/runner/runners"
)

const recorderBacklog = 256

// Recorder is a runners.Listener that writes settled jobs to a Store from its own
// goroutine. When the backlog is full new records are dropped rather than stalling
// the scheduler.
type Recorder struct {
	store Store
	stat  stats.StatsReceiver
	ch    chan Record
	wg    sync.WaitGroup
	once  sync.Once
}

var _ runners.Listener = (*Recorder)(nil)

func NewRecorder(store Store, stat stats.StatsReceiver) *Recorder {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	r := &Recorder{store: store, stat: stat, ch: make(chan Record, recorderBacklog)}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Recorder) Settled(s runners.Settlement) {
	rec := Record{
		JobID:        s.Result.JobID,
		Outcome:      s.Result.Outcome,
		Prompt:       s.Params.Prompt,
		Model:        s.Params.Model,
		Error:        s.Result.Error,
		PayloadBytes: len(s.Result.Payload),
		Elapsed:      s.Result.Elapsed,
		Submitted:    s.Submitted,
		Started:      s.Started,
		Settled:      s.Settled,
	}
	select {
	case r.ch <- rec:
	default:
		r.stat.Counter(stats.HistoryDroppedCounter).Inc(1)
		log.WithFields(log.Fields{"jobID": rec.JobID}).Warn("History backlog full, dropping record")
	}
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for rec := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.store.Add(ctx, rec)
		cancel()
		if err != nil {
			log.WithFields(log.Fields{"jobID": rec.JobID, "err": err}).Error("Couldn't record job")
			continue
		}
		r.stat.Counter(stats.HistoryRecordedCounter).Inc(1)
	}
}

// Close flushes the backlog. Settled must not be called after Close.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.ch)
		r.wg.Wait()
	})
}
