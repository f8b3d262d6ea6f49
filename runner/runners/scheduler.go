package runners

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/twitter/solo/common"
	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/runner"
)

// ErrStopped is returned by Submit once Stop has been called.
var ErrStopped = errors.New("scheduler is stopped")

const CancelDelayedMsg = "Cancellation is taking longer than expected; waiting for the job to finish."

type Config struct {
	// Ceiling on how long a cancelled job is treated as aborting. Zero means common.DefaultAbortTimeout.
	AbortTimeout time.Duration

	// Optional. Called on the scheduler goroutine; it must not block.
	Listener Listener
}

// Settlement describes a job that has reached its terminal Result.
type Settlement struct {
	Result    runner.Result
	Params    runner.Params
	Submitted time.Time
	// Zero if the job never started.
	Started time.Time
	Settled time.Time
}

// Listener is told about every settled job, in settlement order.
type Listener interface {
	Settled(s Settlement)
}

// Snapshot is a point-in-time view of the scheduler, for diagnostics.
type Snapshot struct {
	State        runner.SchedulerState `json:"state"`
	Current      runner.JobID          `json:"current,omitempty"`
	Pending      runner.JobID          `json:"pending,omitempty"`
	Aborting     bool                  `json:"aborting"`
	CancelIssued bool                  `json:"cancel_issued"`
	// Remaining debounce delay on the pending job, if any.
	PendingDelay time.Duration `json:"pending_delay_ns,omitempty"`
	AbortTimeout time.Duration `json:"abort_timeout_ns"`
	Stopping     bool          `json:"stopping"`
}

type job struct {
	id        runner.JobID
	params    runner.Params
	sink      runner.ProgressSink
	handle    *runner.Handle
	submitted time.Time

	// Set when the job starts.
	started time.Time
	token   *runner.CancelToken
	relay   *relay

	// Set while the job sits in the pending slot.
	deadline time.Time
}

type finished struct {
	id     runner.JobID
	result runner.Result
}

type submitReq struct {
	job      *job
	opts     runner.SubmitOptions
	resultCh chan error
}

type cancelReq struct {
	doneCh chan struct{}
}

type snapshotReq struct {
	resultCh chan Snapshot
}

type abortTimeoutReq struct {
	timeout time.Duration
	doneCh  chan struct{}
}

type stopReq struct {
	doneCh chan struct{}
}

// Scheduler runs at most one job at a time and holds at most one more in a pending slot.
//
// All scheduling state is owned by a single goroutine (loop). Submissions, cancellations,
// job completions and timer firings are all events on that goroutine, so transitions
// never interleave and no lock guards the slots.
type Scheduler struct {
	inv      *Invoker
	stat     stats.StatsReceiver
	listener Listener
	limiter  *rate.Limiter
	now      func() time.Time

	reqCh      chan interface{}
	finishedCh chan finished
	stoppedCh  chan struct{}

	// Read by relays off the loop goroutine.
	currentID atomic.Value

	// Owned by loop.
	current      *job
	pending      *job
	aborting     bool
	stopping     bool
	abortTimeout time.Duration
	debounce     oneShot
	guard        oneShot
}

var _ runner.Scheduler = (*Scheduler)(nil)

// NewScheduler creates a Scheduler running jobs on exec and starts its goroutine.
func NewScheduler(exec runner.Executor, config Config, stat stats.StatsReceiver) *Scheduler {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	if config.AbortTimeout <= 0 {
		config.AbortTimeout = common.DefaultAbortTimeout
	}
	s := &Scheduler{
		inv:          NewInvoker(exec, stat),
		stat:         stat,
		listener:     config.Listener,
		limiter:      rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
		now:          time.Now,
		reqCh:        make(chan interface{}),
		finishedCh:   make(chan finished),
		stoppedCh:    make(chan struct{}),
		abortTimeout: config.AbortTimeout,
	}
	s.currentID.Store(runner.JobID(""))
	s.publishState()
	go s.loop()
	return s
}

// Submit admits params according to opts. It returns as soon as the admission decision
// is made; BUSY and SUPERSEDED are delivered on the Handle like any other Result.
func (s *Scheduler) Submit(params runner.Params, sink runner.ProgressSink, opts runner.SubmitOptions) (*runner.Handle, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	id := common.NewJobID()
	j := &job{
		id:        id,
		params:    params,
		sink:      sink,
		handle:    runner.NewHandle(id, s.Cancel),
		submitted: s.now(),
	}
	resultCh := make(chan error, 1)
	if !s.send(submitReq{job: j, opts: opts, resultCh: resultCh}) {
		return nil, ErrStopped
	}
	if err := <-resultCh; err != nil {
		return nil, err
	}
	return j.handle, nil
}

// Cancel requests cancellation of whichever job is running. It is a no-op while idle
// and while that job's cancellation is already in flight.
func (s *Scheduler) Cancel() {
	doneCh := make(chan struct{})
	if s.send(cancelReq{doneCh}) {
		<-doneCh
	}
}

func (s *Scheduler) State() runner.SchedulerState {
	return s.Snapshot().State
}

func (s *Scheduler) Snapshot() Snapshot {
	resultCh := make(chan Snapshot, 1)
	if !s.send(snapshotReq{resultCh}) {
		return Snapshot{State: runner.IDLE, Stopping: true}
	}
	return <-resultCh
}

// SetAbortTimeout changes the abort ceiling for cancellations requested from now on.
func (s *Scheduler) SetAbortTimeout(d time.Duration) {
	if d <= 0 {
		d = common.DefaultAbortTimeout
	}
	doneCh := make(chan struct{})
	if s.send(abortTimeoutReq{d, doneCh}) {
		<-doneCh
	}
}

// Stop refuses further submissions, settles the pending job CANCELLED and requests
// cancellation of the running job. It waits for the running job to settle or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	doneCh := make(chan struct{})
	if s.send(stopReq{doneCh}) {
		<-doneCh
	}
	select {
	case <-s.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped is closed once the scheduler goroutine has exited.
func (s *Scheduler) Stopped() <-chan struct{} {
	return s.stoppedCh
}

func (s *Scheduler) send(req interface{}) bool {
	select {
	case s.reqCh <- req:
		return true
	case <-s.stoppedCh:
		return false
	}
}

func (s *Scheduler) isCurrent(id runner.JobID) bool {
	return s.currentID.Load().(runner.JobID) == id
}

func (s *Scheduler) loop() {
	defer close(s.stoppedCh)
	for {
		select {
		case req := <-s.reqCh:
			switch r := req.(type) {
			case submitReq:
				r.resultCh <- s.submit(r.job, r.opts)
			case cancelReq:
				s.cancel("cancel")
				close(r.doneCh)
			case snapshotReq:
				r.resultCh <- s.snapshot()
			case abortTimeoutReq:
				log.Infof("Abort timeout %v -> %v", s.abortTimeout, r.timeout)
				s.abortTimeout = r.timeout
				close(r.doneCh)
			case stopReq:
				s.stop()
				close(r.doneCh)
			}

		case f := <-s.finishedCh:
			s.finish(f)

		case <-s.debounce.C():
			s.debounce.fired()
			s.promote()

		case <-s.guard.C():
			s.guard.fired()
			s.guardExpired()
		}

		s.publishState()
		if s.stopping && s.current == nil && s.pending == nil {
			s.debounce.Stop()
			s.guard.Stop()
			log.Info("Scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) state() runner.SchedulerState {
	return runner.DeriveState(s.current != nil, s.pending != nil, s.aborting)
}

func (s *Scheduler) publishState() {
	s.stat.Gauge(stats.SchedStateGauge).Update(int64(s.state()))
}

func (s *Scheduler) snapshot() Snapshot {
	snap := Snapshot{
		State:        s.state(),
		Aborting:     s.aborting,
		AbortTimeout: s.abortTimeout,
		Stopping:     s.stopping,
	}
	if s.current != nil {
		snap.Current = s.current.id
		snap.CancelIssued = s.current.token.Cancelled()
	}
	if s.pending != nil {
		snap.Pending = s.pending.id
		if d := s.pending.deadline.Sub(s.now()); d > 0 {
			snap.PendingDelay = d
		}
	}
	return snap
}

// submit makes the admission decision for j.
func (s *Scheduler) submit(j *job, opts runner.SubmitOptions) error {
	if s.stopping {
		return ErrStopped
	}
	s.stat.Counter(stats.SchedSubmittedCounter).Inc(1)
	fields := log.Fields{"jobID": j.id, "policy": opts.BusyPolicy, "state": s.state()}

	if s.current == nil && s.pending == nil {
		log.WithFields(fields).Info("Starting job immediately")
		s.start(j)
		return nil
	}

	if opts.BusyPolicy == runner.REJECT {
		log.WithFields(fields).Info("Rejecting job, scheduler busy")
		s.stat.Counter(stats.SchedBusyCounter).Inc(1)
		s.settle(j, runner.BusyResult(j.id))
		return nil
	}

	if s.pending != nil && !opts.ReplaceQueued {
		log.WithFields(fields).Infof("Rejecting job, pending slot held by %s", s.pending.id)
		s.stat.Counter(stats.SchedBusyCounter).Inc(1)
		s.settle(j, runner.BusyResult(j.id))
		return nil
	}

	if s.pending != nil {
		old := s.pending
		s.pending = nil
		log.WithFields(fields).Infof("Superseding pending job %s", old.id)
		s.stat.Counter(stats.SchedSupersededCounter).Inc(1)
		s.settle(old, runner.SupersededResult(old.id))
	}

	j.deadline = s.now().Add(opts.Debounce)
	s.pending = j
	if opts.Debounce > 0 {
		s.stat.Counter(stats.SchedDebounceArmedCounter).Inc(1)
		s.debounce.Reset(j.deadline.Sub(s.now()))
	} else {
		s.debounce.Stop()
	}
	log.WithFields(fields).Infof("Queued job, debounce %v", opts.Debounce)

	if opts.BusyPolicy == runner.ABORT_AND_QUEUE {
		s.cancel("abort_and_queue")
	}
	s.promote()
	return nil
}

// cancel signals the running job's token and arms the abort guard, unless there is no
// running job or its token has already been signaled.
func (s *Scheduler) cancel(why string) {
	if s.current == nil {
		log.Debugf("Ignoring %s, nothing running", why)
		return
	}
	if s.aborting || !s.current.token.Signal() {
		log.Debugf("Ignoring %s, job %s already cancelled", why, s.current.id)
		return
	}
	log.WithFields(log.Fields{"jobID": s.current.id}).Infof("Aborting running job (%s), guard %v", why, s.abortTimeout)
	s.stat.Counter(stats.SchedAbortRequestCounter).Inc(1)
	s.aborting = true
	s.guard.Reset(s.abortTimeout)
}

// guardExpired stops treating the running job as aborting. The job keeps its signaled
// token and is left to finish on its own.
func (s *Scheduler) guardExpired() {
	if s.current == nil || !s.aborting {
		return
	}
	log.WithFields(log.Fields{"jobID": s.current.id}).Warnf("Job did not honor cancellation within %v", s.abortTimeout)
	s.stat.Counter(stats.SchedAbortTimeoutCounter).Inc(1)
	s.aborting = false
	delivered := s.current.relay.Push(runner.Progress{
		Phase:   "cancel",
		Message: CancelDelayedMsg,
		Hint:    runner.HintCancelDelayed,
	})
	if !delivered {
		// The executor has returned; its completion is still on the way to the loop.
		log.WithFields(log.Fields{"jobID": s.current.id}).Debugf("Dropping %s hint, relay closed", runner.HintCancelDelayed)
		s.stat.Counter(stats.SchedProgressDroppedCounter).Inc(1)
	}
}

// promote starts the pending job if nothing is running and its debounce deadline has passed.
func (s *Scheduler) promote() {
	if s.current != nil || s.pending == nil {
		return
	}
	if wait := s.pending.deadline.Sub(s.now()); wait > 0 {
		if !s.debounce.Armed() {
			s.debounce.Reset(wait)
		}
		return
	}
	j := s.pending
	s.pending = nil
	s.debounce.Stop()
	log.WithFields(log.Fields{"jobID": j.id}).Info("Promoting pending job")
	s.start(j)
}

func (s *Scheduler) start(j *job) {
	j.started = s.now()
	j.token = runner.NewCancelToken()
	j.relay = newRelay(j.id, j.sink, s.isCurrent, s.limiter, s.stat)
	s.current = j
	s.currentID.Store(j.id)
	s.stat.Counter(stats.SchedStartedCounter).Inc(1)
	s.stat.Latency(stats.SchedQueueLatency_ms).Record(j.started.Sub(j.submitted))
	s.inv.Run(j.id, j.params, j.token, j.relay, s.finishedCh)
}

func (s *Scheduler) finish(f finished) {
	j := s.current
	if j == nil || j.id != f.id {
		log.Errorf("Dropping result for %s, which is not the running job", f.id)
		return
	}
	s.current = nil
	s.currentID.Store(runner.JobID(""))
	s.aborting = false
	s.guard.Stop()

	log.WithFields(log.Fields{"jobID": j.id, "outcome": f.result.Outcome}).Info("Job finished")
	s.stat.Latency(stats.SchedRunLatency_ms).Record(s.now().Sub(j.started))
	s.settle(j, f.result)
	s.promote()
}

func (s *Scheduler) stop() {
	if s.stopping {
		return
	}
	log.Info("Stopping scheduler")
	s.stopping = true
	if s.pending != nil {
		j := s.pending
		s.pending = nil
		s.debounce.Stop()
		s.settle(j, runner.CancelledResult(j.id))
	}
	s.cancel("stop")
}

// settle delivers the terminal Result for j. Every job passes through here exactly once.
func (s *Scheduler) settle(j *job, r runner.Result) {
	if prev, done := j.handle.Result(); done {
		log.Errorf("Job %s already settled %s, dropping %s", j.id, prev.Outcome, r.Outcome)
		return
	}
	r.JobID = j.id
	s.stat.Counter(stats.SchedSettledCounter).Inc(1)
	s.stat.Scope("outcome").Counter(r.Outcome.String()).Inc(1)
	if s.listener != nil {
		s.listener.Settled(Settlement{
			Result:    r,
			Params:    j.params,
			Submitted: j.submitted,
			Started:   j.started,
			Settled:   s.now(),
		})
	}
	j.handle.Settle(r)
}
