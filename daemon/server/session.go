package server

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/luci/go-render/render"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/daemon/protocol"
	"github.com/twitter/solo/runner"
)

var errSessionClosed = errors.New("session closed")

var openSessions int64

// Progress events held per job while the peer is slow; the oldest go first.
const sessionProgressBuffer = 64

// Port is the daemon's end of one message channel.
// Recv returns io.EOF once the peer will send no more requests.
type Port interface {
	Recv() (*protocol.Request, error)
	Send(*protocol.Response) error
}

// Defaults supplies the SubmitOptions a request's Options are applied over.
type Defaults func() runner.SubmitOptions

// Session binds one Port to a scheduler. It only translates: requests become
// Submit/Cancel/State calls and scheduler events become responses.
type Session struct {
	sched    runner.Scheduler
	defaults Defaults
	port     Port
	stat     stats.StatsReceiver

	sendMu    sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	inflight  sync.WaitGroup
}

func NewSession(sched runner.Scheduler, defaults Defaults, port Port, stat stats.StatsReceiver) *Session {
	if defaults == nil {
		defaults = runner.DefaultSubmitOptions
	}
	return &Session{
		sched:    sched,
		defaults: defaults,
		port:     port,
		stat:     stat,
		done:     make(chan struct{}),
	}
}

// Serve handles requests until the port is drained or ctx is done.
// Jobs submitted in this session keep running after it returns; only their
// remaining responses are dropped.
func (s *Session) Serve(ctx context.Context) error {
	gauge := s.stat.Gauge(stats.DaemonSessionsGauge)
	gauge.Update(atomic.AddInt64(&openSessions, 1))
	defer func() { gauge.Update(atomic.AddInt64(&openSessions, -1)) }()

	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-s.done:
		}
	}()
	defer func() {
		s.close()
		s.inflight.Wait()
	}()

	for {
		req, err := s.port.Recv()
		if err == io.EOF {
			s.inflight.Wait()
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "session recv")
		}
		log.Debugf("session recv %s", render.Render(req))
		if err := s.handle(req); err != nil {
			return err
		}
	}
}

func (s *Session) handle(req *protocol.Request) error {
	if err := req.Validate(); err != nil {
		s.stat.Counter(stats.DaemonBadRequestCounter).Inc(1)
		return s.send(protocol.ErrorResponse(req.ID, err))
	}
	s.stat.Scope(stats.DaemonRequestCounter).Counter(string(req.Kind)).Inc(1)

	switch req.Kind {
	case protocol.CANCEL:
		s.sched.Cancel()
		return s.send(protocol.Accepted(req.ID, ""))
	case protocol.STATE:
		return s.send(protocol.StateResponse(req.ID, s.sched.State()))
	}
	return s.submit(req)
}

func (s *Session) submit(req *protocol.Request) error {
	opts := req.Options.Apply(s.defaults())

	// The sink runs on the job's relay and must never wait on the peer: a client
	// that stops reading would otherwise keep the job, and the scheduler, busy.
	progress := make(chan runner.Progress, sessionProgressBuffer)
	sink := func(p runner.Progress) {
		for {
			select {
			case progress <- p:
				return
			default:
			}
			select {
			case <-progress:
				s.stat.Counter(stats.DaemonProgressDroppedCounter).Inc(1)
			default:
			}
		}
	}

	handle, err := s.sched.Submit(*req.Params, sink, opts)
	if err != nil {
		return s.send(protocol.ErrorResponse(req.ID, err))
	}
	sendErr := s.send(protocol.Accepted(req.ID, handle.ID()))

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.forward(req.ID, handle, progress)
	}()
	return sendErr
}

// forward sends a job's buffered progress and then its result. The relay has
// handed over every event by the time the job settles, so draining after Done
// keeps progress ahead of the result.
func (s *Session) forward(id string, handle *runner.Handle, progress <-chan runner.Progress) {
	for {
		select {
		case p := <-progress:
			s.sendProgress(id, p)
		case <-handle.Done():
			s.drainProgress(id, progress)
			r, _ := handle.Result()
			if err := s.send(protocol.ResultResponse(id, r)); err != nil {
				log.Debugf("session dropped result for %s: %v", r.JobID, err)
			}
			return
		case <-s.done:
			return
		}
	}
}

func (s *Session) drainProgress(id string, progress <-chan runner.Progress) {
	for {
		select {
		case p := <-progress:
			s.sendProgress(id, p)
		default:
			return
		}
	}
}

func (s *Session) sendProgress(id string, p runner.Progress) {
	if err := s.send(protocol.ProgressResponse(id, p)); err != nil {
		log.Debugf("session dropped progress for %s: %v", p.JobID, err)
	}
}

func (s *Session) send(resp *protocol.Response) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}
	log.Debugf("session send %s", render.Render(resp))
	return s.port.Send(resp)
}

// close does not take sendMu, so it never waits behind a send the peer is not reading.
func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
