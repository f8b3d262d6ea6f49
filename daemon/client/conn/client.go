package conn

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/solo/common"
	"github.com/twitter/solo/daemon/protocol"
	"github.com/twitter/solo/runner"
)

// ErrClosed is returned for calls on, or still waiting on, a closed Conn.
var ErrClosed = errors.New("connection closed")

// Conn is the client side of the scheduler, mirroring runner.Scheduler over a session.
type Conn interface {
	// Submit returns once the daemon has admitted the job. Admission outcomes
	// arrive on the Job like any other.
	Submit(ctx context.Context, params runner.Params, sink runner.ProgressSink, opts *protocol.Options) (*Job, error)
	Cancel(ctx context.Context) error
	State(ctx context.Context) (runner.SchedulerState, error)
	Close() error
}

// Stream is one session's message channel, as seen from the client.
type Stream interface {
	Send(*protocol.Request) error
	Recv() (*protocol.Response, error)
	CloseSend() error
}

// Job is a submitted job's eventual result.
type Job struct {
	id     runner.JobID
	done   chan struct{}
	result runner.Result
	err    error
}

var _ runner.Waiter = (*Job)(nil)

func (j *Job) ID() runner.JobID {
	return j.id
}

func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait returns the job's Result, or an error if ctx expired or the connection
// broke before the daemon reported one.
func (j *Job) Wait(ctx context.Context) (runner.Result, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return runner.Result{}, ctx.Err()
	}
}

type call struct {
	kind     protocol.RequestKind
	sink     runner.ProgressSink
	accepted chan *protocol.Response
	job      *Job
	// Guarded by client.mu.
	admitted bool
}

type client struct {
	stream  Stream
	onClose func() error

	mu     sync.Mutex
	sendMu sync.Mutex
	calls  map[string]*call
	err    error

	closeOnce sync.Once
	closeErr  error
}

// NewConn runs a Conn over stream. onClose, if set, releases whatever carries the stream.
func NewConn(stream Stream, onClose func() error) Conn {
	c := &client{
		stream:  stream,
		onClose: onClose,
		calls:   map[string]*call{},
	}
	go c.recvLoop()
	return c
}

func (c *client) Submit(ctx context.Context, params runner.Params, sink runner.ProgressSink, opts *protocol.Options) (*Job, error) {
	req := &protocol.Request{ID: common.GenUUID(), Kind: protocol.SUBMIT, Params: &params, Options: opts}
	cl := &call{
		kind:     req.Kind,
		sink:     sink,
		accepted: make(chan *protocol.Response, 1),
		job:      &Job{done: make(chan struct{})},
	}
	if _, err := c.do(ctx, req, cl); err != nil {
		return nil, err
	}
	return cl.job, nil
}

func (c *client) Cancel(ctx context.Context) error {
	_, err := c.do(ctx, &protocol.Request{ID: common.GenUUID(), Kind: protocol.CANCEL}, nil)
	return err
}

func (c *client) State(ctx context.Context) (runner.SchedulerState, error) {
	resp, err := c.do(ctx, &protocol.Request{ID: common.GenUUID(), Kind: protocol.STATE}, nil)
	if err != nil {
		return runner.IDLE, err
	}
	if resp.State == nil {
		return runner.IDLE, errors.Errorf("state response %s without state", resp.ID)
	}
	return *resp.State, nil
}

func (c *client) do(ctx context.Context, req *protocol.Request, cl *call) (*protocol.Response, error) {
	if cl == nil {
		cl = &call{kind: req.Kind, accepted: make(chan *protocol.Response, 1)}
	}
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	c.calls[req.ID] = cl
	c.mu.Unlock()

	c.sendMu.Lock()
	err := c.stream.Send(req)
	c.sendMu.Unlock()
	if err != nil {
		c.forget(req.ID)
		return nil, errors.Wrapf(err, "sending %s", req.Kind)
	}

	select {
	case resp := <-cl.accepted:
		if resp.Kind == protocol.ERROR {
			return nil, errors.Errorf("%s rejected: %s", req.Kind, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		// Responses for req are dropped from here on.
		c.forget(req.ID)
		return nil, ctx.Err()
	}
}

func (c *client) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.calls, id)
}

func (c *client) recvLoop() {
	for {
		resp, err := c.stream.Recv()
		if err != nil {
			c.fail(err)
			return
		}
		c.dispatch(resp)
	}
}

func (c *client) dispatch(resp *protocol.Response) {
	c.mu.Lock()
	cl, ok := c.calls[resp.ID]
	if ok && resp.Final(cl.kind) {
		delete(c.calls, resp.ID)
	}
	if ok && resp.Kind == protocol.ACCEPTED {
		cl.admitted = true
		if cl.job != nil {
			cl.job.id = resp.JobID
		}
	}
	c.mu.Unlock()
	if !ok {
		log.Debugf("dropping %s response for unknown request %s", resp.Kind, resp.ID)
		return
	}

	switch resp.Kind {
	case protocol.ACCEPTED, protocol.STATE_REPORT, protocol.ERROR:
		cl.accepted <- resp
	case protocol.PROGRESS:
		if cl.sink != nil && resp.Progress != nil {
			cl.sink(*resp.Progress)
		}
	case protocol.RESULT:
		if cl.job != nil && resp.Result != nil {
			cl.job.result = resp.Result.ToRunnerResult(resp.JobID)
			close(cl.job.done)
		}
	}
}

// fail ends every outstanding call with err.
func (c *client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = ErrClosed
		if err != nil {
			log.Debugf("session ended: %v", err)
		}
	}
	for id, cl := range c.calls {
		delete(c.calls, id)
		if cl.admitted && cl.job != nil {
			cl.job.err = c.err
			close(cl.job.done)
			continue
		}
		select {
		case cl.accepted <- protocol.ErrorResponse(id, c.err):
		default:
		}
	}
}

func (c *client) Close() error {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.stream.CloseSend()
		c.sendMu.Unlock()
		c.fail(nil)
		if c.onClose != nil {
			c.closeErr = c.onClose()
		}
	})
	return c.closeErr
}
