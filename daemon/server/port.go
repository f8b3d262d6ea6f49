package server

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/daemon/protocol"
	"github.com/twitter/solo/runner"
)

var ErrPortClosed = errors.New("port closed")

// NewChanPort returns the two ends of an in-process message channel. Frames
// cross it in their wire encoding, so both ends share nothing but bytes.
func NewChanPort(buffer int) (*ChanPort, *ChanClient) {
	p := &pipe{
		reqs:  make(chan []byte, buffer),
		resps: make(chan []byte, buffer),
		gone:  make(chan struct{}),
	}
	return &ChanPort{p}, &ChanClient{p}
}

type pipe struct {
	reqs  chan []byte
	resps chan []byte
	gone  chan struct{}

	// Guards reqs against a send after close.
	sendMu     sync.Mutex
	sendClosed bool

	closeOnce sync.Once
	goneOnce  sync.Once
}

var codec protocol.Codec

// ChanPort is the daemon end; it satisfies Port.
type ChanPort struct{ p *pipe }

func (c *ChanPort) Recv() (*protocol.Request, error) {
	b, ok := <-c.p.reqs
	if !ok {
		return nil, io.EOF
	}
	req := &protocol.Request{}
	if err := codec.Unmarshal(b, req); err != nil {
		return nil, errors.Wrap(err, "decoding request")
	}
	return req, nil
}

func (c *ChanPort) Send(resp *protocol.Response) error {
	b, err := codec.Marshal(resp)
	if err != nil {
		return err
	}
	select {
	case c.p.resps <- b:
		return nil
	case <-c.p.gone:
		return ErrPortClosed
	}
}

// Close ends the response stream; the client's Recv returns io.EOF once drained.
func (c *ChanPort) Close() {
	c.p.closeOnce.Do(func() { close(c.p.resps) })
}

// ChanClient is the submitter end. Its method set matches the client Stream.
type ChanClient struct{ p *pipe }

func (c *ChanClient) Send(req *protocol.Request) error {
	b, err := codec.Marshal(req)
	if err != nil {
		return err
	}
	c.p.sendMu.Lock()
	defer c.p.sendMu.Unlock()
	if c.p.sendClosed {
		return ErrPortClosed
	}
	select {
	case c.p.reqs <- b:
		return nil
	case <-c.p.gone:
		return ErrPortClosed
	}
}

func (c *ChanClient) Recv() (*protocol.Response, error) {
	b, ok := <-c.p.resps
	if !ok {
		return nil, io.EOF
	}
	resp := &protocol.Response{}
	if err := codec.Unmarshal(b, resp); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}
	return resp, nil
}

// CloseSend tells the daemon no more requests are coming. Responses keep flowing.
func (c *ChanClient) CloseSend() error {
	c.p.sendMu.Lock()
	defer c.p.sendMu.Unlock()
	if !c.p.sendClosed {
		c.p.sendClosed = true
		close(c.p.reqs)
	}
	return nil
}

// Close abandons the channel; pending daemon sends fail with ErrPortClosed.
func (c *ChanClient) Close() {
	c.p.goneOnce.Do(func() { close(c.p.gone) })
	c.CloseSend()
}

// ServeChan runs a Session over port and closes the response side when it ends.
func ServeChan(ctx context.Context, sched runner.Scheduler, defaults Defaults, port *ChanPort, stat stats.StatsReceiver) error {
	defer port.Close()
	return NewSession(sched, defaults, port, stat).Serve(ctx)
}
