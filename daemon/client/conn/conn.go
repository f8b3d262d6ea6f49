package conn

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/twitter/solo/daemon/protocol"
)

// A Dialer can dial a connection to the solo daemon.
// It's useful to have this as a separate interface so you can wait to
// connect until you need the connection. This allows clients to do client-side
// only operations (e.g., printing help) without erroring if the server is down.
type Dialer interface {
	Dial() (Conn, error)
	io.Closer
}

func NewCachingDialer(dialer Dialer) Dialer {
	return &cachingDialer{dialer, nil}
}

type cachingDialer struct {
	dialer Dialer
	conn   Conn
}

func (d *cachingDialer) Dial() (Conn, error) {
	if d.conn == nil {
		conn, err := d.dialer.Dial()
		if err != nil {
			return nil, err
		}
		d.conn = conn
	}
	return d.conn, nil
}

func (d *cachingDialer) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// How long UnixDialer keeps retrying a daemon that is not accepting sessions yet.
const DefaultDialTimeout = 5 * time.Second

// UnixDialer dials the daemon at socketPath, or at protocol.LocateSocket() if empty.
func UnixDialer(socketPath string) (Dialer, error) {
	if socketPath == "" {
		var err error
		if socketPath, err = protocol.LocateSocket(); err != nil {
			return nil, err
		}
	}
	return &dialer{socketPath: socketPath, timeout: DefaultDialTimeout}, nil
}

type dialer struct {
	socketPath string
	timeout    time.Duration
}

func (d *dialer) Dial() (Conn, error) {
	log.Debugf("Dialing %s", d.socketPath)
	cc, err := grpc.NewClient("unix://"+d.socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", d.socketPath)
	}

	// The session stream lives as long as the Conn.
	ctx, cancel := context.WithCancel(context.Background())
	client := protocol.NewSchedulerClient(cc)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = d.timeout
	b.Reset()

	var stream protocol.Scheduler_SessionClient
	err = backoff.Retry(func() error {
		var err error
		stream, err = client.Session(ctx, grpc.WaitForReady(false))
		if err != nil {
			log.Debugf("session on %s: %v", d.socketPath, err)
		}
		return err
	}, b)
	if err != nil {
		cancel()
		cc.Close()
		return nil, errors.Wrapf(err, "no daemon at %s", d.socketPath)
	}

	return NewConn(stream, func() error {
		cancel()
		return cc.Close()
	}), nil
}

func (d *dialer) Close() error {
	return nil
}
