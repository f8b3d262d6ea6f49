package server

import (
	"net"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
	"google.golang.org/grpc"

	"github.com/twitter/solo/common"
	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/daemon/protocol"
	"github.com/twitter/solo/runner"
)

// NewServer creates a protocol.SchedulerServer in front of sched.
// maxConns <= 0 means common.DefaultMaxConns.
func NewServer(sched runner.Scheduler, maxConns int, stat stats.StatsReceiver) *Server {
	if maxConns <= 0 {
		maxConns = common.DefaultMaxConns
	}
	s := &Server{
		sched:    sched,
		maxConns: maxConns,
		stat:     stat,
		server:   grpc.NewServer(),
	}
	s.SetDefaults(runner.DefaultSubmitOptions())
	protocol.RegisterSchedulerServer(s.server, s)
	return s
}

type Server struct {
	sched    runner.Scheduler
	maxConns int
	stat     stats.StatsReceiver
	defaults atomic.Value

	server *grpc.Server
}

// SetDefaults changes the options applied to submissions that leave them unset.
func (s *Server) SetDefaults(opts runner.SubmitOptions) {
	s.defaults.Store(opts)
}

func (s *Server) Defaults() runner.SubmitOptions {
	return s.defaults.Load().(runner.SubmitOptions)
}

func (s *Server) ListenAndServe(socketPath string) error {
	l, err := Listen(socketPath)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve serves the scheduler on l until Stop.
func (s *Server) Serve(l net.Listener) error {
	log.Infof("serving scheduler on %s (max %d conns)", l.Addr(), s.maxConns)
	return s.server.Serve(netutil.LimitListener(l, s.maxConns))
}

// Stops the server, canceling all active sessions. Submitted jobs are unaffected.
func (s *Server) Stop() {
	s.server.Stop()
}

func (s *Server) Session(stream protocol.Scheduler_SessionServer) error {
	return NewSession(s.sched, s.Defaults, stream, s.stat).Serve(stream.Context())
}
