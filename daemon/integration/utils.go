// Utilities for integration testing the solo daemon
package integration

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/daemon/client/cli"
	"github.com/twitter/solo/daemon/protocol"
	"github.com/twitter/solo/daemon/server"
	"github.com/twitter/solo/runner/execers"
	"github.com/twitter/solo/runner/runners"
)

// Run cl with args, return its output
func Run(cl *cli.CliClient, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	err := cl.ExecArgs(&stdout, &stderr, args...)
	return stdout.String(), stderr.String(), err
}

// Daemon is a scheduler over the simulated executor, served on a socket in a solo dir.
type Daemon struct {
	Sim        *execers.SimExecutor
	Sched      *runners.Scheduler
	SocketPath string

	server *server.Server
}

func StartDaemon(soloDir string, config runners.Config) (*Daemon, error) {
	socketPath := protocol.SocketForDir(soloDir)
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	sim := execers.NewSimExecutor()
	sched := runners.NewScheduler(sim, config, stats.NilStatsReceiver())
	srv := server.NewServer(sched, 0, stats.NilStatsReceiver())
	go srv.Serve(l)
	return &Daemon{Sim: sim, Sched: sched, SocketPath: socketPath, server: srv}, nil
}

// Stop releases any paused job, then stops the server and the scheduler.
func (d *Daemon) Stop() error {
	for d.Sim.TryResume() {
	}
	d.server.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.Sched.Stop(ctx)
}
