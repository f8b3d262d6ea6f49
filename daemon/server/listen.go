package server

import (
	"errors"
	"net"
	"os"
	"path"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/twitter/solo/daemon/protocol"
)

// Listen on socketPath, or on the socket found by protocol.LocateSocket if empty.
func Listen(socketPath string) (net.Listener, error) {
	if socketPath == "" {
		var err error
		if socketPath, err = protocol.LocateSocket(); err != nil {
			return nil, err
		}
	}
	return listen(socketPath)
}

func listen(socketPath string) (net.Listener, error) {
	err := os.MkdirAll(path.Dir(socketPath), 0700)
	if err != nil {
		return nil, err
	}
	l, err := net.Listen("unix", socketPath)
	if err == nil {
		return l, nil
	}

	l = replaceDeadServer(socketPath, err)
	if l != nil {
		return l, nil
	}
	return nil, err
}

// replaceDeadServer handles the common case where a daemon has died but the socket file still exists.
// If the address is already in use, we try connecting to it.
// If we get connection refused, we infer the server is dead and
// remove the socket file, and then try serving.
// Returns a valid listener or nil.
func replaceDeadServer(socketPath string, err error) net.Listener {
	if !errors.Is(err, unix.EADDRINUSE) {
		return nil
	}

	conn, connErr := net.Dial("unix", socketPath)
	if connErr == nil {
		// There is an active server, so bow out gracefully
		conn.Close()
		return nil
	}
	if !errors.Is(connErr, unix.ECONNREFUSED) {
		return nil
	}
	log.Infof("replacing dead daemon socket %s", socketPath)
	if err := os.Remove(socketPath); err != nil {
		return nil
	}
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil
	}
	return l
}
