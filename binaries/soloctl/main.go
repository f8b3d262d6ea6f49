package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"

	soloerrors "github.com/twitter/solo/common/errors"
	"github.com/twitter/solo/daemon/client/cli"
	"github.com/twitter/solo/daemon/client/conn"
)

const httpTries = 3

// A solo command-line client
func main() {
	log.SetLevel(log.WarnLevel)
	dialer, err := conn.UnixDialer(os.Getenv("SOLO_SOCKET"))
	if err != nil {
		log.Fatal("Cannot find solo daemon address: ", err)
	}

	httpClient := pester.New()
	httpClient.Backoff = pester.ExponentialBackoff
	httpClient.MaxRetries = httpTries
	httpClient.LogHook = func(e pester.ErrEntry) {
		log.Debugf("Retrying after failed attempt: %+v", e)
	}

	cl, err := cli.NewCliClient(conn.NewCachingDialer(dialer), httpClient)
	if err != nil {
		log.Fatal("Cannot initalize solo CLI: ", err)
	}
	err = cl.Exec()
	cl.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "soloctl:", err)
		var exitErr *soloerrors.ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.GetExitCode()))
		}
		os.Exit(1)
	}
}
