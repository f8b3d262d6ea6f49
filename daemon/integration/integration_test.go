package integration_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	soloerrors "github.com/twitter/solo/common/errors"
	"github.com/twitter/solo/daemon/client/cli"
	"github.com/twitter/solo/daemon/client/conn"
	"github.com/twitter/solo/daemon/integration"
	"github.com/twitter/solo/runner"
	"github.com/twitter/solo/runner/runners"
)

func setup(t *testing.T) (*integration.Daemon, func(args ...string) (string, string, error)) {
	d, err := integration.StartDaemon(t.TempDir(), runners.Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := d.Stop(); err != nil {
			t.Errorf("daemon did not stop: %v", err)
		}
	})
	run := func(args ...string) (string, string, error) {
		dialer, err := conn.UnixDialer(d.SocketPath)
		if err != nil {
			t.Fatal(err)
		}
		cl, err := cli.NewCliClient(conn.NewCachingDialer(dialer), nil)
		if err != nil {
			t.Fatal(err)
		}
		defer cl.Close()
		return integration.Run(cl, args...)
	}
	return d, run
}

func exitCode(err error) soloerrors.ExitCode {
	var e *soloerrors.ExitCodeError
	if errors.As(err, &e) {
		return e.GetExitCode()
	}
	return -1
}

func TestRunSimpleCommand(t *testing.T) {
	_, run := setup(t)

	stdout, stderr, err := run("run", "--script", "step 1/2", "--script", "complete png", "a", "cat")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(stdout, " ok 3 bytes") {
		t.Fatalf("unexpected stdout %q", stdout)
	}
	if !strings.Contains(stderr, " 50% denoise 1/2") {
		t.Fatalf("unexpected progress %q", stderr)
	}
}

// The first run pauses so the second, under the reject policy, settles busy.
func TestRun2Commands(t *testing.T) {
	d, run := setup(t)

	firstDone := make(chan error, 1)
	go func() {
		_, _, err := run("run", "--quiet", "--script", "pause", "--script", "complete")
		firstDone <- err
	}()
	waitForState(t, d, runner.RUNNING)

	_, _, err := run("run", "--policy", "reject", "--script", "complete")
	if exitCode(err) != soloerrors.BusyExitCode {
		t.Fatalf("expected busy exit code, got %v", err)
	}

	stdout, _, err := run("state")
	if err != nil || strings.TrimSpace(stdout) != "running" {
		t.Fatalf("expected running, got %q, %v", stdout, err)
	}

	if _, _, err := run("cancel"); err != nil {
		t.Fatal(err)
	}
	if err := <-firstDone; exitCode(err) != soloerrors.CancelledExitCode {
		t.Fatalf("expected cancelled exit code, got %v", err)
	}
}

func TestRunFailure(t *testing.T) {
	_, run := setup(t)

	_, _, err := run("run", "--script", "fail unsupported_option no such sampler")
	if exitCode(err) != soloerrors.UnsupportedOptionExitCode || !strings.Contains(err.Error(), "no such sampler") {
		t.Fatalf("expected unsupported option, got %v", err)
	}
}

func TestNoDaemon(t *testing.T) {
	dialer, err := conn.UnixDialer(t.TempDir() + "/socket")
	if err != nil {
		t.Fatal(err)
	}
	cl, err := cli.NewCliClient(dialer, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = integration.Run(cl, "state")
	if exitCode(err) != soloerrors.ConnectionFailureExitCode {
		t.Fatalf("expected connection failure, got %v", err)
	}
}

func waitForState(t *testing.T, d *integration.Daemon, expected runner.SchedulerState) {
	deadline := time.Now().Add(5 * time.Second)
	for d.Sched.State() != expected {
		if time.Now().After(deadline) {
			t.Fatalf("never reached %s, at %s", expected, d.Sched.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
