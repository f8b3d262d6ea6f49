package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path"
	"testing"
	"time"

	"github.com/twitter/solo/config/soloconfig"
	"github.com/twitter/solo/daemon/client/conn"
	"github.com/twitter/solo/daemon/server"
	"github.com/twitter/solo/history"
	"github.com/twitter/solo/runner"
	"github.com/twitter/solo/runner/execers"
)

const waitTimeout = 5 * time.Second

type testDaemon struct {
	d       *solod
	conn    conn.Conn
	baseURL string
	cancel  context.CancelFunc
	done    chan error
}

func start(t *testing.T, c *soloconfig.Config) *testDaemon {
	d, err := newSolod(c)
	if err != nil {
		t.Fatal(err)
	}
	socketPath := path.Join(t.TempDir(), "socket")
	sockL, err := server.Listen(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	httpL, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	td := &testDaemon{d: d, baseURL: "http://" + httpL.Addr().String(), cancel: cancel, done: make(chan error, 1)}
	go func() { td.done <- d.serve(ctx, sockL, httpL) }()

	dialer, err := conn.UnixDialer(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	if td.conn, err = dialer.Dial(); err != nil {
		t.Fatal(err)
	}
	return td
}

func (td *testDaemon) stop(t *testing.T) {
	td.conn.Close()
	td.cancel()
	select {
	case err := <-td.done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("daemon did not stop")
	}
}

func (td *testDaemon) getJSON(t *testing.T, method, p string, v interface{}) int {
	req, _ := http.NewRequest(method, td.baseURL+p, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestSolodServesJobsAndHistory(t *testing.T) {
	td := start(t, soloconfig.Default())
	defer td.stop(t)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	for i := 0; i < 3; i++ {
		job, err := td.conn.Submit(ctx, runner.Params{Prompt: fmt.Sprintf("p%d", i), Script: []string{"complete x"}}, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if r, err := job.Wait(ctx); err != nil || r.Outcome != runner.OK {
			t.Fatalf("unexpected result %v, %v", r, err)
		}
	}

	var records []history.Record
	for len(records) < 3 {
		if ctx.Err() != nil {
			t.Fatalf("history has %d records", len(records))
		}
		td.getJSON(t, "GET", "/admin/history.json?limit=10", &records)
		time.Sleep(10 * time.Millisecond)
	}
	if records[0].Prompt != "p2" || records[2].Prompt != "p0" {
		t.Fatalf("history not newest first: %v", records)
	}

	var snap struct {
		State string `json:"state"`
	}
	td.getJSON(t, "GET", "/admin/state.json", &snap)
	if snap.State != "idle" {
		t.Fatalf("unexpected state %q", snap.State)
	}

	var metrics map[string]interface{}
	td.getJSON(t, "GET", "/admin/metrics.json", &metrics)
	if metrics["solod/sched/submittedCounter"] != float64(3) {
		t.Fatalf("unexpected submitted count in %v", metrics)
	}
}

func TestSolodLifecycle(t *testing.T) {
	td := start(t, soloconfig.Default())
	defer td.stop(t)

	if code := td.getJSON(t, "GET", "/admin/lifecycle.json?op=load", nil); code != http.StatusBadRequest {
		t.Fatalf("GET should be refused, got %d", code)
	}
	if code := td.getJSON(t, "POST", "/admin/lifecycle.json?op=load", nil); code != http.StatusOK {
		t.Fatalf("load failed with %d", code)
	}
	if !td.d.exec.(*execers.SimExecutor).Loaded() {
		t.Fatal("executor not loaded")
	}
	if code := td.getJSON(t, "POST", "/admin/lifecycle.json?op=explode", nil); code != http.StatusBadRequest {
		t.Fatalf("unknown op should be refused, got %d", code)
	}
}

func TestSolodReconfigure(t *testing.T) {
	td := start(t, soloconfig.Default())
	defer td.stop(t)

	c := soloconfig.Default()
	c.Scheduler.AbortTimeoutMs = 1500
	c.Scheduler.DefaultPolicy = runner.REJECT
	td.d.reconfigure(c)

	if got := td.d.sched.Snapshot().AbortTimeout; got != 1500*time.Millisecond {
		t.Fatalf("abort timeout not applied: %s", got)
	}
	if got := td.d.server.Defaults().BusyPolicy; got != runner.REJECT {
		t.Fatalf("default policy not applied: %s", got)
	}
}

func TestNewExecutor(t *testing.T) {
	if _, err := newExecutor(soloconfig.ExecutorConfig{Type: "gpu"}); err == nil {
		t.Fatal("expected unknown executor error")
	}
	c := soloconfig.ExecutorConfig{Type: soloconfig.ExecutorOpenAI}
	c.OpenAI.APIKeyEnv = "SOLO_TEST_KEY_THAT_IS_UNSET"
	if _, err := newExecutor(c); err == nil {
		t.Fatal("expected missing key error")
	}
	t.Setenv("SOLO_TEST_KEY", "sk-test")
	c.OpenAI.APIKeyEnv = "SOLO_TEST_KEY"
	if _, err := newExecutor(c); err != nil {
		t.Fatal(err)
	}
}
