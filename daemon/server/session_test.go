package server

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"

	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/daemon/protocol"
	"github.com/twitter/solo/runner"
	"github.com/twitter/solo/runner/execers"
	"github.com/twitter/solo/runner/runners"
)

const waitTimeout = 5 * time.Second

type env struct {
	sim    *execers.SimExecutor
	sched  *runners.Scheduler
	client *ChanClient
	done   chan error
	cancel context.CancelFunc
	t      *testing.T
}

func setup(t *testing.T) *env {
	return setupWithBuffer(t, 16)
}

func setupWithBuffer(t *testing.T, buffer int) *env {
	sim := execers.NewSimExecutor()
	sched := runners.NewScheduler(sim, runners.Config{}, stats.NilStatsReceiver())
	port, client := NewChanPort(buffer)
	ctx, cancel := context.WithCancel(context.Background())
	e := &env{sim: sim, sched: sched, client: client, done: make(chan error, 1), cancel: cancel, t: t}
	go func() {
		e.done <- ServeChan(ctx, sched, nil, port, stats.NilStatsReceiver())
	}()
	return e
}

func (e *env) teardown() {
	e.client.Close()
	e.cancel()
	for e.sim.TryResume() {
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := e.sched.Stop(ctx); err != nil {
		e.t.Fatalf("scheduler did not stop: %v", err)
	}
}

func (e *env) send(req *protocol.Request) {
	if err := e.client.Send(req); err != nil {
		e.t.Fatalf("send %s: %v", req.ID, err)
	}
}

func (e *env) recv() *protocol.Response {
	type recvd struct {
		resp *protocol.Response
		err  error
	}
	ch := make(chan recvd, 1)
	go func() {
		resp, err := e.client.Recv()
		ch <- recvd{resp, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			e.t.Fatalf("recv: %v", r.err)
		}
		return r.resp
	case <-time.After(waitTimeout):
		e.t.Fatalf("no response within %s\n%s", waitTimeout, spew.Sdump(e.sched.Snapshot()))
	}
	return nil
}

// recvN receives n responses; their relative order is not fixed when they come
// from different requests.
func (e *env) recvN(n int) []*protocol.Response {
	var out []*protocol.Response
	for i := 0; i < n; i++ {
		out = append(out, e.recv())
	}
	return out
}

func kindsByID(resps []*protocol.Response) map[string]protocol.ResponseKind {
	m := map[string]protocol.ResponseKind{}
	for _, r := range resps {
		m[r.ID] = r.Kind
	}
	return m
}

func submit(id string, script ...string) *protocol.Request {
	return &protocol.Request{ID: id, Kind: protocol.SUBMIT, Params: &runner.Params{Prompt: id, Script: script}}
}

func TestSessionSubmitStreamsProgressThenResult(t *testing.T) {
	e := setup(t)
	defer e.teardown()

	e.send(submit("r1", "percent 50", "complete hello"))

	accepted := e.recv()
	if accepted.ID != "r1" || accepted.Kind != protocol.ACCEPTED || accepted.JobID == "" {
		t.Fatalf("expected accepted, got %s", spew.Sdump(accepted))
	}
	progress := e.recv()
	if progress.Kind != protocol.PROGRESS || progress.Progress == nil || *progress.Progress.Percent != 50 {
		t.Fatalf("expected 50%% progress, got %s", spew.Sdump(progress))
	}
	result := e.recv()
	expected := &protocol.Result{Outcome: runner.OK, Payload: []byte("hello")}
	result.Result.ElapsedMs = 0
	if diff := cmp.Diff(expected, result.Result); diff != "" || result.JobID != accepted.JobID {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestSessionAppliesOptions(t *testing.T) {
	e := setup(t)
	defer e.teardown()

	e.send(submit("r1", "pause"))
	if r := e.recv(); r.Kind != protocol.ACCEPTED {
		t.Fatalf("expected accepted, got %s", spew.Sdump(r))
	}

	reject := runner.REJECT
	req := submit("r2", "complete")
	req.Options = &protocol.Options{BusyPolicy: &reject}
	e.send(req)
	if r := e.recv(); r.Kind != protocol.ACCEPTED || r.ID != "r2" {
		t.Fatalf("expected accepted, got %s", spew.Sdump(r))
	}
	if r := e.recv(); r.Kind != protocol.RESULT || r.ID != "r2" || r.Result.Outcome != runner.BUSY {
		t.Fatalf("expected busy result for r2, got %s", spew.Sdump(r))
	}

	e.send(&protocol.Request{ID: "s", Kind: protocol.STATE})
	if r := e.recv(); r.Kind != protocol.STATE_REPORT || r.State == nil || *r.State != runner.RUNNING {
		t.Fatalf("expected running, got %s", spew.Sdump(r))
	}

	e.send(&protocol.Request{ID: "c", Kind: protocol.CANCEL})
	got := e.recvN(2)
	expected := map[string]protocol.ResponseKind{"c": protocol.ACCEPTED, "r1": protocol.RESULT}
	if diff := cmp.Diff(expected, kindsByID(got)); diff != "" {
		t.Fatalf("unexpected responses (-want +got):\n%s", diff)
	}
	for _, r := range got {
		if r.ID == "r1" && r.Result.Outcome != runner.CANCELLED {
			t.Fatalf("expected r1 cancelled, got %s", spew.Sdump(r))
		}
	}
}

func TestSessionSupersede(t *testing.T) {
	e := setup(t)
	defer e.teardown()

	e.send(submit("r1", "pause", "complete"))
	e.recv()
	e.send(submit("r2", "complete"))
	e.recv()
	e.send(submit("r3", "complete three"))

	got := e.recvN(2)
	expected := map[string]protocol.ResponseKind{"r2": protocol.RESULT, "r3": protocol.ACCEPTED}
	if diff := cmp.Diff(expected, kindsByID(got)); diff != "" {
		t.Fatalf("unexpected responses (-want +got):\n%s", diff)
	}
	for _, r := range got {
		if r.ID == "r2" && r.Result.Outcome != runner.SUPERSEDED {
			t.Fatalf("expected r2 superseded, got %s", spew.Sdump(r))
		}
	}

	e.sim.Resume()
	outcomes := map[string]runner.Outcome{}
	for len(outcomes) < 2 {
		r := e.recv()
		if r.Kind == protocol.RESULT {
			outcomes[r.ID] = r.Result.Outcome
		}
	}
	if diff := cmp.Diff(map[string]runner.Outcome{"r1": runner.OK, "r3": runner.OK}, outcomes); diff != "" {
		t.Fatalf("unexpected outcomes (-want +got):\n%s", diff)
	}
}

func TestSessionBadRequest(t *testing.T) {
	e := setup(t)
	defer e.teardown()

	e.send(&protocol.Request{ID: "x", Kind: "explode"})
	if r := e.recv(); r.Kind != protocol.ERROR || r.ID != "x" || r.Error == "" {
		t.Fatalf("expected error, got %s", spew.Sdump(r))
	}
	e.send(&protocol.Request{ID: "y", Kind: protocol.SUBMIT})
	if r := e.recv(); r.Kind != protocol.ERROR || r.ID != "y" {
		t.Fatalf("expected error, got %s", spew.Sdump(r))
	}
}

func TestSessionDrainsOnCloseSend(t *testing.T) {
	e := setup(t)
	defer e.teardown()

	e.send(submit("r1", "sleep 20", "complete"))
	e.client.CloseSend()

	var kinds []protocol.ResponseKind
	for {
		r, err := e.client.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		kinds = append(kinds, r.Kind)
	}
	if diff := cmp.Diff([]protocol.ResponseKind{protocol.ACCEPTED, protocol.RESULT}, kinds); diff != "" {
		t.Fatalf("unexpected responses (-want +got):\n%s", diff)
	}
	if err := <-e.done; err != nil {
		t.Fatalf("session ended with %v", err)
	}
}

// A client that never reads must not keep its job running: the scheduler settles
// the job and serves the next caller while the session's sends are still blocked.
func TestSessionStalledClientDoesNotHoldScheduler(t *testing.T) {
	e := setupWithBuffer(t, 1)
	defer e.teardown()

	var script []string
	for i := 0; i < 10; i++ {
		script = append(script, "progress 0.1")
	}
	e.send(submit("r1", append(script, "complete")...))

	deadline := time.Now().Add(waitTimeout)
	for e.sim.Runs() < 1 || e.sched.State() != runner.IDLE {
		if time.Now().After(deadline) {
			t.Fatalf("stalled client kept the job running\n%s", spew.Sdump(e.sched.Snapshot()))
		}
		time.Sleep(10 * time.Millisecond)
	}

	handle, err := e.sched.Submit(runner.Params{Script: []string{"complete"}}, nil,
		runner.SubmitOptions{BusyPolicy: runner.REJECT})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	r, err := handle.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != runner.OK {
		t.Fatalf("expected ok after the stalled job, got %s", spew.Sdump(r))
	}
}
