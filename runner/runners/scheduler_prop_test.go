package runners

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/runner"
	"github.com/twitter/solo/runner/execers"
)

type opKind int

const (
	opSubmit opKind = iota
	opCancel
	opResume
)

type schedOp struct {
	kind     opKind
	policy   runner.BusyPolicy
	replace  bool
	debounce bool
}

func (o schedOp) String() string {
	switch o.kind {
	case opCancel:
		return "cancel"
	case opResume:
		return "resume"
	}
	return fmt.Sprintf("submit(%s, replace=%t, debounce=%t)", o.policy, o.replace, o.debounce)
}

// decodeOp spreads a generated int over the op space. Submits are twice as likely.
func decodeOp(v int) schedOp {
	op := schedOp{
		policy:   runner.BusyPolicy((v / 4) % 3),
		replace:  (v/12)%2 == 0,
		debounce: (v/24)%2 == 1,
	}
	switch v % 4 {
	case 2:
		op.kind = opCancel
	case 3:
		op.kind = opResume
	default:
		op.kind = opSubmit
	}
	return op
}

// schedModel is the expected slot contents. Debounced jobs use a debounce long
// enough that they are only ever promoted by being replaced.
type schedModel struct {
	current          runner.JobID
	pending          runner.JobID
	pendingDebounced bool
}

func (m *schedModel) promote() {
	if m.current == "" && m.pending != "" && !m.pendingDebounced {
		m.current, m.pending = m.pending, ""
	}
}

type schedHarness struct {
	sim     *execers.SimExecutor
	s       *Scheduler
	rec     *recordingListener
	handles map[runner.JobID]*runner.Handle
	model   schedModel
}

func (h *schedHarness) waitFor(id runner.JobID, expected runner.Outcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	r, err := h.handles[id].Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s never settled", id)
	}
	if r.Outcome != expected {
		return fmt.Errorf("%s settled %s, expected %s", id, r.Outcome, expected)
	}
	return nil
}

func (h *schedHarness) apply(op schedOp) error {
	m := &h.model
	switch op.kind {
	case opCancel:
		h.s.Cancel()
		if m.current != "" {
			if err := h.waitFor(m.current, runner.CANCELLED); err != nil {
				return err
			}
			m.current = ""
			m.promote()
		}
		return nil

	case opResume:
		if m.current != "" {
			h.sim.Resume()
			if err := h.waitFor(m.current, runner.OK); err != nil {
				return err
			}
			m.current = ""
			m.promote()
		}
		return nil
	}

	o := runner.SubmitOptions{BusyPolicy: op.policy, ReplaceQueued: op.replace}
	if op.debounce {
		o.Debounce = time.Hour
	}
	handle, err := h.s.Submit(runner.Params{Script: []string{"pause", "complete"}}, nil, o)
	if err != nil {
		return err
	}
	id := handle.ID()
	h.handles[id] = handle

	switch {
	case m.current == "" && m.pending == "":
		m.current = id
		return nil
	case op.policy == runner.REJECT, m.pending != "" && !op.replace:
		return h.waitFor(id, runner.BUSY)
	}

	if m.pending != "" {
		if r, ok := h.handles[m.pending].Result(); !ok || r.Outcome != runner.SUPERSEDED {
			return fmt.Errorf("%s was not superseded before Submit returned", m.pending)
		}
	}
	m.pending, m.pendingDebounced = id, op.debounce
	if op.policy == runner.ABORT_AND_QUEUE && m.current != "" {
		if err := h.waitFor(m.current, runner.CANCELLED); err != nil {
			return err
		}
		m.current = ""
	}
	m.promote()
	return nil
}

func (h *schedHarness) check() error {
	snap := h.s.Snapshot()
	if snap.Current != h.model.current || snap.Pending != h.model.pending {
		return fmt.Errorf("slots (%q, %q), expected (%q, %q)",
			snap.Current, snap.Pending, h.model.current, h.model.pending)
	}
	idle := snap.Current == "" && snap.Pending == ""
	if (snap.State == runner.IDLE) != idle {
		return fmt.Errorf("state %s with slots (%q, %q)", snap.State, snap.Current, snap.Pending)
	}
	if h.sim.MaxConcurrent() > 1 {
		return fmt.Errorf("%d jobs executed concurrently", h.sim.MaxConcurrent())
	}
	return nil
}

func runOps(ops []int) error {
	sim := execers.NewSimExecutor()
	rec := &recordingListener{}
	h := &schedHarness{
		sim:     sim,
		s:       NewScheduler(sim, Config{AbortTimeout: time.Hour, Listener: rec}, stats.NilStatsReceiver()),
		rec:     rec,
		handles: map[runner.JobID]*runner.Handle{},
	}
	for _, v := range ops {
		op := decodeOp(v)
		if err := h.apply(op); err != nil {
			return fmt.Errorf("%s: %v", op, err)
		}
		if err := h.check(); err != nil {
			return fmt.Errorf("after %s: %v", op, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := h.s.Stop(ctx); err != nil {
		return err
	}
	for id, handle := range h.handles {
		if _, ok := handle.Result(); !ok {
			return fmt.Errorf("%s never settled", id)
		}
		if _, n := rec.find(id); n != 1 {
			return fmt.Errorf("%s settled %d times", id, n)
		}
	}
	return nil
}

func Test_SchedulerInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	// Single flight, single pending slot, exactly-once settlement, and a state that
	// always agrees with the slots, for any interleaving of submits, cancels and completions.
	properties.Property("Scheduler matches the two-slot model", prop.ForAll(
		func(ops []int) (bool, error) {
			if err := runOps(ops); err != nil {
				return false, err
			}
			return true, nil
		},
		gen.SliceOfN(16, gen.IntRange(0, 47)),
	))

	properties.TestingRun(t)
}
