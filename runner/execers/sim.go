package execers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twitter/solo/runner"
)

func NewSimExecutor() *SimExecutor {
	return &SimExecutor{resumeCh: make(chan struct{})}
}

// SimExecutor executes by simulating Params.Script.
// each entry in Script is simulated in order.
// valid entries are:
// complete [payload]
//   finish successfully with payload
// pause
//   pause until SimExecutor.Resume() is called or the job is cancelled
// stall
//   pause until SimExecutor.Resume() is called, ignoring cancellation
// sleep <millis int>
//   sleep for millis milliseconds, returning early if cancelled
// block <millis int>
//   sleep for millis milliseconds, ignoring cancellation
// checkpoint
//   return cancelled if the job has been cancelled
// progress <fraction float>
// percent <n int>
// step <i int>/<n int>
//   emit a progress event
// fail <internal_error|unsupported_option> <message>
//   fail with reason
// panic <message>
//   panic inside Execute
// An entry starting with # is ignored. A script that runs out of entries completes with an empty payload.
type SimExecutor struct {
	resumeCh chan struct{}

	active    int32
	maxActive int32
	runs      int32

	mu     sync.Mutex
	loaded bool
	// Optional delay for Load, Unload and Purge.
	LifecycleDelay time.Duration
}

var _ runner.Executor = (*SimExecutor)(nil)
var _ runner.Loader = (*SimExecutor)(nil)

// Resume releases one paused or stalled job. It blocks until a job is waiting.
func (e *SimExecutor) Resume() {
	e.resumeCh <- struct{}{}
}

// TryResume releases one paused or stalled job if one is waiting.
func (e *SimExecutor) TryResume() bool {
	select {
	case e.resumeCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// MaxConcurrent is the largest number of Execute calls ever in progress at once.
func (e *SimExecutor) MaxConcurrent() int {
	return int(atomic.LoadInt32(&e.maxActive))
}

// Runs is the number of Execute calls made so far.
func (e *SimExecutor) Runs() int {
	return int(atomic.LoadInt32(&e.runs))
}

func (e *SimExecutor) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *SimExecutor) Execute(params runner.Params, token *runner.CancelToken, sink runner.ProgressSink) (runner.Output, error) {
	atomic.AddInt32(&e.runs, 1)
	n := atomic.AddInt32(&e.active, 1)
	defer atomic.AddInt32(&e.active, -1)
	for {
		max := atomic.LoadInt32(&e.maxActive)
		if n <= max || atomic.CompareAndSwapInt32(&e.maxActive, max, n) {
			break
		}
	}

	steps, err := e.parse(params.Script)
	if err != nil {
		return runner.Output{}, runner.UnsupportedOption("%v", err)
	}
	start := time.Now()
	p := &simRun{token: token, sink: sink}
	for _, step := range steps {
		done, err := step.run(p)
		if err != nil {
			return runner.Output{}, err
		}
		if done {
			break
		}
	}
	return runner.Output{Payload: p.payload, Elapsed: time.Since(start)}, nil
}

func (e *SimExecutor) Load(ctx context.Context) error {
	return e.lifecycle(ctx, true)
}

func (e *SimExecutor) Unload(ctx context.Context) error {
	return e.lifecycle(ctx, false)
}

func (e *SimExecutor) Purge(ctx context.Context) error {
	return e.lifecycle(ctx, false)
}

func (e *SimExecutor) lifecycle(ctx context.Context, loaded bool) error {
	if e.LifecycleDelay > 0 {
		select {
		case <-time.After(e.LifecycleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = loaded
	return nil
}

// parse parses a script into sim steps
func (e *SimExecutor) parse(script []string) (steps []simStep, err error) {
	for _, entry := range script {
		s, err := e.parseEntry(entry)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func (e *SimExecutor) parseEntry(entry string) (simStep, error) {
	if strings.HasPrefix(entry, "#") {
		return &noopStep{}, nil
	}
	splits := strings.SplitN(entry, " ", 2)
	opcode, rest := splits[0], ""
	if len(splits) == 2 {
		rest = splits[1]
	}
	switch opcode {
	case "complete":
		return &completeStep{[]byte(rest)}, nil
	case "pause":
		return &pauseStep{e.resumeCh, true}, nil
	case "stall":
		return &pauseStep{e.resumeCh, false}, nil
	case "sleep", "block":
		i, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("error parsing <n> in %s <n>:%s", opcode, err.Error())
		}
		return &sleepStep{time.Duration(i) * time.Millisecond, opcode == "sleep"}, nil
	case "checkpoint":
		return &checkpointStep{}, nil
	case "progress":
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing <f> in progress <f>:%s", err.Error())
		}
		return &progressStep{runner.FractionProgress("generate", f)}, nil
	case "percent":
		i, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("error parsing <n> in percent <n>:%s", err.Error())
		}
		return &progressStep{runner.Progress{Phase: "generate", Percent: &i}}, nil
	case "step":
		var i, n int
		if _, err := fmt.Sscanf(rest, "%d/%d", &i, &n); err != nil {
			return nil, fmt.Errorf("error parsing <i>/<n> in step <i>/<n>:%s", err.Error())
		}
		return &progressStep{runner.StepProgress("denoise", i, n)}, nil
	case "fail":
		splits := strings.SplitN(rest, " ", 2)
		msg := ""
		if len(splits) == 2 {
			msg = splits[1]
		}
		switch splits[0] {
		case "internal_error":
			return &failStep{runner.InternalError("%s", msg)}, nil
		case "unsupported_option":
			return &failStep{runner.UnsupportedOption("%s", msg)}, nil
		}
		return nil, fmt.Errorf("unknown failure reason %q", splits[0])
	case "panic":
		return &panicStep{rest}, nil
	}
	return nil, fmt.Errorf("can't simulate entry: %v", entry)
}

type simRun struct {
	token   *runner.CancelToken
	sink    runner.ProgressSink
	payload []byte
}

// simStep reports whether the script is done, or the error to fail with.
type simStep interface {
	run(p *simRun) (bool, error)
}

type completeStep struct {
	payload []byte
}

func (s *completeStep) run(p *simRun) (bool, error) {
	p.payload = s.payload
	return true, nil
}

type pauseStep struct {
	ch          chan struct{}
	cooperative bool
}

func (s *pauseStep) run(p *simRun) (bool, error) {
	if !s.cooperative {
		<-s.ch
		return false, nil
	}
	// wait for the first of being cancelled or SimExecutor.Resume()
	select {
	case <-p.token.Done():
		return false, runner.ErrCancelled
	case <-s.ch:
		return false, nil
	}
}

type sleepStep struct {
	duration    time.Duration
	cooperative bool
}

func (s *sleepStep) run(p *simRun) (bool, error) {
	if !s.cooperative {
		time.Sleep(s.duration)
		return false, nil
	}
	t := time.NewTimer(s.duration)
	defer t.Stop()
	select {
	case <-p.token.Done():
		return false, runner.ErrCancelled
	case <-t.C:
		return false, nil
	}
}

type checkpointStep struct{}

func (s *checkpointStep) run(p *simRun) (bool, error) {
	return false, p.token.Err()
}

type progressStep struct {
	progress runner.Progress
}

func (s *progressStep) run(p *simRun) (bool, error) {
	p.sink(s.progress)
	return false, nil
}

type failStep struct {
	err error
}

func (s *failStep) run(p *simRun) (bool, error) {
	return false, s.err
}

type panicStep struct {
	msg string
}

func (s *panicStep) run(p *simRun) (bool, error) {
	panic(s.msg)
}

type noopStep struct{}

func (s *noopStep) run(p *simRun) (bool, error) {
	return false, nil
}
