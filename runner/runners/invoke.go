package runners

import (
	"fmt"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/runner"
)

// invoke.go: Invoker runs one job on an Executor.

func NewInvoker(exec runner.Executor, stat stats.StatsReceiver) *Invoker {
	return &Invoker{exec: exec, stat: stat}
}

// Invoker runs a job by handing it to the Executor and turning whatever comes back
// (including a panic) into a Result. Unlike the Scheduler, it has no idea of what
// else is running or has run.
type Invoker struct {
	exec runner.Executor
	stat stats.StatsReceiver
}

// Run executes params and sends the job's Result on doneCh once the relay has
// delivered every progress event the executor emitted.
func (inv *Invoker) Run(
	id runner.JobID, params runner.Params, token *runner.CancelToken, rel *relay, doneCh chan<- finished) {
	go func() {
		r := inv.run(id, params, token, rel)
		rel.Close()
		doneCh <- finished{id: id, result: r}
	}()
}

func (inv *Invoker) run(id runner.JobID, params runner.Params, token *runner.CancelToken, rel *relay) (r runner.Result) {
	log.WithFields(log.Fields{"jobID": id}).Debugf("runner/runners/invoke.go: run. %s", params)
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			inv.stat.Counter(stats.SchedExecutorPanicCounter).Inc(1)
			log.WithFields(log.Fields{"jobID": id}).Errorf("executor panic: %v\n%s", rec, debug.Stack())
			r = runner.ErrorResult(id, fmt.Errorf("executor panic: %v", rec))
		}
	}()

	out, err := inv.exec.Execute(params, token, func(p runner.Progress) {
		rel.Push(p)
	})
	if err == nil && out.Elapsed == 0 {
		out.Elapsed = time.Since(start)
	}
	if err != nil && token.Cancelled() && !runner.IsCancelled(err) {
		log.WithFields(log.Fields{"jobID": id}).Infof("executor failed after cancellation was requested: %v", err)
	}
	return runner.ResultFromExec(id, out, err)
}
