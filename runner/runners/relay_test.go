package runners

import (
	"sync/atomic"
	"testing"

	"golang.org/x/time/rate"

	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/runner"
)

func TestRelayDropsEventsForStaleJobs(t *testing.T) {
	var current atomic.Value
	current.Store(runner.JobID("a"))
	isCurrent := func(id runner.JobID) bool { return current.Load().(runner.JobID) == id }

	stat := stats.DefaultStatsReceiver()
	var got []runner.Progress
	r := newRelay("a", func(p runner.Progress) { got = append(got, p) }, isCurrent, rate.NewLimiter(rate.Inf, 1), stat)

	r.Push(runner.FractionProgress("denoise", 0.1))
	r.Push(runner.StepProgress("denoise", 1, 2))
	r.Close()
	if len(got) != 2 || *got[0].Percent != 10 || *got[1].Percent != 50 || got[1].JobID != "a" {
		t.Fatalf("Unexpected events %+v", got)
	}

	r = newRelay("a", func(p runner.Progress) { got = append(got, p) }, isCurrent, rate.NewLimiter(rate.Inf, 1), stat)
	current.Store(runner.JobID("b"))
	r.Push(runner.FractionProgress("denoise", 0.2))
	r.Close()
	if len(got) != 2 {
		t.Fatalf("Stale event delivered: %+v", got[2:])
	}
	if n := stat.Counter(stats.SchedProgressDroppedCounter).Count(); n != 1 {
		t.Fatalf("Dropped counter %d", n)
	}
	if r.Push(runner.Progress{}) {
		t.Fatal("Push after Close should report false")
	}
}
