package runner

import "math"

// Hint carried by the synthetic event sent when a cancellation outlives the abort guard.
const HintCancelDelayed = "cancel_delayed"

// Progress is one event emitted by an executor while a job runs.
type Progress struct {
	JobID      JobID    `json:"job_id"`
	Phase      string   `json:"phase,omitempty"`
	Step       int      `json:"step,omitempty"`
	TotalSteps int      `json:"total_steps,omitempty"`
	Fraction   *float64 `json:"fraction,omitempty"`
	Percent    *int     `json:"percent,omitempty"`
	Message    string   `json:"message,omitempty"`
	Hint       string   `json:"hint,omitempty"`
}

type ProgressSink func(Progress)

// NopSink discards every event.
func NopSink(Progress) {}

func FractionProgress(phase string, fraction float64) Progress {
	return Progress{Phase: phase, Fraction: &fraction}
}

func StepProgress(phase string, step, total int) Progress {
	return Progress{Phase: phase, Step: step, TotalSteps: total}
}

// Normalize attaches Percent when it can be derived.
// An explicit percentage wins, then Fraction, then Step/TotalSteps.
func Normalize(p Progress) Progress {
	var pct int
	switch {
	case p.Percent != nil:
		pct = *p.Percent
	case p.Fraction != nil:
		pct = int(math.Round(*p.Fraction * 100))
	case p.TotalSteps > 0:
		pct = int(math.Round(float64(p.Step) / float64(p.TotalSteps) * 100))
	default:
		return p
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	p.Percent = &pct
	if p.Fraction != nil {
		f := *p.Fraction
		p.Fraction = &f
	}
	return p
}
