package runner

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

type JobID string

// Params describes one image generation request.
// The scheduler never looks inside; only executors interpret it.
type Params struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Model          string  `json:"model,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
	GuidanceScale  float64 `json:"guidance_scale,omitempty"`

	// Script is read by the simulated executor only (see runner/execers).
	Script []string `json:"script,omitempty"`
}

func (p Params) String() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Params - Model: %s\n", p.Model)
	fmt.Fprintf(&b, "\tPrompt:\t%q\n", p.Prompt)
	if p.NegativePrompt != "" {
		fmt.Fprintf(&b, "\tNegative:\t%q\n", p.NegativePrompt)
	}
	fmt.Fprintf(&b, "\tSize:\t%dx%d\n", p.Width, p.Height)
	fmt.Fprintf(&b, "\tSteps:\t%d\n", p.Steps)
	fmt.Fprintf(&b, "\tSeed:\t%d\n", p.Seed)
	if len(p.Script) > 0 {
		fmt.Fprintf(&b, "\tScript:\t%v\n", p.Script)
	}
	return b.String()
}

// Result is the terminal outcome of a submitted job.
type Result struct {
	JobID   JobID
	Outcome Outcome

	// Only valid if Outcome == OK
	Payload []byte
	Elapsed time.Duration

	// Only valid if Outcome is INTERNAL_ERROR or UNSUPPORTED_OPTION
	Error string
}

func (r Result) String() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Result - ID: %s\n", r.JobID)
	fmt.Fprintf(&b, "\tOutcome:\t%s\n", r.Outcome)
	switch r.Outcome {
	case OK:
		fmt.Fprintf(&b, "\tPayload:\t%d bytes\n", len(r.Payload))
		fmt.Fprintf(&b, "\tElapsed:\t%s\n", r.Elapsed)
	case INTERNAL_ERROR, UNSUPPORTED_OPTION:
		fmt.Fprintf(&b, "\tError:\t\t%s\n", r.Error)
	}
	return b.String()
}

// Scheduler runs at most one job at a time and holds at most one more in reserve.
type Scheduler interface {
	// Submit admits params according to opts. It never waits for the job to run.
	// Admission outcomes (BUSY, SUPERSEDED) are delivered on the returned Handle, not as errors.
	Submit(params Params, sink ProgressSink, opts SubmitOptions) (*Handle, error)

	// Cancel requests cancellation of whichever job is currently running, if any.
	Cancel()

	// State reports the current scheduler state.
	State() SchedulerState
}

// Waiter is satisfied by anything that eventually yields a Result.
type Waiter interface {
	Wait(ctx context.Context) (Result, error)
}
