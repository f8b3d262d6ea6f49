// Package protocol is the message form of the scheduler's API, shared by every
// transport that carries it: the in-process channel port and the gRPC stream.
//
// Each Request gets exactly one ACCEPTED, STATE_REPORT or ERROR Response with the
// same ID. A SUBMIT additionally gets zero or more PROGRESS responses and exactly
// one RESULT.
package protocol

import (
	"fmt"
	"time"

	"github.com/twitter/solo/runner"
)

type RequestKind string

const (
	SUBMIT RequestKind = "submit"
	CANCEL RequestKind = "cancel"
	STATE  RequestKind = "state"
)

type ResponseKind string

const (
	ACCEPTED     ResponseKind = "accepted"
	PROGRESS     ResponseKind = "progress"
	RESULT       ResponseKind = "result"
	STATE_REPORT ResponseKind = "state"
	ERROR        ResponseKind = "error"
)

// Options mirrors runner.SubmitOptions. Absent fields take the daemon's defaults.
type Options struct {
	BusyPolicy    *runner.BusyPolicy `json:"busy_policy,omitempty"`
	ReplaceQueued *bool              `json:"replace_queued,omitempty"`
	DebounceMs    *int64             `json:"debounce_ms,omitempty"`
}

// Apply overlays the fields set in o on defaults.
func (o *Options) Apply(defaults runner.SubmitOptions) runner.SubmitOptions {
	if o == nil {
		return defaults
	}
	if o.BusyPolicy != nil {
		defaults.BusyPolicy = *o.BusyPolicy
	}
	if o.ReplaceQueued != nil {
		defaults.ReplaceQueued = *o.ReplaceQueued
	}
	if o.DebounceMs != nil {
		defaults.Debounce = time.Duration(*o.DebounceMs) * time.Millisecond
	}
	return defaults
}

type Request struct {
	ID      string         `json:"id"`
	Kind    RequestKind    `json:"kind"`
	Params  *runner.Params `json:"params,omitempty"`
	Options *Options       `json:"options,omitempty"`
}

func (r *Request) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("request without id")
	}
	switch r.Kind {
	case SUBMIT:
		if r.Params == nil {
			return fmt.Errorf("submit %s without params", r.ID)
		}
	case CANCEL, STATE:
	default:
		return fmt.Errorf("unknown request kind %q", r.Kind)
	}
	return nil
}

// Result is the wire form of runner.Result.
type Result struct {
	Outcome   runner.Outcome `json:"outcome"`
	Payload   []byte         `json:"payload,omitempty"`
	ElapsedMs int64          `json:"elapsed_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func FromRunnerResult(r runner.Result) *Result {
	return &Result{
		Outcome:   r.Outcome,
		Payload:   r.Payload,
		ElapsedMs: r.Elapsed.Milliseconds(),
		Error:     r.Error,
	}
}

func (r *Result) ToRunnerResult(id runner.JobID) runner.Result {
	return runner.Result{
		JobID:   id,
		Outcome: r.Outcome,
		Payload: r.Payload,
		Elapsed: time.Duration(r.ElapsedMs) * time.Millisecond,
		Error:   r.Error,
	}
}

type Response struct {
	ID       string                 `json:"id"`
	Kind     ResponseKind           `json:"kind"`
	JobID    runner.JobID           `json:"job_id,omitempty"`
	Progress *runner.Progress       `json:"progress,omitempty"`
	Result   *Result                `json:"result,omitempty"`
	State    *runner.SchedulerState `json:"state,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func Accepted(id string, jobID runner.JobID) *Response {
	return &Response{ID: id, Kind: ACCEPTED, JobID: jobID}
}

func StateResponse(id string, st runner.SchedulerState) *Response {
	return &Response{ID: id, Kind: STATE_REPORT, State: &st}
}

func ProgressResponse(id string, p runner.Progress) *Response {
	return &Response{ID: id, Kind: PROGRESS, JobID: p.JobID, Progress: &p}
}

func ResultResponse(id string, r runner.Result) *Response {
	return &Response{ID: id, Kind: RESULT, JobID: r.JobID, Result: FromRunnerResult(r)}
}

func ErrorResponse(id string, err error) *Response {
	return &Response{ID: id, Kind: ERROR, Error: err.Error()}
}

// Final reports whether no further responses will follow r for its request.
func (r *Response) Final(req RequestKind) bool {
	switch r.Kind {
	case ERROR, RESULT, STATE_REPORT:
		return true
	case ACCEPTED:
		return req != SUBMIT
	}
	return false
}
