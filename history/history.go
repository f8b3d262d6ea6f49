// Package history keeps a bounded record of settled jobs for diagnostics.
package history

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/twitter/solo/runner"
)

var ErrClosed = errors.New("history store is closed")

// Record is one settled job. Payloads are never stored, only their size.
type Record struct {
	JobID        runner.JobID   `json:"job_id"`
	Outcome      runner.Outcome `json:"outcome"`
	Prompt       string         `json:"prompt,omitempty"`
	Model        string         `json:"model,omitempty"`
	Error        string         `json:"error,omitempty"`
	PayloadBytes int            `json:"payload_bytes,omitempty"`
	Elapsed      time.Duration  `json:"elapsed_ns,omitempty"`
	Submitted    time.Time      `json:"submitted"`
	// Zero if the job never started.
	Started time.Time `json:"started,omitempty"`
	Settled time.Time `json:"settled"`
}

// Store persists Records, keeping at most a configured number of the newest.
type Store interface {
	Add(ctx context.Context, r Record) error
	// Recent returns up to limit records, newest first. limit <= 0 means all.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
