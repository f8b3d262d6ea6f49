package runner

import (
	"fmt"
	"strings"
	"time"
)

// BusyPolicy decides what happens to a submission that arrives while a job is running.
// It never affects a submission that arrives while idle.
type BusyPolicy int

const (
	// Hold the new job in the pending slot. The zero value.
	QUEUE BusyPolicy = iota
	// Settle the new job BUSY.
	REJECT
	// Hold the new job in the pending slot and cancel the running job.
	ABORT_AND_QUEUE
)

func (p BusyPolicy) String() string {
	switch p {
	case QUEUE:
		return "queue"
	case REJECT:
		return "reject"
	case ABORT_AND_QUEUE:
		return "abort_and_queue"
	default:
		panic(fmt.Sprintf("Unexpected BusyPolicy %v", int(p)))
	}
}

func ParseBusyPolicy(s string) (BusyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "queue":
		return QUEUE, nil
	case "reject":
		return REJECT, nil
	case "abort_and_queue", "abort-and-queue":
		return ABORT_AND_QUEUE, nil
	}
	return QUEUE, fmt.Errorf("unknown busy policy %q", s)
}

func (p BusyPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *BusyPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseBusyPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

type SubmitOptions struct {
	BusyPolicy BusyPolicy
	// When false, a submission that finds the pending slot occupied settles BUSY
	// instead of superseding the occupant.
	ReplaceQueued bool
	// Minimum quiet period between installation in the pending slot and promotion.
	// Zero disables debouncing. Never delays an immediate start.
	Debounce time.Duration
}

func DefaultSubmitOptions() SubmitOptions {
	return SubmitOptions{BusyPolicy: QUEUE, ReplaceQueued: true}
}

func (o SubmitOptions) Validate() error {
	if o.BusyPolicy < QUEUE || o.BusyPolicy > ABORT_AND_QUEUE {
		return fmt.Errorf("invalid busy policy %d", int(o.BusyPolicy))
	}
	if o.Debounce < 0 {
		return fmt.Errorf("negative debounce %v", o.Debounce)
	}
	return nil
}
