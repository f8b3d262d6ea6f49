package runner

import "fmt"

type SchedulerState int

const (
	// No current job, no pending job.
	IDLE SchedulerState = iota
	// Current job executing, no cancellation in flight.
	RUNNING
	// Current job executing, cancellation signaled and not yet given up on.
	ABORTING
	// Pending slot occupied, whatever the current job is doing.
	QUEUED
)

func (s SchedulerState) String() string {
	switch s {
	case IDLE:
		return "idle"
	case RUNNING:
		return "running"
	case ABORTING:
		return "aborting"
	case QUEUED:
		return "queued"
	default:
		panic(fmt.Sprintf("Unexpected SchedulerState %v", int(s)))
	}
}

func (s SchedulerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SchedulerState) UnmarshalText(text []byte) error {
	for st := IDLE; st <= QUEUED; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown scheduler state %q", text)
}

// DeriveState computes the state from the slots so the two can never disagree.
func DeriveState(hasCurrent, hasPending, aborting bool) SchedulerState {
	switch {
	case hasPending:
		return QUEUED
	case hasCurrent && aborting:
		return ABORTING
	case hasCurrent:
		return RUNNING
	default:
		return IDLE
	}
}
