package runner

import "fmt"

type Outcome int

const (
	// An unambiguous 0-value.
	UNKNOWN Outcome = iota
	// Executor produced a payload.
	OK
	// Submission refused by the busy policy.
	BUSY
	// Pending job displaced by a newer submission.
	SUPERSEDED
	// Executor observed the cancellation token and unwound.
	CANCELLED
	// Executor failed for a reason unrelated to scheduling.
	INTERNAL_ERROR
	// Executor rejected an option in Params.
	UNSUPPORTED_OPTION
)

func (o Outcome) String() string {
	switch o {
	case UNKNOWN:
		return "unknown"
	case OK:
		return "ok"
	case BUSY:
		return "busy"
	case SUPERSEDED:
		return "superseded"
	case CANCELLED:
		return "cancelled"
	case INTERNAL_ERROR:
		return "internal_error"
	case UNSUPPORTED_OPTION:
		return "unsupported_option"
	default:
		panic(fmt.Sprintf("Unexpected Outcome %v", int(o)))
	}
}

// IsAdmission is true for outcomes decided by the scheduler without running the executor.
// Callers should treat these as expected results of the busy policy, not failures.
func (o Outcome) IsAdmission() bool {
	return o == BUSY || o == SUPERSEDED
}

// IsError is true for executor failures.
func (o Outcome) IsError() bool {
	return o == INTERNAL_ERROR || o == UNSUPPORTED_OPTION
}

func ParseOutcome(s string) (Outcome, error) {
	for o := OK; o <= UNSUPPORTED_OPTION; o++ {
		if o.String() == s {
			return o, nil
		}
	}
	return UNKNOWN, fmt.Errorf("unknown outcome %q", s)
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
