package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

//go:generate mockgen -source=executor.go -package=runner -destination=executor_mock.go

// Executor runs one generation job. It is the black box behind the scheduler.
//
// Execute must call sink zero or more times and then return exactly once. It should
// check token at phase boundaries and return ErrCancelled once it has unwound.
// A *ExecError reports a failure with a reason; any other error is an internal error.
type Executor interface {
	Execute(params Params, token *CancelToken, sink ProgressSink) (Output, error)
}

type Output struct {
	Payload []byte
	Elapsed time.Duration
}

// ErrCancelled is returned by an executor that observed its CancelToken.
var ErrCancelled = errors.New("job cancelled")

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

type FailureReason int

const (
	REASON_INTERNAL_ERROR FailureReason = iota
	REASON_UNSUPPORTED_OPTION
)

func (r FailureReason) Outcome() Outcome {
	if r == REASON_UNSUPPORTED_OPTION {
		return UNSUPPORTED_OPTION
	}
	return INTERNAL_ERROR
}

// ExecError is a failure reported by an Executor.
type ExecError struct {
	Reason  FailureReason
	Message string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason.Outcome(), e.Message)
}

func UnsupportedOption(format string, args ...interface{}) error {
	return &ExecError{Reason: REASON_UNSUPPORTED_OPTION, Message: fmt.Sprintf(format, args...)}
}

func InternalError(format string, args ...interface{}) error {
	return &ExecError{Reason: REASON_INTERNAL_ERROR, Message: fmt.Sprintf(format, args...)}
}

func AsExecError(err error) (*ExecError, bool) {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// Loader is implemented by executors whose model can be loaded and released.
type Loader interface {
	Load(ctx context.Context) error
	Unload(ctx context.Context) error
	// Purge drops cached model assets as well as unloading.
	Purge(ctx context.Context) error
}
