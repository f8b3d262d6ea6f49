package errors

import "github.com/twitter/solo/runner"

// ExitCodeError pairs an error with the process exit code a CLI should use for it.
type ExitCodeError struct {
	code ExitCode
	error
}

func NewError(err error, exitCode ExitCode) *ExitCodeError {
	if err == nil {
		return nil
	}
	return &ExitCodeError{exitCode, err}
}

func (e *ExitCodeError) GetExitCode() ExitCode {
	if e == nil {
		return 0
	}
	return e.code
}

func (e *ExitCodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.error
}

// ExitCodeFor maps a job outcome to the exit code soloctl reports.
func ExitCodeFor(o runner.Outcome) ExitCode {
	switch o {
	case runner.OK:
		return SuccessExitCode
	case runner.BUSY:
		return BusyExitCode
	case runner.SUPERSEDED:
		return SupersededExitCode
	case runner.CANCELLED:
		return CancelledExitCode
	case runner.UNSUPPORTED_OPTION:
		return UnsupportedOptionExitCode
	default:
		return InternalErrorExitCode
	}
}
