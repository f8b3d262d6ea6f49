package errors

import (
	"fmt"
	"testing"

	"github.com/twitter/solo/runner"
)

func TestNilError(t *testing.T) {
	var e *ExitCodeError = NewError(nil, BusyExitCode)
	if e != nil {
		t.Fatal("nil err should yield nil ExitCodeError")
	}
	if e.GetExitCode() != 0 {
		t.Fatal("nil ExitCodeError should report 0")
	}
}

func TestExitCodeFor(t *testing.T) {
	for _, tc := range []struct {
		o    runner.Outcome
		code ExitCode
	}{
		{runner.OK, SuccessExitCode},
		{runner.BUSY, BusyExitCode},
		{runner.SUPERSEDED, SupersededExitCode},
		{runner.CANCELLED, CancelledExitCode},
		{runner.UNSUPPORTED_OPTION, UnsupportedOptionExitCode},
		{runner.INTERNAL_ERROR, InternalErrorExitCode},
	} {
		if got := ExitCodeFor(tc.o); got != tc.code {
			t.Errorf("%v: got %d want %d", tc.o, got, tc.code)
		}
	}
	err := NewError(fmt.Errorf("job busy"), ExitCodeFor(runner.BUSY))
	if err.GetExitCode() != BusyExitCode || err.Error() != "job busy" {
		t.Fatalf("unexpected %v %d", err, err.GetExitCode())
	}
}
