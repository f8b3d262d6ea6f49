package errors

type ExitCode int

const (
	SuccessExitCode ExitCode = 0

	// Could not reach or talk to the daemon.
	ConnectionFailureExitCode = 69

	// Admission outcomes. Not failures of the job itself; a retry may succeed.
	BusyExitCode       = 75
	SupersededExitCode = 76

	CancelledExitCode = 80

	UnsupportedOptionExitCode = 90
	InternalErrorExitCode     = 100
)
