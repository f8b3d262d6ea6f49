package runner

import "time"

// Helper functions to create Results

func OkResult(id JobID, payload []byte, elapsed time.Duration) (r Result) {
	r.JobID = id
	r.Outcome = OK
	r.Payload = payload
	r.Elapsed = elapsed
	return r
}

func BusyResult(id JobID) (r Result) {
	r.JobID = id
	r.Outcome = BUSY
	return r
}

func SupersededResult(id JobID) (r Result) {
	r.JobID = id
	r.Outcome = SUPERSEDED
	return r
}

func CancelledResult(id JobID) (r Result) {
	r.JobID = id
	r.Outcome = CANCELLED
	return r
}

func ErrorResult(id JobID, err error) (r Result) {
	r.JobID = id
	r.Outcome = INTERNAL_ERROR
	r.Error = err.Error()
	return r
}

// ResultFromExec converts an Executor's return values into a Result.
func ResultFromExec(id JobID, out Output, err error) Result {
	if err == nil {
		return OkResult(id, out.Payload, out.Elapsed)
	}
	if IsCancelled(err) {
		return CancelledResult(id)
	}
	if ee, ok := AsExecError(err); ok {
		return Result{JobID: id, Outcome: ee.Reason.Outcome(), Error: ee.Message}
	}
	return ErrorResult(id, err)
}
