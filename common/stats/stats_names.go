package stats

/*
This file defines all the metrics being collected. As new metrics are added please follow this pattern.
*/

const (
	/************************* Scheduler metrics **************************/
	/*
		number of Submit calls accepted for admission
	*/
	SchedSubmittedCounter = "submittedCounter"

	/*
		number of jobs handed to the executor
	*/
	SchedStartedCounter = "startedCounter"

	/*
		number of jobs settled, scoped by outcome (ex: settledCounter/ok)
	*/
	SchedSettledCounter = "settledCounter"

	/*
		number of submissions refused by the busy policy or an occupied pending slot
	*/
	SchedBusyCounter = "busyCounter"

	/*
		number of pending jobs displaced by a newer submission
	*/
	SchedSupersededCounter = "supersededCounter"

	/*
		number of times a running job's cancellation token was signaled
	*/
	SchedAbortRequestCounter = "abortRequestCounter"

	/*
		number of times the abort guard fired before the job settled
	*/
	SchedAbortTimeoutCounter = "abortTimeoutCounter"

	/*
		number of times the debounce timer was (re)armed for the pending slot
	*/
	SchedDebounceArmedCounter = "debounceArmedCounter"

	/*
		number of executor panics recovered and reported as internal errors
	*/
	SchedExecutorPanicCounter = "executorPanicCounter"

	/*
		current scheduler state: 0 idle, 1 running, 2 aborting, 3 queued
	*/
	SchedStateGauge = "stateGauge"

	/*
		time from executor start to settlement
	*/
	SchedRunLatency_ms = "runLatency_ms"

	/*
		time a job spent in the pending slot before promotion
	*/
	SchedQueueLatency_ms = "queueLatency_ms"

	/*
		progress events forwarded to submitters
	*/
	SchedProgressCounter = "progressCounter"

	/*
		progress events dropped because their job was no longer current
	*/
	SchedProgressDroppedCounter = "progressDroppedCounter"

	/************************* Lifecycle metrics **************************/
	/*
		lifecycle calls rejected because another was in flight
	*/
	LifecycleBusyCounter = "lifecycleBusyCounter"

	/*
		lifecycle call durations, scoped by operation (ex: lifecycleLatency_ms/load)
	*/
	LifecycleLatency_ms = "lifecycleLatency_ms"

	/************************* Daemon metrics **************************/
	/*
		open protocol sessions
	*/
	DaemonSessionsGauge = "sessionsGauge"

	/*
		protocol requests received, scoped by kind
	*/
	DaemonRequestCounter = "requestCounter"

	/*
		malformed protocol requests
	*/
	DaemonBadRequestCounter = "badRequestCounter"

	/*
		progress events a session dropped because its peer was not reading
	*/
	DaemonProgressDroppedCounter = "progressDroppedCounter"

	/************************* History metrics **************************/
	/*
		settled results written to the history store
	*/
	HistoryRecordedCounter = "recordedCounter"

	/*
		settled results dropped because the history writer was behind or failed
	*/
	HistoryDroppedCounter = "droppedCounter"
)
