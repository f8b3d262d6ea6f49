package common

import (
	"time"
)

// Ceiling on how long a cancellation may take before the scheduler stops treating it as in progress.
const DefaultAbortTimeout = 8 * time.Second

const DefaultClientTimeout = time.Minute

const DefaultHTTPAddr = "localhost:9091"

// Upper bound on concurrent daemon connections.
const DefaultMaxConns = 64

// Number of settled results kept by the in-memory history.
const DefaultHistorySize = 200
