package stager

import "time"

// RetryMode is the RetryStrategy variant from spec.md §3.
type RetryMode int

const (
	NoRetries RetryMode = iota
	WithTimeout
	InfiniteRetries
)

// RetryStrategy governs how long unsatisfied requests survive a disconnect.
type RetryStrategy struct {
	Mode    RetryMode
	Timeout time.Duration // only meaningful for WithTimeout
}

func NoRetriesStrategy() RetryStrategy { return RetryStrategy{Mode: NoRetries} }

func WithTimeoutStrategy(d time.Duration) RetryStrategy {
	return RetryStrategy{Mode: WithTimeout, Timeout: d}
}

func InfiniteRetriesStrategy() RetryStrategy { return RetryStrategy{Mode: InfiniteRetries} }

// BackpressureMode is the BackpressureStrategy variant from spec.md §3.
type BackpressureMode int

const (
	Unlimited BackpressureMode = iota
	PendingLimit
)

// BackpressureStrategy bounds the count of in-flight StagedRequests.
type BackpressureStrategy struct {
	Mode  BackpressureMode
	Limit int // only meaningful for PendingLimit
}

func UnlimitedStrategy() BackpressureStrategy { return BackpressureStrategy{Mode: Unlimited} }

func PendingLimitStrategy(n int) BackpressureStrategy {
	return BackpressureStrategy{Mode: PendingLimit, Limit: n}
}
