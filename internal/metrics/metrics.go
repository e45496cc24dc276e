// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Resolution metrics
	IncResolveCacheHit()
	IncResolveCacheMiss()
	IncResolveOutcome(outcome string) // "redirect", "not_found", "inactive", "expired", "blocked", "unavailable"
	ObserveResolveDuration(duration time.Duration)

	// Link management metrics
	IncLinkCreated()
	IncLinkUpdated()
	IncLinkDeleted()

	// Click pipeline metrics
	IncClickQueued()
	IncClickDropped()
	AddClicksStored(n int)
	IncClickFlushFailed()

	// Aggregation metrics
	IncAggregationRun(status string) // "success" or "failed"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
