package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ResolveCacheHits       uint64
	ResolveCacheMisses     uint64
	ResolveOutcomes        map[string]uint64
	ResolveDurationCount   uint64
	ResolveDurationTotalNs int64
	LinksCreated           uint64
	LinksUpdated           uint64
	LinksDeleted           uint64
	ClicksQueued           uint64
	ClicksDropped          uint64
	ClicksStored           uint64
	ClickFlushFailures     uint64
	AggregationRuns        map[string]uint64
}

// InMemoryRecorder stores metrics in memory. Used by tests and the
// /metrics endpoint.
type InMemoryRecorder struct {
	resolveCacheHits       uint64
	resolveCacheMisses     uint64
	resolveDurationCount   uint64
	resolveDurationTotalNs int64
	linksCreated           uint64
	linksUpdated           uint64
	linksDeleted           uint64
	clicksQueued           uint64
	clicksDropped          uint64
	clicksStored           uint64
	clickFlushFailures     uint64

	mu              sync.Mutex
	resolveOutcomes map[string]uint64
	aggregationRuns map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		resolveOutcomes: make(map[string]uint64),
		aggregationRuns: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	outcomes := make(map[string]uint64, len(m.resolveOutcomes))
	for k, v := range m.resolveOutcomes {
		outcomes[k] = v
	}
	runs := make(map[string]uint64, len(m.aggregationRuns))
	for k, v := range m.aggregationRuns {
		runs[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		ResolveCacheHits:       atomic.LoadUint64(&m.resolveCacheHits),
		ResolveCacheMisses:     atomic.LoadUint64(&m.resolveCacheMisses),
		ResolveOutcomes:        outcomes,
		ResolveDurationCount:   atomic.LoadUint64(&m.resolveDurationCount),
		ResolveDurationTotalNs: atomic.LoadInt64(&m.resolveDurationTotalNs),
		LinksCreated:           atomic.LoadUint64(&m.linksCreated),
		LinksUpdated:           atomic.LoadUint64(&m.linksUpdated),
		LinksDeleted:           atomic.LoadUint64(&m.linksDeleted),
		ClicksQueued:           atomic.LoadUint64(&m.clicksQueued),
		ClicksDropped:          atomic.LoadUint64(&m.clicksDropped),
		ClicksStored:           atomic.LoadUint64(&m.clicksStored),
		ClickFlushFailures:     atomic.LoadUint64(&m.clickFlushFailures),
		AggregationRuns:        runs,
	}
}

// IncResolveCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncResolveCacheHit() {
	atomic.AddUint64(&m.resolveCacheHits, 1)
}

// IncResolveCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncResolveCacheMiss() {
	atomic.AddUint64(&m.resolveCacheMisses, 1)
}

// IncResolveOutcome counts a terminal resolution outcome.
func (m *InMemoryRecorder) IncResolveOutcome(outcome string) {
	m.mu.Lock()
	m.resolveOutcomes[outcome]++
	m.mu.Unlock()
}

// ObserveResolveDuration records resolution duration.
func (m *InMemoryRecorder) ObserveResolveDuration(duration time.Duration) {
	atomic.AddUint64(&m.resolveDurationCount, 1)
	atomic.AddInt64(&m.resolveDurationTotalNs, duration.Nanoseconds())
}

// IncLinkCreated increments link created counter.
func (m *InMemoryRecorder) IncLinkCreated() {
	atomic.AddUint64(&m.linksCreated, 1)
}

// IncLinkUpdated increments link updated counter.
func (m *InMemoryRecorder) IncLinkUpdated() {
	atomic.AddUint64(&m.linksUpdated, 1)
}

// IncLinkDeleted increments link deleted counter.
func (m *InMemoryRecorder) IncLinkDeleted() {
	atomic.AddUint64(&m.linksDeleted, 1)
}

// IncClickQueued increments the queued click counter.
func (m *InMemoryRecorder) IncClickQueued() {
	atomic.AddUint64(&m.clicksQueued, 1)
}

// IncClickDropped increments the dropped click counter.
func (m *InMemoryRecorder) IncClickDropped() {
	atomic.AddUint64(&m.clicksDropped, 1)
}

// AddClicksStored adds to the stored click counter.
func (m *InMemoryRecorder) AddClicksStored(n int) {
	atomic.AddUint64(&m.clicksStored, uint64(n))
}

// IncClickFlushFailed increments the flush failure counter.
func (m *InMemoryRecorder) IncClickFlushFailed() {
	atomic.AddUint64(&m.clickFlushFailures, 1)
}

// IncAggregationRun counts an aggregation run by status.
func (m *InMemoryRecorder) IncAggregationRun(status string) {
	m.mu.Lock()
	m.aggregationRuns[status]++
	m.mu.Unlock()
}
