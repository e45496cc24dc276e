package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/linkden/linkden/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
	queueDepth  func() int
}

// NewMetricsHandler creates a new MetricsHandler. queueDepth may be
// nil when no click recorder is running.
func NewMetricsHandler(snapshotter metrics.Snapshotter, queueDepth func() int) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter, queueDepth: queueDepth}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "linkden_resolve_cache_hits_total %d\n", snap.ResolveCacheHits)
	writeMetric(w, "linkden_resolve_cache_misses_total %d\n", snap.ResolveCacheMisses)
	writeMetric(w, "linkden_resolve_duration_seconds_count %d\n", snap.ResolveDurationCount)
	writeMetric(w, "linkden_resolve_duration_seconds_sum %.6f\n", float64(snap.ResolveDurationTotalNs)/1e9)

	for _, outcome := range sortedKeys(snap.ResolveOutcomes) {
		writeMetric(w, "linkden_resolve_outcomes_total{outcome=%q} %d\n", outcome, snap.ResolveOutcomes[outcome])
	}

	writeMetric(w, "linkden_links_created_total %d\n", snap.LinksCreated)
	writeMetric(w, "linkden_links_updated_total %d\n", snap.LinksUpdated)
	writeMetric(w, "linkden_links_deleted_total %d\n", snap.LinksDeleted)

	writeMetric(w, "linkden_clicks_queued_total %d\n", snap.ClicksQueued)
	writeMetric(w, "linkden_clicks_dropped_total %d\n", snap.ClicksDropped)
	writeMetric(w, "linkden_clicks_stored_total %d\n", snap.ClicksStored)
	writeMetric(w, "linkden_click_flush_failures_total %d\n", snap.ClickFlushFailures)
	if h.queueDepth != nil {
		writeMetric(w, "linkden_click_queue_depth %d\n", h.queueDepth())
	}

	for _, status := range sortedKeys(snap.AggregationRuns) {
		writeMetric(w, "linkden_aggregation_runs_total{status=%q} %d\n", status, snap.AggregationRuns[status])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
