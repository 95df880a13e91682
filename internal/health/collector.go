// Package health implements spec.md 4.11: the performance metrics backing
// get_performance_metrics, the health score behind get_health_score, and
// the rule-based insights behind get_active_alerts.
package health

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// latencyWindow bounds the number of recent query latencies kept for
// in-process percentile computation. Prometheus histograms are cheap to
// scrape but don't expose quantiles back to Go code without a query
// engine in front of them, so the collector keeps its own bounded sample
// window alongside the histogram it exposes for external scraping.
const latencyWindow = 4096

// Collector accumulates the counters and latency samples spec.md 4.11
// names: queries_per_day, search_latency_p50/p95/p99_ms, cache_hit_rate,
// error_rate, and per-operation-kind counts. Safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	queriesByDay    map[string]int64
	errors          int64
	operations      int64
	operationCounts map[string]int64
	cacheHits       int64
	cacheMisses     int64
	latenciesMS     []float64
	latencyCursor   int

	searchLatency  *prometheus.HistogramVec
	operationTotal *prometheus.CounterVec
	errorTotal     prometheus.Counter
	cacheHitTotal  prometheus.Counter
	cacheMissTotal prometheus.Counter
}

// NewCollector builds a Collector and, if reg is non-nil, registers its
// metrics so they are served on the process's /metrics endpoint. reg
// should be prometheus.NewRegistry() in tests to avoid collisions with
// other tests sharing the default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		queriesByDay:    make(map[string]int64),
		operationCounts: make(map[string]int64),
		latenciesMS:     make([]float64, 0, latencyWindow),
		searchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "memento",
			Name:      "search_latency_milliseconds",
			Help:      "retrieve_memories and search_all_projects latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation"}),
		operationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memento",
			Name:      "operation_total",
			Help:      "Count of tool-call operations, labeled by operation kind.",
		}, []string{"operation"}),
		errorTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memento",
			Name:      "errors_total",
			Help:      "Count of operations that returned an error.",
		}),
		cacheHitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memento",
			Name:      "embedding_cache_hits_total",
			Help:      "Count of retrieve_memories calls served from the embedding cache.",
		}),
		cacheMissTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memento",
			Name:      "embedding_cache_misses_total",
			Help:      "Count of retrieve_memories calls that generated a fresh embedding.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.searchLatency, c.operationTotal, c.errorTotal, c.cacheHitTotal, c.cacheMissTotal)
	}
	return c
}

// RecordQuery records one retrieve_memories or search_all_projects
// invocation: its latency, whether the embedding cache served it, and
// whether it errored. operation labels the histogram/counter series.
func (c *Collector) RecordQuery(operation string, latencyMS int64, usedCache bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := time.Now().UTC().Format("2006-01-02")
	c.queriesByDay[day]++
	c.appendLatency(float64(latencyMS))
	c.searchLatency.WithLabelValues(operation).Observe(float64(latencyMS))

	if usedCache {
		c.cacheHits++
		c.cacheHitTotal.Inc()
	} else {
		c.cacheMisses++
		c.cacheMissTotal.Inc()
	}
	c.recordOperationLocked(operation, err)
}

// RecordOperation records one non-search tool-call operation (store_memory,
// update_memory, delete_memory, ...) for the per-operation-kind counters
// and error_rate, without touching the latency/cache-hit samples that are
// specific to search.
func (c *Collector) RecordOperation(operation string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordOperationLocked(operation, err)
}

func (c *Collector) recordOperationLocked(operation string, err error) {
	c.operations++
	c.operationCounts[operation]++
	c.operationTotal.WithLabelValues(operation).Inc()
	if err != nil {
		c.errors++
		c.errorTotal.Inc()
	}
}

func (c *Collector) appendLatency(ms float64) {
	if len(c.latenciesMS) < latencyWindow {
		c.latenciesMS = append(c.latenciesMS, ms)
		return
	}
	c.latenciesMS[c.latencyCursor] = ms
	c.latencyCursor = (c.latencyCursor + 1) % latencyWindow
}

// Snapshot is a point-in-time read of the collector's counters, the shape
// returned by get_performance_metrics.
type Snapshot struct {
	QueriesPerDay    map[string]int64
	OperationCounts  map[string]int64
	SearchLatencyP50 float64
	SearchLatencyP95 float64
	SearchLatencyP99 float64
	CacheHitRate     float64
	ErrorRate        float64
}

// Snapshot computes the current metrics view. Percentiles are taken over
// the in-memory latency sample window; cache_hit_rate and error_rate are
// ratios over all recorded queries/operations since startup.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	days := make(map[string]int64, len(c.queriesByDay))
	for k, v := range c.queriesByDay {
		days[k] = v
	}
	ops := make(map[string]int64, len(c.operationCounts))
	for k, v := range c.operationCounts {
		ops[k] = v
	}

	p50, p95, p99 := percentiles(c.latenciesMS)

	var cacheHitRate float64
	if total := c.cacheHits + c.cacheMisses; total > 0 {
		cacheHitRate = float64(c.cacheHits) / float64(total)
	}
	var errorRate float64
	if c.operations > 0 {
		errorRate = float64(c.errors) / float64(c.operations)
	}

	return Snapshot{
		QueriesPerDay:    days,
		OperationCounts:  ops,
		SearchLatencyP50: p50,
		SearchLatencyP95: p95,
		SearchLatencyP99: p99,
		CacheHitRate:     cacheHitRate,
		ErrorRate:        errorRate,
	}
}

// percentiles returns the p50/p95/p99 of samples. samples need not be
// sorted; a copy is sorted in place. Returns zeros for an empty window.
func percentiles(samples []float64) (p50, p95, p99 float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return percentileOf(sorted, 50), percentileOf(sorted, 95), percentileOf(sorted, 99)
}

func percentileOf(sorted []float64, p int) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := (p * (len(sorted) - 1)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
