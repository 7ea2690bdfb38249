package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Aggregation metrics
	AggregationsTotal      int64
	AggregationErrorsTotal int64
	PartialResultsTotal    int64
	lastAggregationTime    time.Duration

	// Cache metrics
	CacheHitsTotal   int64
	CacheMissesTotal int64

	// Scan metrics
	PartitionsScannedTotal int64
	PartitionsSkippedTotal int64
	RecordsProcessedTotal  int64

	// Data-quality counters
	UnparseableDatesTotal int64
	UnknownServicesTotal  int64
	StaleScoresTotal      int64
	DuplicatesTotal       int64
	IdentityCollisions    int64

	// HTTP metrics
	httpRequestsTotal    map[string]map[int]int64 // endpoint -> status -> count
	httpRequestDurations map[string][]float64     // endpoint -> durations

	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			httpRequestsTotal:    make(map[string]map[int]int64),
			httpRequestDurations: make(map[string][]float64),
			startTime:            time.Now(),
		}
	})
	return instance
}

// RecordAggregation records a completed aggregation pass.
func (m *Metrics) RecordAggregation(duration time.Duration, partial bool) {
	m.mu.Lock()
	m.AggregationsTotal++
	m.lastAggregationTime = duration
	if partial {
		m.PartialResultsTotal++
	}
	m.mu.Unlock()
}

// RecordAggregationError increments the aggregation error counter.
func (m *Metrics) RecordAggregationError() {
	m.mu.Lock()
	m.AggregationErrorsTotal++
	m.mu.Unlock()
}

// RecordCacheHit increments the ranking-cache hit counter.
func (m *Metrics) RecordCacheHit() {
	m.mu.Lock()
	m.CacheHitsTotal++
	m.mu.Unlock()
}

// RecordCacheMiss increments the ranking-cache miss counter.
func (m *Metrics) RecordCacheMiss() {
	m.mu.Lock()
	m.CacheMissesTotal++
	m.mu.Unlock()
}

// RecordPartitionScanned increments the scanned-partition counter.
func (m *Metrics) RecordPartitionScanned(records int) {
	m.mu.Lock()
	m.PartitionsScannedTotal++
	m.RecordsProcessedTotal += int64(records)
	m.mu.Unlock()
}

// RecordPartitionSkipped increments the skipped-partition counter.
func (m *Metrics) RecordPartitionSkipped() {
	m.mu.Lock()
	m.PartitionsSkippedTotal++
	m.mu.Unlock()
}

// RecordUnparseableDate counts a record whose date no matcher recognized.
func (m *Metrics) RecordUnparseableDate() {
	m.mu.Lock()
	m.UnparseableDatesTotal++
	m.mu.Unlock()
}

// RecordUnknownService counts a lookup for a service absent from the
// scoring table.
func (m *Metrics) RecordUnknownService() {
	m.mu.Lock()
	m.UnknownServicesTotal++
	m.mu.Unlock()
}

// RecordStaleScore counts a precomputed score that failed validation.
func (m *Metrics) RecordStaleScore() {
	m.mu.Lock()
	m.StaleScoresTotal++
	m.mu.Unlock()
}

// RecordDuplicate counts a record dropped by cross-partition dedup.
func (m *Metrics) RecordDuplicate() {
	m.mu.Lock()
	m.DuplicatesTotal++
	m.mu.Unlock()
}

// RecordIdentityCollision counts a second raw spelling collapsing into an
// existing identity key.
func (m *Metrics) RecordIdentityCollision() {
	m.mu.Lock()
	m.IdentityCollisions++
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++

	// Keep last 100 durations for percentile calculation
	if len(m.httpRequestDurations[endpoint]) >= 100 {
		m.httpRequestDurations[endpoint] = m.httpRequestDurations[endpoint][1:]
	}
	m.httpRequestDurations[endpoint] = append(m.httpRequestDurations[endpoint], duration.Seconds())
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("crm_uptime_seconds", time.Since(m.startTime).Seconds())

		// Aggregation metrics
		write("crm_aggregations_total", m.AggregationsTotal)
		write("crm_aggregation_errors_total", m.AggregationErrorsTotal)
		write("crm_partial_results_total", m.PartialResultsTotal)
		write("crm_aggregation_duration_seconds", m.lastAggregationTime.Seconds())

		// Cache metrics
		write("crm_ranking_cache_hits_total", m.CacheHitsTotal)
		write("crm_ranking_cache_misses_total", m.CacheMissesTotal)

		// Scan metrics
		write("crm_partitions_scanned_total", m.PartitionsScannedTotal)
		write("crm_partitions_skipped_total", m.PartitionsSkippedTotal)
		write("crm_records_processed_total", m.RecordsProcessedTotal)

		// Data-quality metrics
		write("crm_unparseable_dates_total", m.UnparseableDatesTotal)
		write("crm_unknown_services_total", m.UnknownServicesTotal)
		write("crm_stale_scores_total", m.StaleScoresTotal)
		write("crm_duplicates_total", m.DuplicatesTotal)
		write("crm_identity_collisions_total", m.IdentityCollisions)

		// HTTP metrics
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("crm_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
