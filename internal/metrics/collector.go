// Package metrics provides Prometheus-compatible metrics collection for the slot gateway.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and exposes Prometheus-compatible metrics
type Collector struct {
	// HTTP metrics
	requestCount    int64
	requestErrors   int64
	requestDuration int64 // total milliseconds

	// Usage store metrics
	storeWrites      int64
	storeWriteErrors int64

	// Per-slot upstream attempts
	slotAttempts sync.Map // map[int]*SlotMetrics

	// Failure classifications, keyed by classification name
	classifications sync.Map // map[string]*int64

	// Dispatch outcomes, keyed by "class|outcome"
	dispatches sync.Map // map[string]*int64

	// System metrics
	startTime time.Time
}

// SlotMetrics holds metrics for a specific slot
type SlotMetrics struct {
	Provider string
	Attempts int64
	Failures int64
	Latency  int64 // total milliseconds
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
	}
}

// RecordHTTPRequest records an HTTP request
func (c *Collector) RecordHTTPRequest(duration time.Duration, statusCode int) {
	atomic.AddInt64(&c.requestCount, 1)
	atomic.AddInt64(&c.requestDuration, duration.Milliseconds())
	if statusCode >= 400 {
		atomic.AddInt64(&c.requestErrors, 1)
	}
}

// RecordStoreWrite records a usage store write
func (c *Collector) RecordStoreWrite(err error) {
	atomic.AddInt64(&c.storeWrites, 1)
	if err != nil {
		atomic.AddInt64(&c.storeWriteErrors, 1)
	}
}

// RecordAttempt records one upstream call made through a slot.
// classification is empty on success.
func (c *Collector) RecordAttempt(slotID int, provider string, duration time.Duration, classification string) {
	v, _ := c.slotAttempts.LoadOrStore(slotID, &SlotMetrics{Provider: provider})
	if m, ok := v.(*SlotMetrics); ok {
		atomic.AddInt64(&m.Attempts, 1)
		atomic.AddInt64(&m.Latency, duration.Milliseconds())
		if classification != "" {
			atomic.AddInt64(&m.Failures, 1)
		}
	}
	if classification != "" {
		incr(&c.classifications, classification)
	}
}

// RecordDispatch records the final outcome of a dispatch for a task class.
func (c *Collector) RecordDispatch(class, outcome string) {
	incr(&c.dispatches, class+"|"+outcome)
}

func incr(m *sync.Map, key string) {
	v, _ := m.LoadOrStore(key, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// PrometheusFormat returns metrics in Prometheus exposition format
func (c *Collector) PrometheusFormat() string {
	var b strings.Builder

	// HTTP metrics
	b.WriteString(c.formatCounter("slotgateway_http_requests_total", "", atomic.LoadInt64(&c.requestCount)))
	b.WriteString(c.formatCounter("slotgateway_http_request_errors_total", "", atomic.LoadInt64(&c.requestErrors)))
	if count := atomic.LoadInt64(&c.requestCount); count > 0 {
		avg := float64(atomic.LoadInt64(&c.requestDuration)) / float64(count)
		b.WriteString(c.formatGauge("slotgateway_http_request_duration_avg_ms", "", avg))
	}

	b.WriteString(c.formatCounter("slotgateway_usage_writes_total", "", atomic.LoadInt64(&c.storeWrites)))
	b.WriteString(c.formatCounter("slotgateway_usage_write_errors_total", "", atomic.LoadInt64(&c.storeWriteErrors)))

	// Slot metrics, in slot order so scrapes are stable
	var slotIDs []int
	c.slotAttempts.Range(func(key, _ any) bool {
		slotIDs = append(slotIDs, key.(int))
		return true
	})
	sort.Ints(slotIDs)
	for _, id := range slotIDs {
		v, _ := c.slotAttempts.Load(id)
		m := v.(*SlotMetrics)
		labels := fmt.Sprintf(`slot="%d",provider="%s"`, id, m.Provider)
		b.WriteString(c.formatCounter("slotgateway_slot_attempts_total", labels, atomic.LoadInt64(&m.Attempts)))
		b.WriteString(c.formatCounter("slotgateway_slot_failures_total", labels, atomic.LoadInt64(&m.Failures)))
	}

	for _, key := range sortedKeys(&c.classifications) {
		v, _ := c.classifications.Load(key)
		b.WriteString(c.formatCounter("slotgateway_failures_total", fmt.Sprintf(`classification="%s"`, key), atomic.LoadInt64(v.(*int64))))
	}

	for _, key := range sortedKeys(&c.dispatches) {
		v, _ := c.dispatches.Load(key)
		class, outcome, _ := strings.Cut(key, "|")
		b.WriteString(c.formatCounter("slotgateway_dispatch_total", fmt.Sprintf(`class="%s",outcome="%s"`, class, outcome), atomic.LoadInt64(v.(*int64))))
	}

	// System metrics
	uptime := time.Since(c.startTime).Seconds()
	b.WriteString(c.formatGauge("slotgateway_uptime_seconds", "", uptime))

	return b.String()
}

func sortedKeys(m *sync.Map) []string {
	var keys []string
	m.Range(func(key, _ any) bool {
		keys = append(keys, key.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

func (c *Collector) formatCounter(name, labels string, value int64) string {
	if labels != "" {
		return fmt.Sprintf("%s{%s} %d\n", name, labels, value)
	}
	return fmt.Sprintf("%s %d\n", name, value)
}

func (c *Collector) formatGauge(name, labels string, value float64) string {
	if labels != "" {
		return fmt.Sprintf("%s{%s} %.2f\n", name, labels, value)
	}
	return fmt.Sprintf("%s %.2f\n", name, value)
}

// Handler returns an HTTP handler for metrics endpoint
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(c.PrometheusFormat()))
	}
}
