package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector() returned nil")
	}
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := NewCollector()

	c.RecordHTTPRequest(100*time.Millisecond, 200)
	c.RecordHTTPRequest(200*time.Millisecond, 503)

	output := c.PrometheusFormat()

	if !strings.Contains(output, "slotgateway_http_requests_total 2") {
		t.Error("Expected request count of 2")
	}
	if !strings.Contains(output, "slotgateway_http_request_errors_total 1") {
		t.Error("Expected error count of 1")
	}
}

func TestCollector_RecordStoreWrite(t *testing.T) {
	c := NewCollector()

	c.RecordStoreWrite(nil)
	c.RecordStoreWrite(errors.New("disk full"))

	output := c.PrometheusFormat()
	if !strings.Contains(output, "slotgateway_usage_writes_total 2") {
		t.Error("Expected 2 writes")
	}
	if !strings.Contains(output, "slotgateway_usage_write_errors_total 1") {
		t.Error("Expected 1 write error")
	}
}

func TestCollector_RecordAttempt(t *testing.T) {
	c := NewCollector()

	c.RecordAttempt(2, "groq", 100*time.Millisecond, "")
	c.RecordAttempt(2, "groq", 200*time.Millisecond, "per_minute_rate_limit")
	c.RecordAttempt(1, "groq", 150*time.Millisecond, "daily_quota_exhausted")

	output := c.PrometheusFormat()

	for _, want := range []string{
		`slotgateway_slot_attempts_total{slot="2",provider="groq"} 2`,
		`slotgateway_slot_failures_total{slot="2",provider="groq"} 1`,
		`slotgateway_slot_attempts_total{slot="1",provider="groq"} 1`,
		`slotgateway_failures_total{classification="per_minute_rate_limit"} 1`,
		`slotgateway_failures_total{classification="daily_quota_exhausted"} 1`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %s\n%s", want, output)
		}
	}

	if strings.Index(output, `slot="1"`) > strings.Index(output, `slot="2"`) {
		t.Error("Expected slots in ascending order")
	}
}

func TestCollector_RecordDispatch(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordDispatch("general", "success")
		}()
	}
	wg.Wait()
	c.RecordDispatch("reserved", "exhausted")

	output := c.PrometheusFormat()
	if !strings.Contains(output, `slotgateway_dispatch_total{class="general",outcome="success"} 20`) {
		t.Errorf("Expected 20 general successes\n%s", output)
	}
	if !strings.Contains(output, `slotgateway_dispatch_total{class="reserved",outcome="exhausted"} 1`) {
		t.Error("Expected 1 reserved exhaustion")
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()

	c.RecordHTTPRequest(100*time.Millisecond, 200)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	handler := c.Handler()
	handler(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	contentType := rr.Header().Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") {
		t.Errorf("Expected text/plain content type, got %s", contentType)
	}

	if !strings.Contains(rr.Body.String(), "slotgateway_uptime_seconds") {
		t.Error("Expected metrics in response")
	}
}
