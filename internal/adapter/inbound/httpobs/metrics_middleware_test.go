package httpobs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsMiddleware_RecordsRequest(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/auth/verify", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	m := &dto.Metric{}
	if err := metrics.RequestsTotal.WithLabelValues("GET", "ok").Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.Counter.GetValue() != 1 {
		t.Errorf("requests_total = %v, want 1", m.Counter.GetValue())
	}
}

func TestMetricsMiddleware_SkipsHealthAndMetricsPaths(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	m := &dto.Metric{}
	if err := metrics.RequestsTotal.WithLabelValues("GET", "ok").Write(m); err == nil && m.Counter.GetValue() != 0 {
		t.Errorf("requests_total = %v, want 0 for skipped paths", m.Counter.GetValue())
	}
}
