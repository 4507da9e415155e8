package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestHTTPMetrics_RecordsRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"matches":[]}`))
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/locations/nearby", strings.NewReader(`{"user_id":"u1"}`))
	r.Header.Set("Content-Length", "16")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	mf := gatherMetric(t, reg, MetricHTTPRequestsTotal)
	if mf == nil {
		t.Fatal("http_requests_total not gathered")
	}
	m := mf.GetMetric()
	if len(m) != 1 {
		t.Fatalf("got %d series, want 1", len(m))
	}
	if m[0].GetCounter().GetValue() != 1 {
		t.Errorf("counter = %v, want 1", m[0].GetCounter().GetValue())
	}

	labels := make(map[string]string)
	for _, lp := range m[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	if labels["method"] != "POST" || labels["path"] != "/api/locations/nearby" || labels["status"] != "200" {
		t.Errorf("labels = %v", labels)
	}
}

func TestHTTPMetrics_NormalizesDynamicPaths(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Two different users must land in one series.
	for _, path := range []string{"/api/profiles/user-1", "/api/profiles/user-2"} {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		handler.ServeHTTP(httptest.NewRecorder(), r)
	}

	mf := gatherMetric(t, reg, MetricHTTPRequestsTotal)
	if mf == nil {
		t.Fatal("http_requests_total not gathered")
	}
	if len(mf.GetMetric()) != 1 {
		t.Fatalf("got %d series, want 1 normalized series", len(mf.GetMetric()))
	}
	for _, lp := range mf.GetMetric()[0].GetLabel() {
		if lp.GetName() == "path" && lp.GetValue() != "/api/profiles/{user_id}" {
			t.Errorf("path label = %q, want /api/profiles/{user_id}", lp.GetValue())
		}
	}
}

func TestHTTPMetrics_SkipsHealthEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/ready"} {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		handler.ServeHTTP(httptest.NewRecorder(), r)
	}

	if mf := gatherMetric(t, reg, MetricHTTPRequestsTotal); mf != nil && len(mf.GetMetric()) > 0 {
		t.Error("health endpoints must not be recorded")
	}
}

func TestHTTPMetrics_RecordsErrorStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/locations/update", nil)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	mf := gatherMetric(t, reg, MetricHTTPRequestsTotal)
	if mf == nil {
		t.Fatal("http_requests_total not gathered")
	}
	for _, lp := range mf.GetMetric()[0].GetLabel() {
		if lp.GetName() == "status" && lp.GetValue() != "400" {
			t.Errorf("status label = %q, want 400", lp.GetValue())
		}
	}
}

func TestMetricsResponseWriter_CapturesSize(t *testing.T) {
	rec := httptest.NewRecorder()
	mrw := newMetricsResponseWriter(rec)

	mrw.Write([]byte("hello "))
	mrw.Write([]byte("world"))

	if mrw.size != 11 {
		t.Errorf("size = %d, want 11", mrw.size)
	}
	if mrw.statusCode != http.StatusOK {
		t.Errorf("default statusCode = %d, want 200", mrw.statusCode)
	}
}
