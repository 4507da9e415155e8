package location

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}

	collectors := m.Collectors()
	if len(collectors) != 5 {
		t.Errorf("expected 5 collectors, got %d", len(collectors))
	}
}

func TestMetrics_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		m := NewMetrics()
		reg := prometheus.NewRegistry()

		if err := m.Register(reg); err != nil {
			t.Errorf("Register() returned error: %v", err)
		}

		// Counters without observations are not gathered until touched.
		m.RecordUpdate()
		m.RecordQuery("user")
		m.ObserveQueryDuration(10 * time.Millisecond)
		m.RecordDecryptFailure()
		m.RecordWindowFallback("self")

		families, err := reg.Gather()
		if err != nil {
			t.Errorf("Gather() returned error: %v", err)
		}

		expectedNames := map[string]bool{
			MetricLocationUpdatesTotal: false,
			MetricNearbyQueriesTotal:   false,
			MetricNearbyQueryDuration:  false,
			MetricDecryptFailuresTotal: false,
			MetricWindowFallbacksTotal: false,
		}

		for _, family := range families {
			if _, ok := expectedNames[family.GetName()]; ok {
				expectedNames[family.GetName()] = true
			}
		}

		for name, found := range expectedNames {
			if !found {
				t.Errorf("metric %s not found in gathered metrics", name)
			}
		}
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		m1 := NewMetrics()
		m2 := NewMetrics()
		reg := prometheus.NewRegistry()

		if err := m1.Register(reg); err != nil {
			t.Fatalf("first Register() returned error: %v", err)
		}

		if err := m2.Register(reg); err == nil {
			t.Error("second Register() should have returned an error")
		}
	})
}

func getCounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.(prometheus.Metric).Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func getHistogramSampleCount(h prometheus.Histogram) uint64 {
	var m dto.Metric
	if err := h.(prometheus.Metric).Write(&m); err != nil {
		return 0
	}
	return m.GetHistogram().GetSampleCount()
}

func TestMetrics_RecordUpdate(t *testing.T) {
	m := NewMetrics()

	if v := getCounterValue(m.updatesTotal); v != 0 {
		t.Errorf("initial value = %f, want 0", v)
	}

	for i := 0; i < 25; i++ {
		m.RecordUpdate()
	}

	if v := getCounterValue(m.updatesTotal); v != 25 {
		t.Errorf("final value = %f, want 25", v)
	}
}

func TestMetrics_RecordQuery(t *testing.T) {
	m := NewMetrics()

	m.RecordQuery("user")
	m.RecordQuery("user")
	m.RecordQuery("coordinates")

	if v := getCounterValue(m.queriesTotal.WithLabelValues("user")); v != 2 {
		t.Errorf("user variant = %f, want 2", v)
	}
	if v := getCounterValue(m.queriesTotal.WithLabelValues("coordinates")); v != 1 {
		t.Errorf("coordinates variant = %f, want 1", v)
	}
}

func TestMetrics_ObserveQueryDuration(t *testing.T) {
	m := NewMetrics()

	if c := getHistogramSampleCount(m.queryDuration); c != 0 {
		t.Errorf("initial sample count = %d, want 0", c)
	}

	durations := []time.Duration{
		5 * time.Millisecond,
		20 * time.Millisecond,
		150 * time.Millisecond,
	}
	for _, d := range durations {
		m.ObserveQueryDuration(d)
	}

	if c := getHistogramSampleCount(m.queryDuration); c != uint64(len(durations)) {
		t.Errorf("final sample count = %d, want %d", c, len(durations))
	}
}

func TestMetrics_RecordWindowFallback(t *testing.T) {
	m := NewMetrics()

	m.RecordWindowFallback("self")
	m.RecordWindowFallback("candidates")
	m.RecordWindowFallback("candidates")

	if v := getCounterValue(m.windowFallbacks.WithLabelValues("self")); v != 1 {
		t.Errorf("self side = %f, want 1", v)
	}
	if v := getCounterValue(m.windowFallbacks.WithLabelValues("candidates")); v != 2 {
		t.Errorf("candidates side = %f, want 2", v)
	}
}

// TestMetrics_NilReceiver verifies that an unmetered engine (nil
// *Metrics) never panics.
func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	m.RecordUpdate()
	m.RecordQuery("user")
	m.ObserveQueryDuration(time.Second)
	m.RecordDecryptFailure()
	m.RecordWindowFallback("self")
}
