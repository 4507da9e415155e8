package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracing_CreatesSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var traceID, spanID string
	handler := Tracing("kindred-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = GetTraceID(r)
		spanID = GetSpanID(r)
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/locations/nearby", nil)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if traceID == "" || spanID == "" {
		t.Fatal("no active span inside traced handler")
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name() != "GET /api/locations/nearby" {
		t.Errorf("span name = %q, want %q", spans[0].Name(), "GET /api/locations/nearby")
	}
}

func TestGetTraceID_NoSpan(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	if got := GetTraceID(r); got != "" {
		t.Errorf("GetTraceID() = %q, want empty without active span", got)
	}
	if got := GetSpanID(r); got != "" {
		t.Errorf("GetSpanID() = %q, want empty without active span", got)
	}
}
