package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// instrumentedMux routes a few practice endpoints behind the middleware.
func instrumentedMux(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	exp := useTestTracer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/furigana", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Correlation", CorrelationID(r.Context()))
		_, _ = w.Write([]byte(`{"html":"ok"}`))
	})
	mux.HandleFunc("POST /api/conversation", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {})
	return Middleware(m)(mux), reader, exp
}

func spanAttrs(s tracetest.SpanStub) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(s.Attributes))
	for _, kv := range s.Attributes {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestMiddleware_CorrelationID(t *testing.T) {
	h, _, _ := instrumentedMux(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/furigana", nil))

	cid := rec.Header().Get("X-Correlation-ID")
	if len(cid) != 32 {
		t.Fatalf("X-Correlation-ID = %q, want 32 hex chars", cid)
	}
	if seen := rec.Header().Get("X-Seen-Correlation"); seen != cid {
		t.Errorf("handler saw correlation ID %q, response carries %q", seen, cid)
	}
}

func TestMiddleware_ContinuesClientTrace(t *testing.T) {
	h, _, _ := instrumentedMux(t)

	req := httptest.NewRequest(http.MethodPost, "/api/furigana", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("X-Correlation-ID = %q, want the client's trace ID", got)
	}
}

func TestMiddleware_SpanNamedByRoute(t *testing.T) {
	h, _, exp := instrumentedMux(t)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/furigana", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "POST /api/furigana" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	attrs := spanAttrs(spans[0])
	if attrs["http.route"].AsString() != "/api/furigana" {
		t.Errorf("http.route = %q", attrs["http.route"].AsString())
	}
	if attrs["http.response.status_code"].AsInt64() != 200 {
		t.Errorf("status attribute = %d", attrs["http.response.status_code"].AsInt64())
	}
}

func TestMiddleware_ServerErrorMarksSpan(t *testing.T) {
	h, _, exp := instrumentedMux(t)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/conversation", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status.Code)
	}
}

func TestMiddleware_RecordsDurationByRoute(t *testing.T) {
	h, reader, _ := instrumentedMux(t)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/furigana", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/.env", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "kotoba.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value("route")
		counts[route.AsString()] += dp.Count
	}
	if counts["/api/furigana"] != 1 {
		t.Errorf("/api/furigana samples = %d, want 1", counts["/api/furigana"])
	}
	if counts[unmatchedRoute] != 2 {
		t.Errorf("unmatched samples = %d, want 2 (unknown paths share one series)", counts[unmatchedRoute])
	}
	if len(counts) != 2 {
		t.Errorf("routes = %v, want exactly two series", counts)
	}
}

func TestRouteOf(t *testing.T) {
	tests := map[string]string{
		"":                   unmatchedRoute,
		"POST /api/furigana": "/api/furigana",
		"/metrics":           "/metrics",
	}
	for in, want := range tests {
		if got := routeOf(in); got != want {
			t.Errorf("routeOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		route  string
		status int
		want   slog.Level
	}{
		{"/api/furigana", 200, slog.LevelInfo},
		{"/api/furigana", 400, slog.LevelInfo},
		{"/healthz", 200, slog.LevelDebug},
		{"/metrics", 200, slog.LevelDebug},
		{"/readyz", 503, slog.LevelWarn},
		{"/api/tts", 502, slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := logLevel(tt.route, tt.status); got != tt.want {
			t.Errorf("logLevel(%q, %d) = %v, want %v", tt.route, tt.status, got, tt.want)
		}
	}
}
