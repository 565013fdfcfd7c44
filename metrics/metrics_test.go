package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/crycare/cry-pipeline/logging"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumByAttr(t *testing.T, met *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s is not a sum", met.Name)
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return 0
}

func TestRecordPrediction(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordPrediction(ctx, "ok", 120*time.Millisecond)
	m.RecordPrediction(ctx, "ok", 80*time.Millisecond)
	m.RecordPrediction(ctx, "decode", time.Millisecond)

	rm := collect(t, reader)
	met := findMetric(rm, "cry.predictions")
	if met == nil {
		t.Fatal("cry.predictions not found")
	}
	if got := sumByAttr(t, met, "outcome", "ok"); got != 2 {
		t.Fatalf("ok predictions: got %d want 2", got)
	}
	if got := sumByAttr(t, met, "outcome", "decode"); got != 1 {
		t.Fatalf("decode predictions: got %d want 1", got)
	}

	hist := findMetric(rm, "cry.prediction.duration")
	if hist == nil {
		t.Fatal("cry.prediction.duration not found")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok || len(h.DataPoints) == 0 {
		t.Fatal("duration histogram empty")
	}
}

func TestRecordSegments(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordSegments(context.Background(), 3, 1)
	m.RecordSegments(context.Background(), 2, 0)

	met := findMetric(collect(t, reader), "cry.segments")
	if met == nil {
		t.Fatal("cry.segments not found")
	}
	if got := sumByAttr(t, met, "status", "ok"); got != 5 {
		t.Fatalf("ok segments: got %d want 5", got)
	}
	if got := sumByAttr(t, met, "status", "failed"); got != 1 {
		t.Fatalf("failed segments: got %d want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordPrediction(context.Background(), "ok", time.Second)
	m.RecordStage(context.Background(), "loaded", time.Second)
	m.RecordSegments(context.Background(), 1, 1)
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	m, reader := newTestMetrics(t)
	h := Middleware(m, logging.Discard(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status: got %d", rec.Code)
	}

	met := findMetric(collect(t, reader), "cry.http.request.duration")
	if met == nil {
		t.Fatal("http duration not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	found := false
	for _, dp := range hist.DataPoints {
		if v, ok := dp.Attributes.Value("status"); ok && v.AsString() == "418" {
			found = true
		}
	}
	if !found {
		t.Fatal("no data point with status 418")
	}
}

func TestProviderServesPrometheus(t *testing.T) {
	p, err := NewProvider()
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m, err := NewMetrics(p)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordPrediction(context.Background(), "ok", 50*time.Millisecond)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "cry_predictions") {
		t.Fatalf("metrics output missing cry_predictions:\n%s", body)
	}
}
