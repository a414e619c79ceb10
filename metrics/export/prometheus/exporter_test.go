package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	hallpass "github.com/munihall/hallpass"
)

type fakeSource struct {
	snapshot hallpass.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() hallpass.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: hallpass.MetricsSnapshot{
			Counters:   map[hallpass.MetricID]uint64{},
			Histograms: map[hallpass.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: hallpass.MetricsSnapshot{
			Counters: map[hallpass.MetricID]uint64{
				hallpass.MetricResolveProceed: 7,
			},
			Histograms: map[hallpass.MetricID][]uint64{
				hallpass.MetricResolveLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "hallpass_resolve_proceed_total 7") {
		t.Fatalf("expected resolve_proceed counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "hallpass_resolve_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "hallpass_resolve_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "hallpass_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: hallpass.MetricsSnapshot{
			Counters:   map[hallpass.MetricID]uint64{hallpass.MetricResolveProceed: 1},
			Histograms: map[hallpass.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: hallpass.MetricsSnapshot{
			Counters: map[hallpass.MetricID]uint64{
				hallpass.MetricResolveProceed:     1000,
				hallpass.MetricResolveRedirect:    40,
				hallpass.MetricHydrationLoad:      800,
				hallpass.MetricHydrationFailure:   10,
				hallpass.MetricSessionRestored:    120,
				hallpass.MetricSessionInvalidated: 20,
				hallpass.MetricPlanCallIssued:     2600,
			},
			Histograms: map[hallpass.MetricID][]uint64{
				hallpass.MetricResolveLatency: {10, 20, 30, 40, 50, 60, 70, 80},
				hallpass.MetricPlanLatency:    {5, 10, 15, 20, 25, 30, 35, 40},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
