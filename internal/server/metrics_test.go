package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/54b3r/yolsda-go/internal/assistant"
	"github.com/54b3r/yolsda-go/internal/generator"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := newTestServer(&fakeAnswerer{answer: okAnswer("ok")}, nil)
	s.cfg.MetricsRegistry = reg
	s.cfg.MetricsGatherer = reg
	s.metrics = newServerMetrics(reg)
	return s, reg
}

// metricValue reads the current value of a counter or gauge.
func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case pb.Counter != nil:
		return pb.GetCounter().GetValue()
	case pb.Gauge != nil:
		return pb.GetGauge().GetValue()
	}
	t.Fatalf("metric is neither a counter nor a gauge")
	return 0
}

// findFamily returns the gathered family called name, or nil.
func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_ChatCounterIncremented(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	w := postChat(s, `{"message":"bonjour"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("chat: %d", w.Code)
	}

	mf := findFamily(t, reg, "yolsda_chat_requests_total")
	if mf == nil {
		t.Fatal("yolsda_chat_requests_total not found in gathered metrics")
	}
	found := false
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "outcome" && lp.GetValue() == "ok" {
				if m.GetCounter().GetValue() != 1 {
					t.Errorf("want counter=1, got %v", m.GetCounter().GetValue())
				}
				found = true
			}
		}
	}
	if !found {
		t.Error(`yolsda_chat_requests_total{outcome="ok"} not found`)
	}
}

func Test_Metrics_InFlightGauge(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.chatInFlight.Inc()
	s.metrics.chatInFlight.Inc()

	mf := findFamily(t, reg, "yolsda_chat_in_flight")
	if mf == nil {
		t.Fatal("yolsda_chat_in_flight not found in gathered metrics")
	}
	if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 2 {
		t.Errorf("want in_flight=2, got %v", v)
	}
}

func Test_Metrics_ObserveAnswer(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.observeAnswer(assistant.Answer{
		Outcome:      generator.KindOK,
		Retrieved:    2,
		SearchTime:   3 * time.Millisecond,
		GenerateTime: 4 * time.Second,
	})

	passages := findFamily(t, reg, "yolsda_retrieval_passages")
	if passages == nil {
		t.Fatal("yolsda_retrieval_passages not found")
	}
	h := passages.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 || h.GetSampleSum() != 2 {
		t.Errorf("passages histogram count=%d sum=%v", h.GetSampleCount(), h.GetSampleSum())
	}

	stages := findFamily(t, reg, "yolsda_chat_stage_duration_seconds")
	if stages == nil || len(stages.GetMetric()) != 2 {
		t.Fatalf("want search and generate stage series, got %v", stages)
	}
}

func Test_Metrics_InstrumentUsesRoutePattern(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := s.metrics.instrument(mux)

	for _, path := range []string{"/api/conversations/a", "/api/conversations/b", "/nowhere"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	mf := findFamily(t, reg, "yolsda_http_requests_total")
	if mf == nil {
		t.Fatal("yolsda_http_requests_total not found")
	}
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		var handler, code string
		for _, lp := range m.GetLabel() {
			switch lp.GetName() {
			case labelHandler:
				handler = lp.GetValue()
			case "code":
				code = lp.GetValue()
			}
		}
		got[handler+" "+code] = m.GetCounter().GetValue()
	}
	if got["GET /api/conversations/{id} 404"] != 2 {
		t.Errorf("pattern series = %v", got)
	}
	if got[unmatchedHandler+" 404"] != 1 {
		t.Errorf("unmatched series = %v", got)
	}
}
