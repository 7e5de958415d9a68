package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
)

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordRequest_CountsByLabels はエンドポイント・ステータス別にカウントされることを検証する。
func TestRecordRequest_CountsByLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest("POST", "/api/meta/validate", 200, 120*time.Millisecond)
	c.RecordRequest("POST", "/api/meta/validate", 200, 80*time.Millisecond)
	c.RecordRequest("GET", "/auth/verify", 401, 10*time.Millisecond)

	mf := findFamily(t, reg, "seokit_api_requests_total")
	if mf == nil {
		t.Fatal("seokit_api_requests_total metric not found")
	}

	counts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		key := labelValue(m, "method") + " " + labelValue(m, "endpoint") + " " + labelValue(m, "status_code")
		counts[key] = m.GetCounter().GetValue()
	}
	if counts["POST /api/meta/validate 200"] != 2 {
		t.Errorf("meta validate 200 = %v, want 2", counts["POST /api/meta/validate 200"])
	}
	if counts["GET /auth/verify 401"] != 1 {
		t.Errorf("verify 401 = %v, want 1", counts["GET /auth/verify 401"])
	}

	latency := findFamily(t, reg, "seokit_api_request_duration_seconds")
	if latency == nil {
		t.Fatal("latency histogram not found")
	}
	var samples uint64
	for _, m := range latency.GetMetric() {
		samples += m.GetHistogram().GetSampleCount()
	}
	if samples != 3 {
		t.Errorf("histogram sample count = %d, want 3", samples)
	}
}

// TestRecordUnauthorized_IncrementsCounter はセッション破棄カウンタが増加することを検証する。
func TestRecordUnauthorized_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUnauthorized()

	mf := findFamily(t, reg, "seokit_session_teardown_total")
	if mf == nil {
		t.Fatal("seokit_session_teardown_total metric not found")
	}
	if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("session_teardown_total = %v, want 1", v)
	}
}

// TestRecordBestEffortFailure_LabelsOperation は操作名ラベル付きで記録されることを検証する。
func TestRecordBestEffortFailure_LabelsOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBestEffortFailure("report_share")

	mf := findFamily(t, reg, "seokit_best_effort_failures_total")
	if mf == nil {
		t.Fatal("best effort metric not found")
	}
	if got := labelValue(mf.GetMetric()[0], "operation"); got != "report_share" {
		t.Errorf("operation label = %q, want report_share", got)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest("GET", "/api/report/list", 200, time.Second)
	c.RecordUnauthorized()
	c.RecordRateLimitWait(50 * time.Millisecond)
	c.RecordBestEffortFailure("report_share")

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	for _, metric := range []string{
		"seokit_api_requests_total",
		"seokit_api_request_duration_seconds",
		"seokit_session_teardown_total",
		"seokit_rate_limit_wait_seconds",
		"seokit_best_effort_failures_total",
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordUnauthorized()
	c2.RecordUnauthorized()
	c2.RecordUnauthorized()

	v1 := findFamily(t, reg1, "seokit_session_teardown_total").GetMetric()[0].GetCounter().GetValue()
	v2 := findFamily(t, reg2, "seokit_session_teardown_total").GetMetric()[0].GetCounter().GetValue()
	if v1 != 1 {
		t.Errorf("reg1 = %v, want 1", v1)
	}
	if v2 != 2 {
		t.Errorf("reg2 = %v, want 2", v2)
	}
}
