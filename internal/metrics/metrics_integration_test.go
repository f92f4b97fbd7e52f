package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/geojson-viewer/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_AppMetrics_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{Enabled: true, Build: BuildInfo{Version: "test"}})

	observability.ObserveHTTP(http.MethodPut, "/sessions/{sid}/document", 200, 0.004)
	observability.ObserveDocument("http", "load", "ok", 120)
	observability.ObserveDocument("kafka", "append", "invalid", 0)
	observability.ObserveStoreOp("mget", "miss", 0.001)
	observability.IncSeriesCache("altitude", false)
	observability.IncIngest("ok")
	observability.IncViewEvent("dropped")
	observability.SetSessions(3)

	req := httptest.NewRequest(http.MethodGet, p.Path(), nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	mustContain := []string{
		`http_request_duration_seconds_bucket`,
		`store_operation_duration_seconds_count`,
		`document_features_bucket`,
		`sessions_active 3`,
	}
	for _, s := range mustContain {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}

	assertHasMetricLine(t, body, "document_loads_total",
		`source="http"`, `mode="load"`, `outcome="ok"`)
	assertHasMetricLine(t, body, "document_loads_total",
		`source="kafka"`, `outcome="invalid"`)
	assertHasMetricLine(t, body, "series_cache_total", `kind="altitude"`, `outcome="miss"`)
	assertHasMetricLine(t, body, "ingest_messages_total", `outcome="ok"`)
	assertHasMetricLine(t, body, "view_events_total", `outcome="dropped"`)
	assertHasMetricLine(t, body, "viewer_build_info", `version="test"`)
	assertHasMetricLine(t, body, "app_build_info", `version="test"`)
}
