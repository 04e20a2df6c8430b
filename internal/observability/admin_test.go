package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/daqlink/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeStatus struct {
	ready bool
}

func (f *fakeStatus) Ready() bool { return f.ready }
func (f *fakeStatus) Status() any { return map[string]any{"state": "ready", "connected": f.ready} }

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAdminRoutes(t *testing.T) {
	logger := testlog.Start(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	st := &fakeStatus{}
	r := NewAdminRouter(AdminConfig{Component: "daqctl-monitor", Version: "test"}, logger, m, reg, st)

	rec := serve(t, r, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("health code=%d", rec.Code)
	}
	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("health body: %v", err)
	}
	if health["component"] != "daqctl-monitor" || health["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", health)
	}

	if rec := serve(t, r, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready while disconnected code=%d", rec.Code)
	}
	st.ready = true
	if rec := serve(t, r, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("ready code=%d", rec.Code)
	}

	rec = serve(t, r, "/status")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"connected":true`) {
		t.Fatalf("status code=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = serve(t, r, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics code=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `daqlink_http_requests_total{method="GET",path="/health",status="200"} 1`) {
		t.Fatalf("request metric missing from scrape:\n%s", rec.Body.String())
	}

	if rec := serve(t, r, "/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path code=%d", rec.Code)
	}
}
