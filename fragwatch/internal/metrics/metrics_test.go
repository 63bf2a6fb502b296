package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCollector_FetchAttempts(t *testing.T) {
	// WHAT: Fetch attempts are counted per class.
	// WHY: Blocked vs network ratios are the main health signal for acquisition.
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.FetchAttempt("blocked", 100*time.Millisecond)
	c.FetchAttempt("blocked", 200*time.Millisecond)
	c.FetchAttempt("success", 50*time.Millisecond)

	if v := counterValue(t, reg, "fragwatch_fetch_attempts_total", map[string]string{"class": "blocked"}); v != 2 {
		t.Errorf("blocked = %v, want 2", v)
	}
	if v := counterValue(t, reg, "fragwatch_fetch_attempts_total", map[string]string{"class": "success"}); v != 1 {
		t.Errorf("success = %v, want 1", v)
	}
}

func TestCollector_TicksAndRefresh(t *testing.T) {
	// WHAT: Ticks and session refreshes are labelled ok/error.
	// WHY: A failing scheduled delivery must be visible without reading logs.
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.Tick("daily", true)
	c.Tick("daily", false)
	c.SessionRefresh(false, 0)

	if v := counterValue(t, reg, "fragwatch_ticks_total", map[string]string{"trigger": "daily", "result": "error"}); v != 1 {
		t.Errorf("daily error = %v", v)
	}
	if v := counterValue(t, reg, "fragwatch_session_refresh_total", map[string]string{"result": "error"}); v != 1 {
		t.Errorf("refresh error = %v", v)
	}
}

func TestHandler_Exposition(t *testing.T) {
	// WHAT: The handler serves registered metrics in text format.
	// WHY: /metrics is scraped by Prometheus.
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.PlayerCollected(true)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "fragwatch_players_collected_total") {
		t.Errorf("missing metric in exposition:\n%s", body)
	}
}
