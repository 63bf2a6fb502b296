package fragwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/metrics"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/store"
)

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestHTTP_PlayersAndRankings(t *testing.T) {
	// WHAT: Players are managed and ranked over JSON.
	// WHY: The HTTP surface is how external frontends drive the service.
	f := newFakeFetcher()
	f.pages["amy"] = profilePage(30, 10, 50)
	f.pages["bob"] = profilePage(12, 12, 20)
	svc := newTestService(t, f, nil)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	for _, u := range []string{"amy", "bob"} {
		resp, body := do(t, srv, http.MethodPost, "/groups/g1/players", `{"username":"`+u+`"}`)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("add %s: %d %s", u, resp.StatusCode, body)
		}
	}
	if resp, _ := do(t, srv, http.MethodPost, "/groups/g1/players", `{"username":"amy"}`); resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate: %d", resp.StatusCode)
	}

	resp, body := do(t, srv, http.MethodGet, "/groups/g1/players", "")
	var players []Player
	json.Unmarshal(body, &players)
	if resp.StatusCode != http.StatusOK || len(players) != 2 {
		t.Fatalf("list: %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodGet, "/groups/g1/rankings?window=today", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rankings: %d %s", resp.StatusCode, body)
	}
	var rk RankingReport
	if err := json.Unmarshal(body, &rk); err != nil {
		t.Fatal(err)
	}
	if rk.Rankings.Considered != 2 || rk.Rankings.Boards["kills"][0].Player != "amy" {
		t.Errorf("rankings = %+v", rk.Rankings)
	}

	resp, body = do(t, srv, http.MethodGet, "/groups/g1/players/amy/stats?window=7d", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"kills":30`) {
		t.Errorf("player stats: %d %s", resp.StatusCode, body)
	}

	if resp, _ := do(t, srv, http.MethodDelete, "/groups/g1/players/bob", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("remove: %d", resp.StatusCode)
	}
	if resp, _ := do(t, srv, http.MethodDelete, "/groups/g1/players/bob", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("remove again: %d", resp.StatusCode)
	}
}

func TestHTTP_ErrorMapping(t *testing.T) {
	// WHAT: Bad input is 400, blocked fetches are 502.
	// WHY: Callers must tell their mistakes apart from the site's defences.
	f := newFakeFetcher()
	f.errs["neo"] = blockedErr("Just a moment...")
	svc := newTestService(t, f, nil)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/groups/g1/stats?window=fortnight", "", http.StatusBadRequest},
		{http.MethodGet, "/groups/g1/players/neo/stats", "", http.StatusBadGateway},
		{http.MethodPost, "/groups/g1/players", `{"username":""}`, http.StatusBadRequest},
		{http.MethodPost, "/groups/g1/players", `not json`, http.StatusBadRequest},
		{http.MethodPut, "/groups/g1/schedule", `{"channel_ref":"c","time_of_day":"9:00"}`, http.StatusBadRequest},
		{http.MethodGet, "/groups/g1/schedule", "", http.StatusNotFound},
		{http.MethodPost, "/groups/g1/run?trigger=hourly", "", http.StatusBadRequest},
		{http.MethodPost, "/groups/g1/run", "", http.StatusNotFound},
	}
	for _, c := range cases {
		resp, body := do(t, srv, c.method, c.path, c.body)
		if resp.StatusCode != c.want {
			t.Errorf("%s %s: %d want %d (%s)", c.method, c.path, resp.StatusCode, c.want, body)
		}
	}
}

func TestHTTP_ScheduleLifecycle(t *testing.T) {
	svc := newTestService(t, newFakeFetcher(), nil)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	resp, body := do(t, srv, http.MethodPut, "/groups/g1/schedule", `{"channel_ref":"c1","time_of_day":"21:30"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put: %d %s", resp.StatusCode, body)
	}
	var st ScheduleStatus
	json.Unmarshal(body, &st)
	if st.State != "scheduled" || st.Schedule.TimeOfDay != "21:30" || len(st.Next) != 3 {
		t.Errorf("status = %+v", st)
	}

	for i := 0; i < 2; i++ {
		if resp, _ := do(t, srv, http.MethodDelete, "/groups/g1/schedule", ""); resp.StatusCode != http.StatusNoContent {
			t.Errorf("delete %d: %d", i, resp.StatusCode)
		}
	}
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	svc := newTestService(t, newFakeFetcher(), nil)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	if resp, _ := do(t, srv, http.MethodGet, "/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: %d", resp.StatusCode)
	}
	if resp, _ := do(t, srv, http.MethodGet, "/metrics", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("metrics: %d", resp.StatusCode)
	}
}

func TestHTTP_CollectionThrottled(t *testing.T) {
	// WHAT: Collection routes answer 429 past the per-client burst; management routes do not.
	// WHY: Each collection queues remote fetches behind the single acquisition lock.
	f := newFakeFetcher()
	f.pages["neo"] = profilePage(1, 1, 0)
	cfg := DefaultConfig()
	cfg.Acquisition.InterPlayerDelay = 0
	cfg.Delivery.Stdout = false
	cfg.HTTP.CollectPerMinute = 1
	cfg.HTTP.CollectBurst = 2
	svc, err := New(cfg, WithLogger(quiet), WithStore(store.OpenMemory(t)), WithFetcher(f),
		WithSink(&recordSink{}), WithMetrics(metrics.Nop{}, nil), WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close(context.Background())
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	var codes []int
	for i := 0; i < 3; i++ {
		resp, _ := do(t, srv, http.MethodGet, "/groups/g1/players/neo/stats", "")
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
	if resp, _ := do(t, srv, http.MethodGet, "/groups/g1/players", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("players list throttled: %d", resp.StatusCode)
	}
}
