// Package metrics exposes Prometheus counters for acquisition, session
// refresh and scheduled ticks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is implemented by Collector and Nop.
type Recorder interface {
	FetchAttempt(class string, d time.Duration)
	SessionRefresh(ok bool, d time.Duration)
	PlayerCollected(ok bool)
	Tick(trigger string, ok bool)
	Delivery(sink string, ok bool)
}

// Collector records into a Prometheus registry.
type Collector struct {
	fetchAttempts  *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	sessionRefresh *prometheus.CounterVec
	refreshLatency prometheus.Histogram
	players        *prometheus.CounterVec
	ticks          *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fragwatch_fetch_attempts_total",
			Help: "Profile fetch attempts by outcome class.",
		}, []string{"class"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fragwatch_fetch_latency_seconds",
			Help:    "Latency of a single profile fetch attempt.",
			Buckets: prometheus.DefBuckets,
		}),
		sessionRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fragwatch_session_refresh_total",
			Help: "Session refreshes by result.",
		}, []string{"result"}),
		refreshLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fragwatch_session_refresh_seconds",
			Help:    "Duration of a browser-driven session refresh.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
		players: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fragwatch_players_collected_total",
			Help: "Per-player collections by result.",
		}, []string{"result"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fragwatch_ticks_total",
			Help: "Scheduled ticks by trigger and result.",
		}, []string{"trigger", "result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fragwatch_deliveries_total",
			Help: "Payload deliveries by sink and result.",
		}, []string{"sink", "result"}),
	}

	reg.MustRegister(
		c.fetchAttempts,
		c.fetchLatency,
		c.sessionRefresh,
		c.refreshLatency,
		c.players,
		c.ticks,
		c.deliveries,
	)
	return c
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// FetchAttempt records one fetch attempt and its latency.
func (c *Collector) FetchAttempt(class string, d time.Duration) {
	c.fetchAttempts.WithLabelValues(class).Inc()
	c.fetchLatency.Observe(d.Seconds())
}

// SessionRefresh records a refresh outcome.
func (c *Collector) SessionRefresh(ok bool, d time.Duration) {
	c.sessionRefresh.WithLabelValues(result(ok)).Inc()
	if d > 0 {
		c.refreshLatency.Observe(d.Seconds())
	}
}

// PlayerCollected records a per-player collection outcome.
func (c *Collector) PlayerCollected(ok bool) {
	c.players.WithLabelValues(result(ok)).Inc()
}

// Tick records a scheduled tick outcome.
func (c *Collector) Tick(trigger string, ok bool) {
	c.ticks.WithLabelValues(trigger, result(ok)).Inc()
}

// Delivery records a sink delivery outcome.
func (c *Collector) Delivery(sink string, ok bool) {
	c.deliveries.WithLabelValues(sink, result(ok)).Inc()
}

// Handler serves the registry for scraping.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) FetchAttempt(string, time.Duration) {}
func (Nop) SessionRefresh(bool, time.Duration) {}
func (Nop) PlayerCollected(bool) {}
func (Nop) Tick(string, bool) {}
func (Nop) Delivery(string, bool) {}
