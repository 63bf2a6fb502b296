// Package sink delivers player reports and group rankings to their
// destinations: a terminal table, a JSON webhook or a Discord channel.
//
// Payloads are plain structs; each sink renders them its own way.
//
//	r := sink.NewRouter(logger, rec)
//	r.Add("stdout", sink.NewStdout(os.Stdout, sink.StdoutConfig{}))
//	r.Add("discord", discord)
//	err := r.DeliverRanking(ctx, payload)
package sink

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/stats"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/window"
)

// Sink is a delivery destination.
type Sink interface {
	DeliverPlayer(ctx context.Context, p PlayerPayload) error
	DeliverRanking(ctx context.Context, p RankingPayload) error
	Close() error
}

// Failure names a player whose collection failed and why.
type Failure struct {
	Player string `json:"player"`
	Reason string `json:"reason"`
	// Err is the underlying error; it is never serialised since it may
	// carry unsanitised remote text.
	Err error `json:"-"`
}

// PlayerPayload is one player's summary over one window.
type PlayerPayload struct {
	GroupID    string        `json:"group_id"`
	ChannelRef string        `json:"channel_ref,omitempty"`
	Player     string        `json:"player"`
	SourceURL  string        `json:"source_url,omitempty"`
	Window     window.Window `json:"window"`
	Summary    stats.Summary `json:"summary"`
}

// PlayerLine is one row of a group report.
type PlayerLine struct {
	Player  string        `json:"player"`
	Summary stats.Summary `json:"summary"`
}

// RankingPayload is a group's leaderboards over one window.
type RankingPayload struct {
	RunID      string         `json:"run_id,omitempty"`
	GroupID    string         `json:"group_id"`
	ChannelRef string         `json:"channel_ref,omitempty"`
	Trigger    string         `json:"trigger,omitempty"`
	Window     window.Window  `json:"window"`
	Rankings   stats.Rankings `json:"rankings"`
	Players    []PlayerLine   `json:"players,omitempty"`
	Failures   []Failure      `json:"failures,omitempty"`
}

// SendError reports a failed delivery on one sink.
type SendError struct {
	Sink  string
	Cause error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sink: send failed on %s: %v", e.Sink, e.Cause)
}

func (e *SendError) Unwrap() error { return e.Cause }

// FormatValue renders a leaderboard value for humans.
func FormatValue(m stats.Metric, v float64) string {
	switch m {
	case stats.MetricKD:
		return stats.Ratio(v).String()
	case stats.MetricHeadshotPct:
		return strconv.FormatFloat(v, 'f', 1, 64) + "%"
	default:
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
}

// MetricTitle is the display name of m.
func MetricTitle(m stats.Metric) string {
	switch m {
	case stats.MetricKills:
		return "Kills"
	case stats.MetricDeaths:
		return "Deaths"
	case stats.MetricKD:
		return "K/D"
	case stats.MetricHeadshotPct:
		return "Headshot %"
	case stats.MetricWins:
		return "Wins"
	}
	return string(m)
}
