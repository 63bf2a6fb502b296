package fragwatch

import (
	"github.com/hazyhaar/fragwatch/fragwatch/internal/extract"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/schedule"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/sink"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/stats"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/store"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/window"
)

// Re-exported types so callers need not import internal packages.
type (
	Player     = store.Player
	Schedule   = store.Schedule
	Summary    = stats.Summary
	Rankings   = stats.Rankings
	Metric     = stats.Metric
	Window     = window.Window
	WindowKind = window.Kind
	Trigger    = schedule.Trigger
	DailyBlock = extract.DailyBlock
	Failure    = sink.Failure
)

const (
	Today         = window.Today
	Yesterday     = window.Yesterday
	Rolling7      = window.Rolling7
	Rolling30     = window.Rolling30
	PreviousWeek  = window.PreviousWeek
	PreviousMonth = window.PreviousMonth

	Daily   = schedule.Daily
	Weekly  = schedule.Weekly
	Monthly = schedule.Monthly
)

// ParseWindow accepts a window name or one of its aliases ("7d", "week", ...).
func ParseWindow(s string) (WindowKind, error) { return window.ParseKind(s) }

// ParseTrigger maps "daily", "weekly" or "monthly" to a Trigger.
func ParseTrigger(s string) (Trigger, error) {
	for _, t := range schedule.Triggers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "trigger", Value: s, Reason: "want daily, weekly or monthly"}
}

// PlayerRef identifies a player to collect. Platform is an optional hint.
type PlayerRef struct {
	GroupID  string `json:"group_id,omitempty"`
	Username string `json:"username"`
	Platform string `json:"platform,omitempty"`
}

// PlayerReport is one player's summary over one window.
type PlayerReport struct {
	Player    string       `json:"player"`
	Platform  string       `json:"platform,omitempty"`
	SourceURL string       `json:"source_url"`
	Window    Window       `json:"window"`
	Summary   Summary      `json:"summary"`
	Days      []DailyBlock `json:"days,omitempty"`
}

// Payload converts the report for delivery.
func (r *PlayerReport) Payload(groupID, channelRef string) sink.PlayerPayload {
	return sink.PlayerPayload{
		GroupID:    groupID,
		ChannelRef: channelRef,
		Player:     r.Player,
		SourceURL:  r.SourceURL,
		Window:     r.Window,
		Summary:    r.Summary,
	}
}

// GroupReport is a group's collection over one window. Failures lists every
// player whose collection failed; they are absent from Results.
type GroupReport struct {
	GroupID  string          `json:"group_id"`
	Window   Window          `json:"window"`
	Results  []*PlayerReport `json:"results"`
	Failures []Failure       `json:"failures,omitempty"`
}

// Outcomes flattens the report into ranking input, failures included.
func (g *GroupReport) Outcomes() []stats.Result {
	out := make([]stats.Result, 0, len(g.Results)+len(g.Failures))
	for _, r := range g.Results {
		out = append(out, stats.Result{Player: r.Player, Summary: r.Summary})
	}
	for _, f := range g.Failures {
		out = append(out, stats.Result{Player: f.Player, Err: &CollectError{Player: f.Player, Reason: f.Reason, Cause: f.Err}})
	}
	return out
}

// Lines lists each collected player's summary in collection order.
func (g *GroupReport) Lines() []sink.PlayerLine {
	out := make([]sink.PlayerLine, 0, len(g.Results))
	for _, r := range g.Results {
		out = append(out, sink.PlayerLine{Player: r.Player, Summary: r.Summary})
	}
	return out
}

// RankingReport is a group's leaderboards with the report they came from.
type RankingReport struct {
	GroupID  string    `json:"group_id"`
	Window   Window    `json:"window"`
	Rankings Rankings  `json:"rankings"`
	Failures []Failure `json:"failures,omitempty"`
}
