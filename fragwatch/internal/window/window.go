// Package window computes the inclusive day ranges that stats are aggregated
// over: rolling windows anchored on now, and canonical calendar windows.
package window

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/dates"
)

// Kind names a window shape.
type Kind string

const (
	Today         Kind = "today"
	Rolling7      Kind = "rolling7"
	Rolling30     Kind = "rolling30"
	Yesterday     Kind = "yesterday"
	PreviousWeek  Kind = "previous_week"
	PreviousMonth Kind = "previous_month"
)

// ErrUnknownKind rejects a window name ParseKind does not know.
var ErrUnknownKind = errors.New("window: unknown kind")

// Kinds lists every supported kind in display order.
var Kinds = []Kind{Today, Yesterday, Rolling7, Rolling30, PreviousWeek, PreviousMonth}

var aliases = map[string]Kind{
	"today":          Today,
	"day":            Today,
	"yesterday":      Yesterday,
	"rolling7":       Rolling7,
	"7d":             Rolling7,
	"week7":          Rolling7,
	"rolling30":      Rolling30,
	"30d":            Rolling30,
	"previous_week":  PreviousWeek,
	"previousweek":   PreviousWeek,
	"last_week":      PreviousWeek,
	"week":           PreviousWeek,
	"previous_month": PreviousMonth,
	"previousmonth":  PreviousMonth,
	"last_month":     PreviousMonth,
	"month":          PreviousMonth,
}

// ParseKind maps a user-supplied window name to a Kind. Empty means Today.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Today, nil
	}
	s = strings.ReplaceAll(s, "-", "_")
	if k, ok := aliases[s]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownKind, s)
}

// Window is an inclusive range of whole days. Start is midnight of the first
// day, End is the last instant of the last day.
type Window struct {
	Kind  Kind      `json:"kind"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Resolve computes the window of kind k around now in loc.
func Resolve(k Kind, now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	today := dates.StartOfDay(now, loc)

	var first, last time.Time
	switch k {
	case Rolling7:
		first, last = today.AddDate(0, 0, -6), today
	case Rolling30:
		first, last = today.AddDate(0, 0, -29), today
	case Yesterday:
		first = today.AddDate(0, 0, -1)
		last = first
	case PreviousWeek:
		// ISO weeks start on Monday.
		offset := (int(today.Weekday()) + 6) % 7
		monday := today.AddDate(0, 0, -offset)
		first, last = monday.AddDate(0, 0, -7), monday.AddDate(0, 0, -1)
	case PreviousMonth:
		thisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		first, last = thisMonth.AddDate(0, -1, 0), thisMonth.AddDate(0, 0, -1)
	default:
		k = Today
		first, last = today, today
	}
	return Window{Kind: k, Start: first, End: endOfDay(last)}
}

func endOfDay(d time.Time) time.Time {
	return d.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Contains reports whether the day holding t is inside the window. Any
// instant on the boundary days counts.
func (w Window) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	d := dates.StartOfDay(t, w.Start.Location())
	return !d.Before(w.Start) && !d.After(w.End)
}

// Days returns the number of calendar days in the window.
func (w Window) Days() int {
	n := 0
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// Label renders the window for humans, e.g. "Previous week (Oct 6 - Oct 12)".
func (w Window) Label() string {
	const layout = "Jan 2"
	span := w.Start.Format(layout)
	if w.Start.Year() != w.End.Year() || w.Start.YearDay() != w.End.YearDay() {
		span += " - " + w.End.Format(layout)
	}
	var name string
	switch w.Kind {
	case Today:
		name = "Today"
	case Yesterday:
		name = "Yesterday"
	case Rolling7:
		name = "Last 7 days"
	case Rolling30:
		name = "Last 30 days"
	case PreviousWeek:
		name = "Previous week"
	case PreviousMonth:
		name = "Previous month"
	default:
		name = string(w.Kind)
	}
	return fmt.Sprintf("%s (%s)", name, span)
}
