// Package dates turns the short, year-less day labels printed on profile
// pages ("Oct 14", "14 October", "Yesterday") into absolute calendar dates.
package dates

import (
	"strconv"
	"strings"
	"time"
)

// MaxLeadDays is how many calendar days past the reference day a resolved
// date may land before it is pushed back one year. Counted in days, not
// hours, so DST transitions do not shift the limit.
const MaxLeadDays = 2

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Resolver resolves labels in a fixed location.
type Resolver struct {
	loc *time.Location
}

// New returns a Resolver for loc. A nil loc means UTC.
func New(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc}
}

// Location returns the resolver's timezone.
func (r *Resolver) Location() *time.Location { return r.loc }

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Resolve returns midnight of the day named by label, in the resolver's
// location. The year is taken from ref; a result more than MaxLeadDays after
// ref's day moves back one year. Unparseable labels return ok=false.
func (r *Resolver) Resolve(label string, ref time.Time) (time.Time, bool) {
	refDay := StartOfDay(ref, r.loc)

	norm := strings.ToLower(strings.TrimSpace(label))
	norm = strings.Trim(norm, " .,")
	switch norm {
	case "":
		return time.Time{}, false
	case "today":
		return refDay, true
	case "yesterday":
		return refDay.AddDate(0, 0, -1), true
	}

	month, day, year, ok := parseLabel(norm)
	if !ok {
		return time.Time{}, false
	}
	if year > 0 {
		d, valid := r.date(year, month, day)
		return d, valid
	}

	limit := refDay.AddDate(0, 0, MaxLeadDays)
	y := refDay.Year()
	d, valid := r.date(y, month, day)
	if !valid || d.After(limit) {
		// Walk back to the nearest year where the day exists and is not
		// ahead of the reference. Feb 29 needs up to eight steps.
		found := false
		for back := 1; back <= 8; back++ {
			d, valid = r.date(y-back, month, day)
			if valid && !d.After(limit) {
				found = true
				break
			}
		}
		if !found {
			return time.Time{}, false
		}
	}
	return d, true
}

func (r *Resolver) date(year int, month time.Month, day int) (time.Time, bool) {
	d := time.Date(year, month, day, 0, 0, 0, 0, r.loc)
	if d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// parseLabel accepts "mon d", "month d", "d mon", with optional ordinal
// suffixes and an optional trailing four-digit year.
func parseLabel(s string) (time.Month, int, int, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '\t'
	})
	if len(fields) < 2 || len(fields) > 3 {
		return 0, 0, 0, false
	}

	year := 0
	if len(fields) == 3 {
		y, err := strconv.Atoi(fields[2])
		if err != nil || y < 1000 || y > 9999 {
			return 0, 0, 0, false
		}
		year = y
	}

	if m, ok := monthOf(fields[0]); ok {
		if d, ok := dayOf(fields[1]); ok {
			return m, d, year, true
		}
		return 0, 0, 0, false
	}
	if m, ok := monthOf(fields[1]); ok {
		if d, ok := dayOf(fields[0]); ok {
			return m, d, year, true
		}
	}
	return 0, 0, 0, false
}

func monthOf(s string) (time.Month, bool) {
	if len(s) < 3 {
		return 0, false
	}
	m, ok := months[s[:3]]
	if !ok {
		return 0, false
	}
	// Reject things like "marble": the token must be a prefix of the full name.
	if !strings.HasPrefix(strings.ToLower(m.String()), s) {
		return 0, false
	}
	return m, true
}

func dayOf(s string) (int, bool) {
	for _, suf := range []string{"st", "nd", "rd", "th"} {
		if strings.HasSuffix(s, suf) {
			s = strings.TrimSuffix(s, suf)
			break
		}
	}
	d, err := strconv.Atoi(s)
	if err != nil || d < 1 || d > 31 {
		return 0, false
	}
	return d, true
}
