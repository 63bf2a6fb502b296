package dates

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolve_SameYear(t *testing.T) {
	// WHAT: A label earlier in the reference year keeps the reference year.
	// WHY: The common case for recent match history.
	r := New(time.UTC)
	got, ok := r.Resolve("Oct 14", time.Date(2025, 10, 20, 15, 0, 0, 0, time.UTC))
	if !ok {
		t.Fatal("expected ok")
	}
	if !got.Equal(day(2025, time.October, 14)) {
		t.Errorf("got %v", got)
	}
}

func TestResolve_DecemberSeenInJanuary(t *testing.T) {
	// WHAT: "Dec 30" observed on Jan 2 resolves to the previous year.
	// WHY: Year-boundary disambiguation; otherwise the block lands 11 months ahead.
	r := New(time.UTC)
	got, ok := r.Resolve("Dec 30", time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC))
	if !ok {
		t.Fatal("expected ok")
	}
	if !got.Equal(day(2025, time.December, 30)) {
		t.Errorf("got %v", got)
	}
}

func TestResolve_WithinLeadKeepsYear(t *testing.T) {
	// WHAT: A date up to two days ahead of the reference is kept as is.
	// WHY: Timezone skew between the site and us can put "tomorrow" on the page.
	r := New(time.UTC)
	ref := time.Date(2025, 12, 30, 23, 0, 0, 0, time.UTC)
	got, ok := r.Resolve("Jan 1", ref)
	if !ok {
		t.Fatal("expected ok")
	}
	if !got.Equal(day(2025, time.January, 1)) {
		t.Errorf("got %v", got)
	}

	got, ok = r.Resolve("Dec 31", ref)
	if !ok || !got.Equal(day(2025, time.December, 31)) {
		t.Errorf("got %v ok=%v", got, ok)
	}
}

func TestResolve_NeverMoreThanTwoDaysAhead(t *testing.T) {
	// WHAT: For every day of the year, the resolution is never >2 days after ref.
	// WHY: Core invariant of the resolver.
	r := New(time.UTC)
	refs := []time.Time{
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 28, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 15, 23, 59, 0, 0, time.UTC),
		time.Date(2025, 12, 31, 6, 0, 0, 0, time.UTC),
	}
	for _, ref := range refs {
		for d := day(2024, 1, 1); d.Year() == 2024; d = d.AddDate(0, 0, 1) {
			label := d.Format("Jan 2")
			got, ok := r.Resolve(label, ref)
			if !ok {
				t.Fatalf("label %q ref %v: not ok", label, ref)
			}
			if got.After(StartOfDay(ref, time.UTC).AddDate(0, 0, MaxLeadDays)) {
				t.Fatalf("label %q ref %v: got %v, too far ahead", label, ref, got)
			}
		}
	}
}

func TestResolve_Formats(t *testing.T) {
	// WHAT: Accepted label variants all resolve to the same day.
	// WHY: The markup has used several date styles over time.
	r := New(time.UTC)
	ref := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	want := day(2025, time.October, 3)
	for _, label := range []string{"Oct 3", "oct 3", "October 3", "Oct 3rd", "3 Oct", "3rd October", " Oct 3, ", "Oct. 3", "Oct 3, 2025"} {
		got, ok := r.Resolve(label, ref)
		if !ok || !got.Equal(want) {
			t.Errorf("%q: got %v ok=%v", label, got, ok)
		}
	}
}

func TestResolve_Relative(t *testing.T) {
	// WHAT: "Today" and "Yesterday" resolve against ref in the configured zone.
	// WHY: The page prints relative labels for the two most recent days.
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	r := New(loc)
	// 23:30 UTC is already the next day in Paris.
	ref := time.Date(2025, 6, 10, 23, 30, 0, 0, time.UTC)
	got, ok := r.Resolve("Today", ref)
	if !ok || !got.Equal(time.Date(2025, 6, 11, 0, 0, 0, 0, loc)) {
		t.Errorf("today: got %v", got)
	}
	got, ok = r.Resolve("yesterday", ref)
	if !ok || !got.Equal(time.Date(2025, 6, 10, 0, 0, 0, 0, loc)) {
		t.Errorf("yesterday: got %v", got)
	}
}

func TestResolve_LeapDay(t *testing.T) {
	// WHAT: Feb 29 in a non-leap reference year falls back to the last leap year.
	// WHY: time.Date would silently normalise to Mar 1.
	r := New(time.UTC)
	got, ok := r.Resolve("Feb 29", time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC))
	if !ok || !got.Equal(day(2024, time.February, 29)) {
		t.Errorf("got %v ok=%v", got, ok)
	}
}

func TestResolve_Unparseable(t *testing.T) {
	// WHAT: Garbage labels return ok=false without panicking.
	// WHY: Section headers drift; bad labels must be skipped, not fatal.
	r := New(time.UTC)
	ref := time.Now()
	for _, label := range []string{"", "Matches", "Oct", "Oct 32", "Foo 3", "Marble 3", "31 Feb", "3/10", "Oct 3 99"} {
		if got, ok := r.Resolve(label, ref); ok {
			t.Errorf("%q: expected failure, got %v", label, got)
		}
	}
}

func TestResolve_LeadAcrossDSTFallBack(t *testing.T) {
	// WHAT: A label two days ahead keeps the current year across a 25-hour day.
	// WHY: The lead limit is in calendar days; wall-clock hours would push Nov 3 into last year.
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata: %v", err)
	}
	r := New(ny)
	ref := time.Date(2025, 11, 1, 12, 0, 0, 0, ny)
	got, ok := r.Resolve("Nov 3", ref)
	if !ok || !got.Equal(time.Date(2025, 11, 3, 0, 0, 0, 0, ny)) {
		t.Errorf("Nov 3 = %v, %v", got, ok)
	}
	if got, _ := r.Resolve("Nov 4", ref); got.Year() != 2024 {
		t.Errorf("Nov 4 = %v, want previous year", got)
	}
	spring := time.Date(2025, 3, 8, 12, 0, 0, 0, ny)
	if got, _ := r.Resolve("Mar 10", spring); got.Year() != 2025 {
		t.Errorf("Mar 10 = %v", got)
	}
}
