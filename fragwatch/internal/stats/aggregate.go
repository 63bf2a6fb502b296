// Package stats reduces daily blocks into windowed summaries and ranks
// players per metric.
package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/extract"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/window"
)

// Ratio is a kill/death ratio. +Inf means kills without deaths and
// serialises as "inf".
type Ratio float64

// Inf is the no-deaths sentinel.
var Inf = Ratio(math.Inf(1))

// IsInf reports whether r is the sentinel.
func (r Ratio) IsInf() bool { return math.IsInf(float64(r), 1) }

func (r Ratio) String() string {
	if r.IsInf() {
		return "inf"
	}
	return strconv.FormatFloat(float64(r), 'f', 2, 64)
}

// MarshalJSON writes the sentinel as the string "inf".
func (r Ratio) MarshalJSON() ([]byte, error) {
	if r.IsInf() {
		return []byte(`"inf"`), nil
	}
	if math.IsNaN(float64(r)) {
		return []byte("0"), nil
	}
	return []byte(strconv.FormatFloat(float64(r), 'f', -1, 64)), nil
}

// UnmarshalJSON accepts numbers and "inf".
func (r *Ratio) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "inf" {
			*r = Inf
			return nil
		}
		return fmt.Errorf("stats: invalid ratio %q", s)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// Summary is a player's figures over one window.
type Summary struct {
	Matches     int     `json:"matches"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Kills       int     `json:"kills"`
	Deaths      int     `json:"deaths"`
	KD          Ratio   `json:"kd"`
	HeadshotPct float64 `json:"headshot_pct"`
	DaysCovered int     `json:"days_covered"`
	DaysPlayed  int     `json:"days_played"`
}

// AggregateOptions tunes Aggregate.
type AggregateOptions struct {
	// CountEmptyDays counts in-window days with no matches in DaysCovered.
	CountEmptyDays bool
}

// DefaultAggregateOptions counts empty days.
var DefaultAggregateOptions = AggregateOptions{CountEmptyDays: true}

// Aggregate sums the blocks inside w. It is pure.
func Aggregate(blocks []extract.DailyBlock, w window.Window, opts AggregateOptions) Summary {
	var (
		s       Summary
		hsKills float64
	)
	for _, b := range blocks {
		if !w.Contains(b.Date) {
			continue
		}
		played := b.Matches > 0 || b.Wins+b.Losses > 0 || b.Kills > 0 || b.Deaths > 0
		if played {
			s.DaysPlayed++
		}
		if played || opts.CountEmptyDays {
			s.DaysCovered++
		}
		s.Matches += b.Matches
		s.Wins += b.Wins
		s.Losses += b.Losses
		s.Kills += b.Kills
		s.Deaths += b.Deaths
		hsKills += b.HeadshotPct / 100 * float64(b.Kills)
	}

	switch {
	case s.Deaths > 0:
		s.KD = Ratio(float64(s.Kills) / float64(s.Deaths))
	case s.Kills > 0:
		s.KD = Inf
	}
	if s.Kills > 0 {
		s.HeadshotPct = hsKills / float64(s.Kills) * 100
	}
	return s
}

// WinRate returns wins over decided matches in percent, or 0.
func (s Summary) WinRate() float64 {
	if s.Wins+s.Losses == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Wins+s.Losses) * 100
}
