package stats

import (
	"math"
	"sort"
)

// Metric is a rankable figure.
type Metric string

const (
	MetricKills       Metric = "kills"
	MetricDeaths      Metric = "deaths"
	MetricKD          Metric = "kd"
	MetricHeadshotPct Metric = "headshot_pct"
	MetricWins        Metric = "wins"
)

// Metrics lists every metric in display order.
var Metrics = []Metric{MetricKills, MetricDeaths, MetricKD, MetricHeadshotPct, MetricWins}

// DefaultTopN is the leaderboard length.
const DefaultTopN = 5

// Value extracts m from s.
func (m Metric) Value(s Summary) float64 {
	switch m {
	case MetricKills:
		return float64(s.Kills)
	case MetricDeaths:
		return float64(s.Deaths)
	case MetricKD:
		return float64(s.KD)
	case MetricHeadshotPct:
		return s.HeadshotPct
	case MetricWins:
		return float64(s.Wins)
	}
	return math.NaN()
}

// Result is one player's collection outcome. A non-nil Err excludes the
// player from every leaderboard.
type Result struct {
	Player  string
	Summary Summary
	Err     error
}

// Entry is one leaderboard row.
type Entry struct {
	Player string  `json:"player"`
	Value  float64 `json:"value"`
}

// Rankings holds one leaderboard per metric.
type Rankings struct {
	Boards     map[Metric][]Entry `json:"boards"`
	Considered int                `json:"considered"`
	Failed     []string           `json:"failed,omitempty"`
}

// RankOptions tunes BuildRankings.
type RankOptions struct {
	TopN int
}

// BuildRankings sorts successful results per metric, descending. Ties break
// on kills descending, then player name ascending, so the order is total and
// repeatable. Non-finite values (kd with no deaths) are left off that board.
func BuildRankings(results []Result, opts RankOptions) Rankings {
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	r := Rankings{Boards: make(map[Metric][]Entry, len(Metrics))}
	ok := make([]Result, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			r.Failed = append(r.Failed, res.Player)
			continue
		}
		ok = append(ok, res)
	}
	r.Considered = len(ok)

	for _, m := range Metrics {
		type row struct {
			player string
			value  float64
			kills  int
		}
		rows := make([]row, 0, len(ok))
		for _, res := range ok {
			v := m.Value(res.Summary)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			rows = append(rows, row{res.Player, v, res.Summary.Kills})
		}
		sort.Slice(rows, func(i, j int) bool {
			a, b := rows[i], rows[j]
			if a.value != b.value {
				return a.value > b.value
			}
			if a.kills != b.kills {
				return a.kills > b.kills
			}
			return a.player < b.player
		})
		if len(rows) > topN {
			rows = rows[:topN]
		}
		board := make([]Entry, len(rows))
		for i, x := range rows {
			board[i] = Entry{Player: x.player, Value: x.value}
		}
		r.Boards[m] = board
	}
	return r
}
