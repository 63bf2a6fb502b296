package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors are CSS selectors for one layout. Empty fields take the layout's
// defaults.
type Selectors struct {
	Section   string `yaml:"section"`
	Label     string `yaml:"label"`
	Row       string `yaml:"row"`
	Stat      string `yaml:"stat"`
	StatLabel string `yaml:"stat_label"`
	StatValue string `yaml:"stat_value"`
	WinClass  string `yaml:"win_class"`
	LossClass string `yaml:"loss_class"`
}

func (s Selectors) withDefaults(d Selectors) Selectors {
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return Selectors{
		Section:   pick(s.Section, d.Section),
		Label:     pick(s.Label, d.Label),
		Row:       pick(s.Row, d.Row),
		Stat:      pick(s.Stat, d.Stat),
		StatLabel: pick(s.StatLabel, d.StatLabel),
		StatValue: pick(s.StatValue, d.StatValue),
		WinClass:  pick(s.WinClass, d.WinClass),
		LossClass: pick(s.LossClass, d.LossClass),
	}
}

// MatchesLayout reads v1 pages: day groups of per-match rows.
type MatchesLayout struct{ sel Selectors }

// NewMatchesLayout creates the per-match layout.
func NewMatchesLayout(sel Selectors) *MatchesLayout {
	return &MatchesLayout{sel: sel.withDefaults(Selectors{
		Section:   ".trn-gamereport-list__group",
		Label:     ".trn-gamereport-list__title",
		Row:       ".match-row",
		Stat:      ".stat",
		StatLabel: ".stat__label",
		StatValue: ".stat__value",
		WinClass:  "match-row--win",
		LossClass: "match-row--loss",
	})}
}

func (l *MatchesLayout) Name() string { return "matches-v1" }

func (l *MatchesLayout) Sections(doc *goquery.Document) []Section {
	var out []Section
	doc.Find(l.sel.Section).Each(func(_ int, g *goquery.Selection) {
		s := Section{Label: cleanLabel(g.Find(l.sel.Label).First().Text())}
		g.Find(l.sel.Row).Each(func(_ int, row *goquery.Selection) {
			m := Match{Result: rowResult(row, l.sel)}
			stats := readStats(row, l.sel)
			m.Kills = stats.Kills
			m.Deaths = stats.Deaths
			m.HeadshotPct = stats.HeadshotPct
			if m.Result == ResultUnknown {
				m.Result = stats.result
			}
			s.Matches = append(s.Matches, m)
		})
		out = append(out, s)
	})
	return out
}

// SummaryLayout reads v2 pages: one card of totals per day.
type SummaryLayout struct{ sel Selectors }

// NewSummaryLayout creates the per-day summary layout.
func NewSummaryLayout(sel Selectors) *SummaryLayout {
	return &SummaryLayout{sel: sel.withDefaults(Selectors{
		Section:   ".daily-summary",
		Label:     ".daily-summary__date",
		Stat:      ".stat",
		StatLabel: ".stat__label",
		StatValue: ".stat__value",
	})}
}

func (l *SummaryLayout) Name() string { return "summary-v2" }

func (l *SummaryLayout) Sections(doc *goquery.Document) []Section {
	var out []Section
	doc.Find(l.sel.Section).Each(func(_ int, card *goquery.Selection) {
		st := readStats(card, l.sel)
		t := st.Totals
		out = append(out, Section{
			Label:  cleanLabel(card.Find(l.sel.Label).First().Text()),
			Totals: &t,
		})
	})
	return out
}

type statSet struct {
	Totals
	result Result
}

// readStats maps labelled stat cells under sel onto figures. Unknown labels
// are ignored.
func readStats(sel *goquery.Selection, s Selectors) statSet {
	var st statSet
	sel.Find(s.Stat).Each(func(_ int, cell *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(cell.Find(s.StatLabel).First().Text()))
		value := strings.TrimSpace(cell.Find(s.StatValue).First().Text())
		if label == "" {
			label = strings.ToLower(strings.TrimSpace(cell.AttrOr("data-stat", "")))
		}
		switch label {
		case "kills", "k":
			st.Kills = parseInt(value)
		case "deaths", "d":
			st.Deaths = parseInt(value)
		case "hs%", "hs %", "hs", "headshot %", "headshot%", "headshots %", "headshot pct":
			st.HeadshotPct = parseFloat(value)
		case "wins", "w":
			st.Wins = parseInt(value)
		case "losses", "l":
			st.Losses = parseInt(value)
		case "matches", "played":
			st.Matches = parseInt(value)
		case "k/d/a", "k / d / a", "kda":
			parts := strings.Split(value, "/")
			if len(parts) >= 2 {
				st.Kills = parseInt(parts[0])
				st.Deaths = parseInt(parts[1])
			}
		case "result", "outcome":
			st.result = parseResult(value)
		}
	})
	return st
}

func rowResult(row *goquery.Selection, s Selectors) Result {
	switch {
	case s.WinClass != "" && row.HasClass(s.WinClass):
		return ResultWin
	case s.LossClass != "" && row.HasClass(s.LossClass):
		return ResultLoss
	}
	if v, ok := row.Attr("data-result"); ok {
		return parseResult(v)
	}
	return ResultUnknown
}

func parseResult(s string) Result {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "win", "w", "victory", "won":
		return ResultWin
	case "loss", "l", "defeat", "lost":
		return ResultLoss
	case "tie", "t", "draw":
		return ResultTie
	}
	return ResultUnknown
}
