// Package extract parses profile pages into per-day stat blocks.
//
// Markup is versioned behind Layout: each implementation knows one page
// shape. Anything missing degrades to zeros; nothing here returns an error
// for bad markup.
package extract

import (
	"bytes"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/dates"
)

// DailyBlock is one calendar day of figures for one player.
type DailyBlock struct {
	Label       string    `json:"label"`
	Date        time.Time `json:"date"`
	Matches     int       `json:"matches"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Kills       int       `json:"kills"`
	Deaths      int       `json:"deaths"`
	HeadshotPct float64   `json:"headshot_pct"`
}

// Match is one per-match row.
type Match struct {
	Result      Result
	Kills       int
	Deaths      int
	HeadshotPct float64
}

// Result of a single match.
type Result int

const (
	ResultUnknown Result = iota
	ResultWin
	ResultLoss
	ResultTie
)

// Totals are section-level figures printed when a layout has no rows.
type Totals struct {
	Matches     int
	Wins        int
	Losses      int
	Kills       int
	Deaths      int
	HeadshotPct float64
}

// Section is one day-labelled group found by a Layout.
type Section struct {
	Label   string
	Matches []Match
	Totals  *Totals
}

// Layout finds sections in one version of the page markup.
type Layout interface {
	Name() string
	Sections(doc *goquery.Document) []Section
}

// Extractor turns documents into blocks.
type Extractor struct {
	layouts  []Layout
	resolver *dates.Resolver
	logger   *slog.Logger
}

// New creates an Extractor trying layouts in order; the first that finds any
// section wins. With no layouts it uses MatchesLayout then SummaryLayout with
// default selectors.
func New(resolver *dates.Resolver, logger *slog.Logger, layouts ...Layout) *Extractor {
	if len(layouts) == 0 {
		layouts = []Layout{NewMatchesLayout(Selectors{}), NewSummaryLayout(Selectors{})}
	}
	if resolver == nil {
		resolver = dates.New(time.UTC)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{layouts: layouts, resolver: resolver, logger: logger}
}

// Extract returns one block per resolved day in document order. Duplicate
// days are merged.
func (e *Extractor) Extract(body []byte, ref time.Time) []DailyBlock {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		e.logger.Warn("extract: parse failed", "error", err)
		return nil
	}
	doc := goquery.NewDocumentFromNode(root)

	var (
		sections []Section
		used     string
	)
	for _, l := range e.layouts {
		if sections = l.Sections(doc); len(sections) > 0 {
			used = l.Name()
			break
		}
	}
	if len(sections) == 0 {
		e.logger.Warn("extract: no layout matched", "bytes", len(body))
		return nil
	}

	var (
		blocks  []DailyBlock
		byDay   = map[time.Time]int{}
		skipped int
	)
	for _, s := range sections {
		day, ok := e.resolver.Resolve(s.Label, ref)
		if !ok {
			skipped++
			continue
		}
		b := s.block()
		b.Label, b.Date = s.Label, day
		if i, dup := byDay[day]; dup {
			blocks[i] = merge(blocks[i], b)
			continue
		}
		byDay[day] = len(blocks)
		blocks = append(blocks, b)
	}
	e.logger.Debug("extract: done", "layout", used, "sections", len(sections), "blocks", len(blocks), "skipped", skipped)
	return blocks
}

// block computes a day's figures. With rows, headshot % is kills-weighted;
// otherwise it is the section's own figure.
func (s Section) block() DailyBlock {
	var b DailyBlock
	if len(s.Matches) > 0 {
		var hsKills float64
		for _, m := range s.Matches {
			b.Matches++
			switch m.Result {
			case ResultWin:
				b.Wins++
			case ResultLoss:
				b.Losses++
			}
			b.Kills += m.Kills
			b.Deaths += m.Deaths
			hsKills += m.HeadshotPct * float64(m.Kills)
		}
		if b.Kills > 0 {
			b.HeadshotPct = hsKills / float64(b.Kills)
		}
		return b
	}
	if t := s.Totals; t != nil {
		b.Matches = t.Matches
		if b.Matches == 0 {
			b.Matches = t.Wins + t.Losses
		}
		b.Wins, b.Losses = t.Wins, t.Losses
		b.Kills, b.Deaths = t.Kills, t.Deaths
		b.HeadshotPct = t.HeadshotPct
	}
	return b
}

func merge(a, b DailyBlock) DailyBlock {
	out := a
	out.Matches += b.Matches
	out.Wins += b.Wins
	out.Losses += b.Losses
	out.Kills += b.Kills
	out.Deaths += b.Deaths
	if out.Kills > 0 {
		out.HeadshotPct = (a.HeadshotPct*float64(a.Kills) + b.HeadshotPct*float64(b.Kills)) / float64(out.Kills)
	} else {
		out.HeadshotPct = 0
	}
	return out
}

// parseInt reads "1,234" and " 12 "; a dash placeholder reads as zero.
func parseInt(s string) int {
	s = cleanNumber(s)
	if s == "" {
		return 0
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// parseFloat reads "45%", "45.5 %", "0.45" stays 0.45.
func parseFloat(s string) float64 {
	s = cleanNumber(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func cleanNumber(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-' && b.Len() == 0:
			b.WriteRune(r)
		case r == ',', r == ' ', r == '%', r == '\u00a0':
		default:
			// First non-numeric rune ends the number ("21 kills").
			if b.Len() > 0 {
				return b.String()
			}
			return ""
		}
	}
	if b.String() == "-" {
		return ""
	}
	return b.String()
}

// cleanLabel keeps the date part of headers like "Oct 14 · 5 Matches".
func cleanLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, sep := range []string{"·", "•", "|", " - "} {
		if i := strings.Index(s, sep); i > 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
