package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/stats"
)

// StdoutConfig selects the rendering.
type StdoutConfig struct {
	// JSON writes one JSON object per payload instead of tables.
	JSON bool
	// Colors highlights the leader and failures.
	Colors bool
}

// Stdout renders payloads as terminal tables.
type Stdout struct {
	mu  sync.Mutex
	w   io.Writer
	cfg StdoutConfig
}

// NewStdout writes to w.
func NewStdout(w io.Writer, cfg StdoutConfig) *Stdout {
	return &Stdout{w: w, cfg: cfg}
}

func (s *Stdout) Close() error { return nil }

func (s *Stdout) DeliverPlayer(_ context.Context, p PlayerPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.JSON {
		return s.writeJSON("player", p)
	}

	if _, err := fmt.Fprintf(s.w, "%s (%s) %s\n", p.Player, p.GroupID, p.Window.Label()); err != nil {
		return err
	}
	table := tablewriter.NewWriter(s.w)
	defer func() { _ = table.Close() }()
	table.Header([]string{"Matches", "W", "L", "Kills", "Deaths", "K/D", "HS %", "Days"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	sm := p.Summary
	row := []string{
		strconv.Itoa(sm.Matches),
		strconv.Itoa(sm.Wins),
		strconv.Itoa(sm.Losses),
		strconv.Itoa(sm.Kills),
		strconv.Itoa(sm.Deaths),
		sm.KD.String(),
		strconv.FormatFloat(sm.HeadshotPct, 'f', 1, 64),
		fmt.Sprintf("%d/%d", sm.DaysPlayed, sm.DaysCovered),
	}
	if err := table.Bulk([][]string{row}); err != nil {
		return err
	}
	return table.Render()
}

func (s *Stdout) DeliverRanking(_ context.Context, p RankingPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.JSON {
		return s.writeJSON("ranking", p)
	}

	lead, warn := fmt.Sprint, fmt.Sprint
	if s.cfg.Colors {
		lead = color.New(color.FgGreen, color.Bold).SprintFunc()
		warn = color.New(color.FgRed).SprintFunc()
	}

	if _, err := fmt.Fprintf(s.w, "Rankings for %s: %s\n", p.GroupID, p.Window.Label()); err != nil {
		return err
	}
	for _, m := range stats.Metrics {
		board := p.Rankings.Boards[m]
		if len(board) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(s.w, "\n%s\n", MetricTitle(m)); err != nil {
			return err
		}
		table := tablewriter.NewWriter(s.w)
		table.Header([]string{"Rank", "Player", "Value"})
		table.Configure(func(cfg *tablewriter.Config) {
			cfg.Row.Alignment.Global = tw.AlignRight
		})
		data := make([][]string, 0, len(board))
		for i, e := range board {
			name := e.Player
			if i == 0 {
				name = lead(name)
			}
			data = append(data, []string{strconv.Itoa(i + 1), name, FormatValue(m, e.Value)})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		err := table.Render()
		_ = table.Close()
		if err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(s.w, "\nPlayers ranked: %d\n", p.Rankings.Considered); err != nil {
		return err
	}
	for _, f := range p.Failures {
		if _, err := fmt.Fprintln(s.w, warn(fmt.Sprintf("failed: %s (%s)", f.Player, f.Reason))); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stdout) writeJSON(kind string, v any) error {
	return json.NewEncoder(s.w).Encode(map[string]any{"type": kind, "payload": v})
}
