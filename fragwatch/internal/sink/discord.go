package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/stats"
)

const (
	colorLeader  = 0x2ECC71
	colorFailure = 0xE74C3C
	colorNeutral = 0x3498DB
)

type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts embeds to the payload's ChannelRef, a Discord channel ID.
// Payloads without a channel fall back to DefaultChannel.
type Discord struct {
	sender         embedSender
	session        *discordgo.Session
	defaultChannel string
}

// NewDiscord opens a REST-only bot session. No gateway connection is made.
func NewDiscord(token, defaultChannel string) (*Discord, error) {
	if token == "" {
		return nil, fmt.Errorf("sink: discord token is required")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("sink: discord session: %w", err)
	}
	return &Discord{sender: s, session: s, defaultChannel: defaultChannel}, nil
}

func newDiscordWith(sender embedSender, defaultChannel string) *Discord {
	return &Discord{sender: sender, defaultChannel: defaultChannel}
}

func (d *Discord) Close() error {
	if d.session == nil {
		return nil
	}
	return d.session.Close()
}

func (d *Discord) channel(ref string) (string, error) {
	if ref != "" {
		return ref, nil
	}
	if d.defaultChannel != "" {
		return d.defaultChannel, nil
	}
	return "", fmt.Errorf("no channel")
}

func (d *Discord) DeliverPlayer(ctx context.Context, p PlayerPayload) error {
	ch, err := d.channel(p.ChannelRef)
	if err != nil {
		return &SendError{Sink: "discord", Cause: err}
	}
	return d.send(ctx, ch, PlayerEmbed(p))
}

func (d *Discord) DeliverRanking(ctx context.Context, p RankingPayload) error {
	ch, err := d.channel(p.ChannelRef)
	if err != nil {
		return &SendError{Sink: "discord", Cause: err}
	}
	return d.send(ctx, ch, RankingEmbed(p))
}

func (d *Discord) send(ctx context.Context, channelID string, e *discordgo.MessageEmbed) error {
	if _, err := d.sender.ChannelMessageSendEmbed(channelID, e, discordgo.WithContext(ctx)); err != nil {
		return &SendError{Sink: "discord", Cause: err}
	}
	return nil
}

// PlayerEmbed renders a player summary.
func PlayerEmbed(p PlayerPayload) *discordgo.MessageEmbed {
	s := p.Summary
	e := &discordgo.MessageEmbed{
		Title:  p.Window.Label(),
		Color:  colorNeutral,
		URL:    p.SourceURL,
		Author: &discordgo.MessageEmbedAuthor{Name: p.Player},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Matches", Value: fmt.Sprintf("%d (%dW / %dL, %.0f%%)", s.Matches, s.Wins, s.Losses, s.WinRate()), Inline: true},
			{Name: "Kills / Deaths", Value: fmt.Sprintf("%d / %d", s.Kills, s.Deaths), Inline: true},
			{Name: "K/D", Value: s.KD.String(), Inline: true},
			{Name: "Headshot %", Value: FormatValue(stats.MetricHeadshotPct, s.HeadshotPct), Inline: true},
			{Name: "Days played", Value: fmt.Sprintf("%d of %d", s.DaysPlayed, s.DaysCovered), Inline: true},
		},
	}
	if s.Matches == 0 {
		e.Description = "No matches in this period."
	}
	return e
}

// RankingEmbed renders a group's leaderboards, one field per metric.
func RankingEmbed(p RankingPayload) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title: "Rankings: " + p.Window.Label(),
		Color: colorLeader,
	}
	for _, m := range stats.Metrics {
		board := p.Rankings.Boards[m]
		if len(board) == 0 {
			continue
		}
		var b strings.Builder
		for i, entry := range board {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, entry.Player, FormatValue(m, entry.Value))
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: MetricTitle(m), Value: b.String(), Inline: true})
	}
	if len(e.Fields) == 0 {
		e.Description = "No player data for this period."
	}
	footer := fmt.Sprintf("%d players ranked", p.Rankings.Considered)
	if n := len(p.Failures); n > 0 {
		e.Color = colorFailure
		names := make([]string, 0, n)
		for _, f := range p.Failures {
			names = append(names, f.Player)
		}
		footer += fmt.Sprintf(" · %d failed: %s", n, strings.Join(names, ", "))
	}
	e.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	return e
}
