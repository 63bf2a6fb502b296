package fragwatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/candidate"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/kit"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/schedule"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/sink"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/store"
)

// RunTick is called by the scheduler for every trigger firing: it collects the
// group over the trigger's window, ranks it and delivers the result to the
// schedule's channel. A group with no players delivers nothing.
func (s *Service) RunTick(ctx context.Context, sc Schedule, tr Trigger) error {
	if kit.GetTransport(ctx) == "direct" {
		ctx = kit.WithTransport(ctx, "cron")
	}
	_, err := s.deliverGroup(ctx, sc, tr.Window(), string(tr))
	if errors.Is(err, ErrNoPlayers) {
		s.logger.Info("fragwatch: tick skipped", "group", sc.GroupID, "trigger", tr, "reason", "no players")
		return nil
	}
	return err
}

// RunNow fires trigger tr for groupID immediately, outside the schedule. The
// stored channel is used when the group has a schedule.
func (s *Service) RunNow(ctx context.Context, groupID string, tr Trigger) (*sink.RankingPayload, error) {
	sc, err := s.store.GetSchedule(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		sc, err = Schedule{GroupID: groupID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fragwatch: run %s: %w", groupID, err)
	}
	return s.deliverGroup(ctx, sc, tr.Window(), string(tr))
}

// ReportGroup ranks groupID over window k and delivers it to channelRef
// (empty: each sink's default destination).
func (s *Service) ReportGroup(ctx context.Context, groupID string, k WindowKind, channelRef string) (*sink.RankingPayload, error) {
	return s.deliverGroup(ctx, Schedule{GroupID: groupID, ChannelRef: channelRef}, k, "")
}

// ReportPlayer collects one player and delivers the summary to channelRef.
func (s *Service) ReportPlayer(ctx context.Context, ref PlayerRef, k WindowKind, channelRef string) (*PlayerReport, error) {
	rep, err := s.CollectForPlayer(ctx, ref, k)
	if err != nil {
		return nil, err
	}
	if err := s.sink.DeliverPlayer(ctx, rep.Payload(ref.GroupID, channelRef)); err != nil {
		return rep, err
	}
	return rep, nil
}

func (s *Service) deliverGroup(ctx context.Context, sc Schedule, k WindowKind, trigger string) (*sink.RankingPayload, error) {
	runID := uuid.NewString()
	ctx = kit.WithRunID(ctx, runID)
	start := time.Now()

	rep, err := s.CollectForGroup(ctx, sc.GroupID, k)
	if err != nil {
		return nil, err
	}
	if len(rep.Results)+len(rep.Failures) == 0 {
		return nil, ErrNoPlayers
	}

	p := sink.RankingPayload{
		RunID:      runID,
		GroupID:    sc.GroupID,
		ChannelRef: sc.ChannelRef,
		Trigger:    trigger,
		Window:     rep.Window,
		Rankings:   s.BuildRankings(rep.Outcomes()),
		Players:    rep.Lines(),
		Failures:   rep.Failures,
	}
	if err := s.sink.DeliverRanking(ctx, p); err != nil {
		return &p, fmt.Errorf("fragwatch: deliver %s: %w", sc.GroupID, err)
	}
	s.logger.Info("fragwatch: ranking delivered", "run_id", runID, "group", sc.GroupID,
		"trigger", trigger, "window", rep.Window.Kind, "ranked", p.Rankings.Considered,
		"failed", len(p.Failures), "duration", time.Since(start))
	return &p, nil
}

// --- Schedules ---

// ScheduleStatus is a group's persisted schedule and its installed triggers.
type ScheduleStatus struct {
	Schedule Schedule              `json:"schedule"`
	State    string                `json:"state"`
	Next     map[Trigger]time.Time `json:"next,omitempty"`
}

// Program arms daily, weekly and monthly deliveries of groupID at timeOfDay
// ("HH:mm", 24-hour) to channelRef, replacing any earlier schedule.
func (s *Service) Program(ctx context.Context, groupID, channelRef, timeOfDay string) (Schedule, error) {
	return s.sched.Program(ctx, groupID, channelRef, timeOfDay)
}

// Cancel disarms groupID. Cancelling an unscheduled group is not an error.
func (s *Service) Cancel(ctx context.Context, groupID string) error {
	return s.sched.Cancel(ctx, groupID)
}

// Schedule returns groupID's schedule, or ErrNotFound.
func (s *Service) Schedule(ctx context.Context, groupID string) (*ScheduleStatus, error) {
	sc, err := s.store.GetSchedule(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &ScheduleStatus{
		Schedule: sc,
		State:    s.sched.State(groupID).String(),
		Next:     s.sched.Next(groupID, s.now()),
	}, nil
}

// --- Players ---

// AddPlayer starts tracking username in groupID. The platform hint is
// normalised; an empty hint leaves the configured default in effect.
func (s *Service) AddPlayer(ctx context.Context, groupID, username, platform string) (Player, error) {
	groupID, username = strings.TrimSpace(groupID), strings.TrimSpace(username)
	if groupID == "" {
		return Player{}, &ValidationError{Field: "group_id", Value: groupID, Reason: "required"}
	}
	if err := candidate.ValidateUsername(username); err != nil {
		return Player{}, err
	}
	if platform != "" {
		platform = s.candidates.Platform(platform)
	}
	p, err := s.store.AddPlayer(ctx, Player{GroupID: groupID, Username: username, Platform: platform})
	if err != nil {
		return Player{}, err
	}
	s.logger.Info("fragwatch: player added", "group", groupID, "player", username, "platform", platform)
	return p, nil
}

// RemovePlayer stops tracking username. Returns ErrNotFound if it was not tracked.
func (s *Service) RemovePlayer(ctx context.Context, groupID, username string) error {
	if err := s.store.RemovePlayer(ctx, groupID, strings.TrimSpace(username)); err != nil {
		return err
	}
	s.logger.Info("fragwatch: player removed", "group", groupID, "player", username)
	return nil
}

func (s *Service) ListPlayers(ctx context.Context, groupID string) ([]Player, error) {
	return s.store.Players(ctx, groupID)
}

var _ schedule.Runner = (*Service)(nil)
