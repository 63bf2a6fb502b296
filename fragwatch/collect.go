package fragwatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/candidate"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/fetch"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/kit"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/retry"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/stats"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/store"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/window"
)

// Result is one player's outcome as fed to BuildRankings.
type Result = stats.Result

// CollectForPlayer fetches one player's page and aggregates it over the
// window of kind k. When ref names a tracked player and carries no platform,
// the stored platform is used.
func (s *Service) CollectForPlayer(ctx context.Context, ref PlayerRef, k WindowKind) (*PlayerReport, error) {
	username := strings.TrimSpace(ref.Username)
	if err := candidate.ValidateUsername(username); err != nil {
		return nil, err
	}
	platform := ref.Platform
	if platform == "" && ref.GroupID != "" {
		p, err := s.store.Player(ctx, ref.GroupID, username)
		switch {
		case err == nil:
			platform = p.Platform
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("fragwatch: lookup %s: %w", username, err)
		}
	}
	w := window.Resolve(k, s.now(), s.loc)
	return s.collect(ctx, username, platform, w)
}

// CollectForGroup collects every tracked player of groupID, one at a time.
// Per-player failures land in the report; only a store error fails the call.
func (s *Service) CollectForGroup(ctx context.Context, groupID string, k WindowKind) (*GroupReport, error) {
	players, err := s.store.Players(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("fragwatch: list players %s: %w", groupID, err)
	}
	w := window.Resolve(k, s.now(), s.loc)
	rep := &GroupReport{GroupID: groupID, Window: w, Results: []*PlayerReport{}}

	for _, p := range players {
		pr, err := s.collect(ctx, p.Username, p.Platform, w)
		if err != nil {
			reason := s.failureReason(err)
			s.logger.Warn("fragwatch: player failed", "group", groupID, "player", p.Username,
				"run_id", kit.GetRunID(ctx), "reason", reason, "error", err)
			rep.Failures = append(rep.Failures, Failure{Player: p.Username, Reason: reason, Err: err})
			continue
		}
		rep.Results = append(rep.Results, pr)
	}
	s.logger.Info("fragwatch: group collected", "group", groupID, "window", w.Kind,
		"ok", len(rep.Results), "failed", len(rep.Failures))
	return rep, nil
}

// BuildRankings ranks results with the configured top-N.
func (s *Service) BuildRankings(results []Result) Rankings {
	return stats.BuildRankings(results, s.rankOpts)
}

// Rankings collects groupID and ranks it.
func (s *Service) Rankings(ctx context.Context, groupID string, k WindowKind) (*RankingReport, error) {
	rep, err := s.CollectForGroup(ctx, groupID, k)
	if err != nil {
		return nil, err
	}
	return &RankingReport{
		GroupID:  groupID,
		Window:   rep.Window,
		Rankings: s.BuildRankings(rep.Outcomes()),
		Failures: rep.Failures,
	}, nil
}

// collect runs one player through fetch, extract and aggregate. Acquisition
// is serialised process-wide, and a new one starts no sooner than acqDelay
// after the previous one ended.
func (s *Service) collect(ctx context.Context, username, platform string, w Window) (*PlayerReport, error) {
	s.acqMu.Lock()
	defer s.acqMu.Unlock()
	if err := s.pace(ctx); err != nil {
		s.metrics.PlayerCollected(false)
		return nil, err
	}
	defer func() { s.lastDone = time.Now() }()

	platform = s.candidates.Platform(platform)
	doc, err := s.fetcher.Fetch(ctx, s.candidates.Resolve(username, platform))
	if err != nil {
		s.metrics.PlayerCollected(false)
		return nil, err
	}

	blocks := s.extractor.Extract(doc.Body, s.now())
	sum := stats.Aggregate(blocks, w, s.aggOpts)
	days := make([]DailyBlock, 0, len(blocks))
	for _, b := range blocks {
		if w.Contains(b.Date) {
			days = append(days, b)
		}
	}
	if len(blocks) == 0 {
		s.logger.Warn("fragwatch: no daily blocks", "player", username, "url", doc.URL)
	}
	s.metrics.PlayerCollected(true)
	s.logger.Debug("fragwatch: player collected", "player", username, "url", doc.URL,
		"blocks", len(blocks), "in_window", len(days), "matches", sum.Matches)

	return &PlayerReport{
		Player:    username,
		Platform:  platform,
		SourceURL: doc.URL,
		Window:    w,
		Summary:   sum,
		Days:      days,
	}, nil
}

// pace sleeps out the rest of the inter-player gap. Callers hold acqMu.
func (s *Service) pace(ctx context.Context) error {
	if s.acqDelay <= 0 || s.lastDone.IsZero() {
		return nil
	}
	wait := s.acqDelay - time.Since(s.lastDone)
	if wait <= 0 {
		return nil
	}
	s.logger.Debug("fragwatch: pacing", "wait", wait)
	return retry.Sleep(ctx, wait)
}

// failureReason is a short sanitised explanation for a sink.
func (s *Service) failureReason(err error) string {
	var ex *fetch.ExhaustedError
	switch {
	case errors.As(err, &ex):
		return s.detector.Sanitize(ex.Reason())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, fetch.ErrNoCandidates):
		return "no profile URL"
	}
	return s.detector.Sanitize(err.Error())
}
