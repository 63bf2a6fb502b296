// Package fragwatch tracks groups of players on a public match-stats site
// that resists automated access, aggregates their per-day figures over
// calendar and rolling windows, ranks them, and delivers reports on a
// per-group schedule.
//
// The pipeline for one player:
//
//	candidate URLs → resilient fetch (session + browser) → extract daily blocks
//	  → window → aggregate → (group) rank → sink
//
// Usage:
//
//	svc, err := fragwatch.New(cfg)
//	defer svc.Close(ctx)
//	svc.Start(ctx)                 // re-arm persisted schedules
//	http.ListenAndServe(addr, svc.Handler())
//	svc.RegisterMCP(mcpServer)
package fragwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/browser"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/candidate"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/challenge"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/config"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/dates"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/extract"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/fetch"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/metrics"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/retry"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/schedule"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/session"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/shield"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/sink"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/stats"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/store"
)

// Config is the service configuration.
type Config = config.Config

// LoadConfig reads a YAML file (optional), .env and FRAGWATCH_* variables.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config { return config.Default() }

// Fetcher retrieves the first usable page among candidate URLs.
type Fetcher interface {
	Fetch(ctx context.Context, candidates []string) (*fetch.Document, error)
}

// Service is the fragwatch orchestrator.
type Service struct {
	cfg    *Config
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time

	metrics  metrics.Recorder
	gatherer prometheus.Gatherer

	store      *store.Store
	ownStore   bool
	candidates *candidate.Resolver
	extractor  *extract.Extractor
	detector   *challenge.Detector
	fetcher    Fetcher
	sessions   *session.Manager
	pool       *browser.Pool
	solver     session.Solver
	sink       sink.Sink
	sched      *schedule.Manager

	// acqMu serialises acquisition; lastDone is guarded by it.
	acqMu    sync.Mutex
	acqDelay time.Duration
	lastDone time.Time
	guard    *shield.RateLimiter

	aggOpts  stats.AggregateOptions
	rankOpts stats.RankOptions
}

// Option customises New.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithStore uses an already opened store instead of opening cfg.Database.
func WithStore(st *store.Store) Option { return func(s *Service) { s.store = st } }

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) Option { return func(s *Service) { s.fetcher = f } }

// WithSolver replaces the browser-backed challenge solver.
func WithSolver(sv session.Solver) Option { return func(s *Service) { s.solver = sv } }

// WithSink replaces the sinks built from cfg.Delivery.
func WithSink(sk sink.Sink) Option { return func(s *Service) { s.sink = sk } }

// WithClock injects the time source used for windows and date resolution.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithMetrics records into rec; g is served at /metrics and may be nil.
func WithMetrics(rec metrics.Recorder, g prometheus.Gatherer) Option {
	return func(s *Service) { s.metrics, s.gatherer = rec, g }
}

// New wires every component from cfg. Nothing touches the network until the
// first collection.
func New(cfg *Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, loc: cfg.Location(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		reg := prometheus.NewRegistry()
		s.metrics = metrics.NewCollector(reg)
		s.gatherer = reg
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.NewRegistry()
	}

	if s.store == nil {
		st, err := store.Open(cfg.Database, store.WithMkdirAll())
		if err != nil {
			return nil, err
		}
		s.store, s.ownStore = st, true
	}

	s.detector = challenge.New(cfg.Fetch.ChallengeMarkers)
	s.candidates = candidate.New(candidate.Config{
		Hosts:           cfg.Source.Hosts,
		Paths:           cfg.Source.Paths,
		Game:            cfg.Source.Game,
		DefaultPlatform: cfg.Source.DefaultPlatform,
	})
	s.extractor = extract.New(dates.New(s.loc), s.logger,
		extract.NewMatchesLayout(cfg.Extract.Matches),
		extract.NewSummaryLayout(cfg.Extract.Summary))

	if s.fetcher == nil {
		s.buildAcquisition()
	}

	if s.sink == nil {
		sk, err := buildSinks(cfg, s.logger, s.metrics)
		if err != nil {
			s.closeOwned()
			return nil, err
		}
		s.sink = sk
	}

	s.acqDelay = cfg.Acquisition.InterPlayerDelay
	s.guard = shield.NewRateLimiter(shield.RateLimitConfig{
		PerMinute: cfg.HTTP.CollectPerMinute,
		Burst:     cfg.HTTP.CollectBurst,
		Logger:    s.logger,
	})
	s.aggOpts = stats.AggregateOptions{CountEmptyDays: cfg.Stats.CountEmptyDays}
	s.rankOpts = stats.RankOptions{TopN: cfg.Stats.TopN}

	s.sched = schedule.NewManager(schedule.Config{
		Location: s.loc,
		Logger:   s.logger,
		Metrics:  s.metrics,
	}, s.store, s)
	return s, nil
}

func (s *Service) buildAcquisition() {
	cfg := s.cfg
	if s.solver == nil {
		s.pool = browser.NewPool(browser.Config{
			RemoteURL:        cfg.Browser.RemoteURL,
			Bin:              cfg.Browser.Bin,
			Headful:          cfg.Browser.Headful,
			IdleTimeout:      cfg.Browser.IdleTimeout,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Logger:           s.logger,
		})
		s.solver = browser.NewSolver(s.pool, browser.SolverConfig{
			URL:       cfg.WarmupURL(),
			UserAgent: cfg.Fetch.UserAgent,
			Poll: retry.Policy{
				Attempts: cfg.Session.ChallengeWaitBudget,
				Base:     cfg.Session.ChallengePollInterval,
				Max:      cfg.Session.ChallengePollInterval,
			},
			Detector: s.detector,
			Logger:   s.logger,
		})
	}
	s.sessions = session.NewManager(session.Config{
		TTL:            cfg.Session.TTL,
		RefreshTimeout: cfg.Session.RefreshTimeout,
		Logger:         s.logger,
		Metrics:        s.metrics,
	}, s.solver)
	s.fetcher = fetch.New(fetch.Config{
		Retry: retry.Policy{
			Attempts: cfg.Fetch.RetryBudget,
			Base:     cfg.Fetch.BackoffBase,
			Max:      cfg.Fetch.BackoffMax,
			Jitter:   cfg.Fetch.Jitter,
		},
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
		Detector:  s.detector,
		Logger:    s.logger,
		Metrics:   s.metrics,
	}, s.sessions)
}

func buildSinks(cfg *Config, logger *slog.Logger, rec metrics.Recorder) (sink.Sink, error) {
	r := sink.NewRouter(logger, rec)
	d := cfg.Delivery
	if d.Stdout || d.StdoutJSON {
		// fatih/color drops escapes itself when stdout is not a terminal.
		r.Add("stdout", sink.NewStdout(os.Stdout, sink.StdoutConfig{JSON: d.StdoutJSON, Colors: true}))
	}
	if d.WebhookURL != "" {
		wh, err := sink.NewWebhook(sink.WebhookConfig{URL: d.WebhookURL, Secret: d.WebhookSecret}, nil)
		if err != nil {
			return nil, err
		}
		r.Add("webhook", wh)
	}
	if d.DiscordToken != "" {
		dc, err := sink.NewDiscord(d.DiscordToken, d.DiscordChannel)
		if err != nil {
			return nil, err
		}
		r.Add("discord", dc)
	}
	return r, nil
}

// Start re-arms every persisted schedule and starts the trigger runner.
func (s *Service) Start(ctx context.Context) error {
	n, err := s.sched.Restore(ctx)
	if err != nil {
		return err
	}
	s.sched.Start()
	s.logger.Info("fragwatch: started", "schedules", n, "timezone", s.loc.String())
	return nil
}

// Close stops the triggers, then releases sinks, the browser and the store.
func (s *Service) Close(ctx context.Context) error {
	s.sched.Stop(ctx)
	var errs []error
	if err := s.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("fragwatch: close sinks: %w", err))
	}
	if err := s.closeOwned(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) closeOwned() error {
	var errs []error
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("fragwatch: close browser: %w", err))
		}
	}
	if s.ownStore {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("fragwatch: close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// MetricsHandler serves the Prometheus registry.
func (s *Service) MetricsHandler() http.Handler { return metrics.Handler(s.gatherer) }

// Location is the timezone all windows are computed in.
func (s *Service) Location() *time.Location { return s.loc }
