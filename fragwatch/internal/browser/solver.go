package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/challenge"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/retry"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/session"
)

// ErrChallengeNotCleared is returned when the challenge page is still showing
// after the poll budget.
var ErrChallengeNotCleared = errors.New("browser: challenge not cleared")

// SolverConfig configures a Solver.
type SolverConfig struct {
	// URL is loaded to earn the clearance cookie, typically the site root.
	URL string
	// UserAgent overrides the headless user agent when set.
	UserAgent string
	// NavTimeout bounds navigation and load. Default: 45s.
	NavTimeout time.Duration
	// Poll paces the "is the challenge gone yet" checks. Attempts is the
	// challenge wait budget.
	Poll     retry.Policy
	Detector *challenge.Detector
	Logger   *slog.Logger
}

func (c *SolverConfig) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 45 * time.Second
	}
	if c.Poll.Attempts <= 0 {
		c.Poll.Attempts = 15
	}
	if c.Poll.Base <= 0 {
		c.Poll.Base = 2 * time.Second
	}
	if c.Poll.Max <= 0 {
		c.Poll.Max = c.Poll.Base
	}
	c.Poll = retry.New(c.Poll)
	if c.Detector == nil {
		c.Detector = challenge.New(nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Solver implements session.Solver with a stealth page on a pooled browser.
type Solver struct {
	pool *Pool
	cfg  SolverConfig
}

// NewSolver creates a Solver leasing browsers from pool.
func NewSolver(pool *Pool, cfg SolverConfig) *Solver {
	cfg.defaults()
	return &Solver{pool: pool, cfg: cfg}
}

var _ session.Solver = (*Solver)(nil)

// Solve opens the site, waits for the challenge to clear and returns the
// cookies and user agent of the cleared page. Any failure other than a
// challenge that would not clear gets the browser health-checked, so a
// crashed Chrome is replaced on the next refresh.
func (s *Solver) Solve(ctx context.Context) (_ *session.Credentials, err error) {
	log := s.cfg.Logger
	if s.cfg.URL == "" {
		return nil, fmt.Errorf("browser: solver has no URL")
	}

	b, release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	defer func() {
		if err != nil && !errors.Is(err, ErrChallengeNotCleared) && ctx.Err() == nil {
			s.pool.Check(b)
		}
	}()

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	defer func() { page.Timeout(pingTimeout).Close() }()

	if len(s.pool.cfg.ResourceBlocking) > 0 {
		stop := applyResourceBlocking(page, s.pool.cfg.ResourceBlocking)
		defer stop()
	}
	if s.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.cfg.UserAgent}); err != nil {
			log.Warn("browser: set user agent failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(s.cfg.URL); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", s.cfg.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("browser: wait load timeout", "url", s.cfg.URL, "error", err)
	}

	err = s.cfg.Poll.Do(ctx, func(ctx context.Context, attempt int) error {
		html, err := page.Context(ctx).HTML()
		if err != nil {
			return fmt.Errorf("browser: read page: %w", err)
		}
		if marker, blocked := s.cfg.Detector.Match([]byte(html)); blocked {
			log.Debug("browser: challenge still showing", "attempt", attempt+1, "marker", marker)
			return ErrChallengeNotCleared
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	raw, err := page.Context(ctx).Cookies([]string{s.cfg.URL})
	if err != nil {
		return nil, fmt.Errorf("browser: read cookies: %w", err)
	}
	ua := s.cfg.UserAgent
	if ua == "" {
		res, err := page.Context(ctx).Eval(`() => navigator.userAgent`)
		if err != nil {
			return nil, fmt.Errorf("browser: read user agent: %w", err)
		}
		ua = res.Value.Str()
	}

	cookies := convertCookies(raw)
	log.Info("browser: challenge cleared", "url", s.cfg.URL, "cookies", len(cookies))
	return &session.Credentials{Cookies: cookies, UserAgent: ua}, nil
}

func convertCookies(in []*proto.NetworkCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil || c.Name == "" {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		// Session cookies report -1.
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}
