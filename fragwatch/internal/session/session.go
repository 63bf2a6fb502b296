// Package session owns the process-wide access credential used to look like
// a returning browser to the stats site. One Manager holds one Token;
// refreshes go through a Solver (a headless browser in production) and are
// single-flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/metrics"
)

// ErrUnavailable means no credential could be obtained. Callers continue
// without one.
var ErrUnavailable = errors.New("session: unavailable")

// Credentials is what a Solver hands back after clearing a challenge.
type Credentials struct {
	Cookies   []*http.Cookie
	UserAgent string
}

// Solver obtains fresh credentials, typically by driving a browser through
// the site's challenge page.
type Solver interface {
	Solve(ctx context.Context) (*Credentials, error)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context) (*Credentials, error)

// Solve implements Solver.
func (f SolverFunc) Solve(ctx context.Context) (*Credentials, error) { return f(ctx) }

// Token is an immutable credential snapshot. Updates replace the whole value.
type Token struct {
	Cookies    []*http.Cookie
	UserAgent  string
	AcquiredAt time.Time
	TTL        time.Duration
}

// Valid reports whether the token has not yet expired at now.
func (t *Token) Valid(now time.Time) bool {
	return t != nil && !now.After(t.AcquiredAt.Add(t.TTL))
}

// Apply attaches the token's cookies and user agent to req. A nil token is a
// no-op.
func (t *Token) Apply(req *http.Request) {
	if t == nil {
		return
	}
	for _, c := range t.Cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}
}

// Config configures a Manager.
type Config struct {
	// TTL is how long a solved credential is trusted. Default: 30m.
	TTL time.Duration
	// RefreshTimeout bounds one Solve call. Default: 2m.
	RefreshTimeout time.Duration
	Logger         *slog.Logger
	Metrics        metrics.Recorder
	Now            func() time.Time
}

func (c *Config) defaults() {
	if c.TTL <= 0 {
		c.TTL = 30 * time.Minute
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Nop{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Manager is the single owner of the cached Token.
type Manager struct {
	cfg    Config
	solver Solver

	mu    sync.Mutex
	token *Token

	group singleflight.Group
}

// NewManager creates a Manager. A nil solver makes every refresh fail with
// ErrUnavailable.
func NewManager(cfg Config, solver Solver) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, solver: solver}
}

// Token returns the cached token when it is valid and force is false.
// Otherwise it refreshes, joining a refresh already in flight.
func (m *Manager) Token(ctx context.Context, force bool) (*Token, error) {
	if !force {
		if t := m.Current(); t != nil {
			return t, nil
		}
	}

	ch := m.group.DoChan("refresh", func() (any, error) {
		return m.refresh()
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Token), nil
	}
}

// Current returns the cached token if still valid, without refreshing.
func (m *Manager) Current() *Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token.Valid(m.cfg.Now()) {
		return m.token
	}
	return nil
}

// Invalidate drops the cached token after the site rejected it.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
	m.cfg.Logger.Info("session: token invalidated")
}

// Absorb merges cookies set by a successful response into the cached token
// and restarts its TTL. Cookies with MaxAge < 0 are removed.
func (m *Manager) Absorb(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var merged []*http.Cookie
	ua := ""
	if m.token != nil {
		ua = m.token.UserAgent
		merged = append(merged, m.token.Cookies...)
	}
	for _, c := range cookies {
		idx := -1
		for i, old := range merged {
			if old.Name == c.Name {
				idx = i
				break
			}
		}
		switch {
		case c.MaxAge < 0 && idx >= 0:
			merged = append(merged[:idx:idx], merged[idx+1:]...)
		case c.MaxAge < 0:
		case idx >= 0:
			merged[idx] = c
		default:
			merged = append(merged, c)
		}
	}
	m.token = &Token{Cookies: merged, UserAgent: ua, AcquiredAt: m.cfg.Now(), TTL: m.cfg.TTL}
}

func (m *Manager) refresh() (*Token, error) {
	if m.solver == nil {
		m.cfg.Metrics.SessionRefresh(false, 0)
		return nil, fmt.Errorf("%w: no solver configured", ErrUnavailable)
	}

	// Detached from any one caller: joiners must not lose the result
	// because the first caller gave up.
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RefreshTimeout)
	defer cancel()

	start := time.Now()
	creds, err := m.solver.Solve(ctx)
	elapsed := time.Since(start)
	if err != nil {
		m.cfg.Metrics.SessionRefresh(false, elapsed)
		m.cfg.Logger.Warn("session: refresh failed", "error", err, "elapsed", elapsed)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if creds == nil {
		creds = &Credentials{}
	}

	t := &Token{
		Cookies:    creds.Cookies,
		UserAgent:  creds.UserAgent,
		AcquiredAt: m.cfg.Now(),
		TTL:        m.cfg.TTL,
	}
	m.mu.Lock()
	m.token = t
	m.mu.Unlock()

	m.cfg.Metrics.SessionRefresh(true, elapsed)
	m.cfg.Logger.Info("session: refreshed", "cookies", len(t.Cookies), "elapsed", elapsed)
	return t, nil
}
