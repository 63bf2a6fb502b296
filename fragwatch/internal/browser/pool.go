// Package browser manages the headless Chrome used for session refreshes.
// Chrome is launched on first lease, shared by concurrent leases, and shut
// down once no lease has been held for IdleTimeout. A browser that stops
// answering is discarded and the next lease relaunches.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("browser: pool closed")

// Config configures the pool.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local Chrome.
	RemoteURL string

	// Bin is the Chrome binary. Empty = let the launcher find or download one.
	Bin string

	// Headful runs a visible browser; some challenges only clear headful.
	Headful bool

	// IdleTimeout is how long Chrome stays up with no lease. Default: 5m.
	IdleTimeout time.Duration

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pool hands out leases on one shared browser.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	leases  int
	gen     uint64 // bumped on every launch and every lease
	idle    *time.Timer
	closed  bool

	launch   func(ctx context.Context) (*rod.Browser, *launcher.Launcher, error)
	shutdown func(b *rod.Browser, l *launcher.Launcher)
	ping     func(b *rod.Browser) error
}

const pingTimeout = 5 * time.Second

// NewPool creates a Pool. Nothing is launched until Acquire.
func NewPool(cfg Config) *Pool {
	cfg.defaults()
	p := &Pool{cfg: cfg}
	p.launch = p.launchChrome
	p.shutdown = shutdownChrome
	p.ping = pingChrome
	return p
}

// Acquire returns the shared browser, launching it if needed, and a release
// func that must be called exactly once when the caller is done with it.
// Launch and teardown both run under the pool mutex, so an Acquire racing an
// idle teardown either keeps the old browser or waits for a fresh one.
func (p *Pool) Acquire(ctx context.Context) (*rod.Browser, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, nil, ErrClosed
	}
	if p.idle != nil {
		p.idle.Stop()
		p.idle = nil
	}
	if p.browser != nil && p.leases == 0 {
		if err := p.ping(p.browser); err != nil {
			p.discardLocked("unresponsive before lease", err)
		}
	}
	if p.browser == nil {
		b, l, err := p.launch(ctx)
		if err != nil {
			return nil, nil, err
		}
		p.browser, p.lnch = b, l
	}
	p.leases++
	p.gen++
	b := p.browser

	var once sync.Once
	release := func() { once.Do(p.release) }
	return b, release, nil
}

func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.leases--
	if p.leases > 0 || p.closed || p.browser == nil {
		return
	}
	gen := p.gen
	p.idle = time.AfterFunc(p.cfg.IdleTimeout, func() { p.reap(gen) })
}

// reap tears Chrome down if nothing leased it since the timer was armed.
func (p *Pool) reap(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gen != gen || p.leases > 0 || p.browser == nil {
		return
	}
	p.cfg.Logger.Info("browser: idle timeout, shutting down", "idle", p.cfg.IdleTimeout)
	p.shutdown(p.browser, p.lnch)
	p.browser, p.lnch = nil, nil
	p.idle = nil
}

// Discard shuts b down if it is still the pool's browser, so the next
// Acquire launches a fresh one. Leases still holding b keep a dead handle.
func (p *Pool) Discard(b *rod.Browser, reason error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b == nil || p.browser != b {
		return
	}
	p.discardLocked("discarded", reason)
}

// Check pings b and discards it when it no longer answers. It reports
// whether b is still usable.
func (p *Pool) Check(b *rod.Browser) bool {
	if b == nil {
		return false
	}
	err := p.ping(b)
	if err == nil {
		return true
	}
	p.Discard(b, err)
	return false
}

func (p *Pool) discardLocked(why string, err error) {
	p.cfg.Logger.Warn("browser: "+why+", relaunching on next lease", "error", err)
	if p.idle != nil {
		p.idle.Stop()
		p.idle = nil
	}
	p.shutdown(p.browser, p.lnch)
	p.browser, p.lnch = nil, nil
	p.gen++
}

// Running reports whether a browser is currently up.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.browser != nil
}

// Close shuts Chrome down. Outstanding leases keep their handle but it is dead.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.idle != nil {
		p.idle.Stop()
		p.idle = nil
	}
	if p.browser != nil {
		p.shutdown(p.browser, p.lnch)
		p.browser, p.lnch = nil, nil
	}
	return nil
}

func (p *Pool) launchChrome(_ context.Context) (*rod.Browser, *launcher.Launcher, error) {
	log := p.cfg.Logger

	var (
		wsURL string
		l     *launcher.Launcher
	)
	if p.cfg.RemoteURL != "" {
		wsURL = p.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l = launcher.New().Headless(!p.cfg.Headful)
		if p.cfg.Bin != "" {
			l = l.Bin(p.cfg.Bin)
		}
		// Hide navigator.webdriver and friends.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		log.Info("browser: launched local chrome", "headful", p.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, l, nil
}

func pingChrome(b *rod.Browser) error {
	_, err := b.Timeout(pingTimeout).Version()
	return err
}

func shutdownChrome(b *rod.Browser, l *launcher.Launcher) {
	if b != nil {
		// A hung browser must not hold the pool mutex forever.
		b.Timeout(pingTimeout).Close()
	}
	if l != nil {
		l.Cleanup()
	}
}
