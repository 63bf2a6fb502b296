// Package fetch retrieves profile pages through an anti-bot boundary. It
// walks candidate URLs in order, retries with backoff, classifies every
// response and asks the session manager for a forced refresh the first time
// it is blocked.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/challenge"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/metrics"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/retry"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/session"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// ErrNoCandidates is returned when Fetch is called with an empty list.
var ErrNoCandidates = errors.New("fetch: no candidates")

// Sessions is the part of session.Manager the fetcher uses.
type Sessions interface {
	Token(ctx context.Context, force bool) (*session.Token, error)
	Current() *session.Token
	Invalidate()
	Absorb(cookies []*http.Cookie)
}

// Document is a successfully retrieved page.
type Document struct {
	URL        string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}

// Config configures a Fetcher.
type Config struct {
	// Retry sets the per-candidate budget and backoff. Attempts default: 3.
	Retry retry.Policy
	// Timeout bounds one attempt. Default: 20s.
	Timeout time.Duration
	// MaxBytes caps the body read. Default: 10MB.
	MaxBytes int64
	// UserAgent is sent when the session has none.
	UserAgent string
	Detector  *challenge.Detector
	Logger    *slog.Logger
	Metrics   metrics.Recorder
}

func (c *Config) defaults() {
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = 3
	}
	c.Retry = retry.New(c.Retry)
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Detector == nil {
		c.Detector = challenge.New(nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Nop{}
	}
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	cfg      Config
	sessions Sessions
	client   *http.Client
}

// New creates a Fetcher. sessions may be nil for credential-less fetching.
func New(cfg Config, sessions Sessions, opts ...Option) *Fetcher {
	cfg.defaults()
	f := &Fetcher{
		cfg:      cfg,
		sessions: sessions,
		client:   &http.Client{},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch returns the first candidate that yields a real profile page. When
// every candidate is spent it returns an *ExhaustedError.
func (f *Fetcher) Fetch(ctx context.Context, candidates []string) (*Document, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	log := f.cfg.Logger

	var (
		last        Outcome
		total       int
		refreshed   bool // a forced refresh was already spent on this call
		sessionDown bool // the solver failed; stop asking it for the rest of the call
	)

	for _, u := range candidates {
		for attempt := 0; attempt < f.cfg.Retry.Attempts; {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			tok := f.token(ctx, &sessionDown)
			if sessionDown {
				// The solver already ran and failed during this call.
				refreshed = true
			}
			doc, out := f.attempt(ctx, u, tok)
			total++
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if out.Class == ClassSuccess {
				return doc, nil
			}
			last = out
			log.Warn("fetch: attempt failed",
				"url", u, "attempt", attempt+1, "class", out.Class.String(),
				"status", out.StatusCode, "detail", out.Detail)

			if out.Class == ClassBlocked && !refreshed && f.sessions != nil {
				refreshed = true
				if _, err := f.sessions.Token(ctx, true); err != nil {
					log.Warn("fetch: forced session refresh failed", "error", err)
					f.sessions.Invalidate()
					sessionDown = true
				}
				// The retry right after a refresh is free.
				continue
			}

			attempt++
			if attempt < f.cfg.Retry.Attempts {
				if err := f.cfg.Retry.Wait(ctx, attempt-1); err != nil {
					return nil, err
				}
			}
		}
	}

	return nil, &ExhaustedError{Last: last, Attempts: total, Candidates: len(candidates)}
}

// token returns the credential for the next attempt. A solver failure is
// logged once per call and the rest of the call runs on whatever is cached.
func (f *Fetcher) token(ctx context.Context, down *bool) *session.Token {
	if f.sessions == nil {
		return nil
	}
	if *down {
		return f.sessions.Current()
	}
	tok, err := f.sessions.Token(ctx, false)
	if err != nil {
		if errors.Is(err, session.ErrUnavailable) {
			f.cfg.Logger.Warn("fetch: continuing without session", "error", err)
			*down = true
		}
		return nil
	}
	return tok
}

func (f *Fetcher) attempt(ctx context.Context, u string, tok *session.Token) (*Document, Outcome) {
	actx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out := Outcome{URL: u}
	defer func() { f.cfg.Metrics.FetchAttempt(out.Class.String(), time.Since(start)) }()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, u, nil)
	if err != nil {
		out.Class, out.Err, out.Detail = ClassStatus, err, "bad request"
		return nil, out
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	tok.Apply(req)

	resp, err := f.client.Do(req)
	if err != nil {
		out.Class, out.Err, out.Detail = ClassNetwork, err, networkDetail(err)
		return nil, out
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes))
	if err != nil {
		out.Class, out.Err, out.Detail = ClassNetwork, err, networkDetail(err)
		return nil, out
	}

	out.StatusCode = resp.StatusCode
	out.Class, out.Detail = f.classify(resp.StatusCode, body)
	if out.Class != ClassSuccess {
		return nil, out
	}

	if f.sessions != nil {
		f.sessions.Absorb(resp.Cookies())
	}
	return &Document{URL: u, StatusCode: resp.StatusCode, Body: body, FetchedAt: time.Now()}, out
}

// classify maps a completed response to a Class and a short detail.
func (f *Fetcher) classify(code int, body []byte) (Class, string) {
	title := f.cfg.Detector.Title(body)
	if challenge.BlockedStatus(code) {
		return ClassBlocked, detail(fmt.Sprintf("status %d", code), title)
	}
	if code >= 200 && code < 300 {
		if marker, ok := f.cfg.Detector.Match(body); ok {
			return ClassBlocked, detail("challenge page ("+marker+")", title)
		}
		return ClassSuccess, ""
	}
	return ClassStatus, detail(fmt.Sprintf("status %d", code), title)
}

func detail(what, title string) string {
	if title == "" {
		return what
	}
	return what + ": " + title
}

func networkDetail(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "connection error"
}
