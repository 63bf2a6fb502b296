package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)}
}

func TestToken_CachedUntilTTL(t *testing.T) {
	// WHAT: A valid token is reused; after TTL a new solve happens.
	// WHY: Each solve launches a browser; caching is the point of the manager.
	clk := newClock()
	var solves atomic.Int32
	solver := SolverFunc(func(context.Context) (*Credentials, error) {
		solves.Add(1)
		return &Credentials{Cookies: []*http.Cookie{{Name: "cf_clearance", Value: "v"}}, UserAgent: "UA"}, nil
	})
	m := NewManager(Config{TTL: time.Minute, Now: clk.Now}, solver)

	ctx := context.Background()
	t1, err := m.Token(ctx, false)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	t2, _ := m.Token(ctx, false)
	if t1 != t2 || solves.Load() != 1 {
		t.Errorf("expected cached token, solves=%d", solves.Load())
	}

	clk.Advance(2 * time.Minute)
	if _, err := m.Token(ctx, false); err != nil {
		t.Fatalf("token: %v", err)
	}
	if solves.Load() != 2 {
		t.Errorf("expected refresh after TTL, solves=%d", solves.Load())
	}
}

func TestToken_ForceRefreshes(t *testing.T) {
	// WHAT: force=true solves even with a valid cached token.
	// WHY: The fetcher forces a refresh when the site rejects the token.
	var solves atomic.Int32
	m := NewManager(Config{}, SolverFunc(func(context.Context) (*Credentials, error) {
		solves.Add(1)
		return &Credentials{}, nil
	}))
	ctx := context.Background()
	m.Token(ctx, false)
	m.Token(ctx, true)
	if solves.Load() != 2 {
		t.Errorf("solves=%d, want 2", solves.Load())
	}
}

func TestToken_SingleFlight(t *testing.T) {
	// WHAT: Concurrent callers share one in-flight refresh.
	// WHY: Several browsers racing the same challenge is exactly what gets us banned.
	release := make(chan struct{})
	var solves atomic.Int32
	m := NewManager(Config{}, SolverFunc(func(context.Context) (*Credentials, error) {
		solves.Add(1)
		<-release
		return &Credentials{UserAgent: "UA"}, nil
	}))

	const n = 8
	var wg sync.WaitGroup
	tokens := make([]*Token, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.Token(context.Background(), true)
			if err != nil {
				t.Errorf("token: %v", err)
			}
			tokens[i] = tok
		}(i)
	}
	// Let every goroutine reach DoChan before the solve finishes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if solves.Load() != 1 {
		t.Errorf("solves=%d, want 1", solves.Load())
	}
	for i := 1; i < n; i++ {
		if tokens[i] != tokens[0] {
			t.Errorf("caller %d got a different token", i)
		}
	}
}

func TestToken_SolverFailureIsUnavailable(t *testing.T) {
	// WHAT: A failing solve surfaces ErrUnavailable and caches nothing.
	// WHY: Callers must be able to detect it and fetch credential-less.
	m := NewManager(Config{}, SolverFunc(func(context.Context) (*Credentials, error) {
		return nil, errors.New("chrome not found")
	}))
	_, err := m.Token(context.Background(), false)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
	if m.Current() != nil {
		t.Error("no token should be cached")
	}
}

func TestToken_NilSolver(t *testing.T) {
	// WHAT: Without a solver every refresh is ErrUnavailable.
	// WHY: Browser automation is optional in deployments without Chrome.
	m := NewManager(Config{}, nil)
	if _, err := m.Token(context.Background(), false); !errors.Is(err, ErrUnavailable) {
		t.Errorf("got %v", err)
	}
}

func TestToken_CallerCancelDoesNotAbortRefresh(t *testing.T) {
	// WHAT: A caller giving up returns ctx.Err but the refresh still completes for others.
	// WHY: The refresh is shared; one impatient caller must not waste it.
	release := make(chan struct{})
	m := NewManager(Config{}, SolverFunc(func(ctx context.Context) (*Credentials, error) {
		<-release
		return &Credentials{UserAgent: "UA"}, ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Token(ctx, false)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for m.Current() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.Current() == nil {
		t.Error("refresh should have completed")
	}
}

func TestInvalidate(t *testing.T) {
	// WHAT: Invalidate drops the token so the next call refreshes.
	// WHY: A rejected token must not be reused.
	var solves atomic.Int32
	m := NewManager(Config{}, SolverFunc(func(context.Context) (*Credentials, error) {
		solves.Add(1)
		return &Credentials{}, nil
	}))
	m.Token(context.Background(), false)
	m.Invalidate()
	if m.Current() != nil {
		t.Fatal("token should be gone")
	}
	m.Token(context.Background(), false)
	if solves.Load() != 2 {
		t.Errorf("solves=%d", solves.Load())
	}
}

func TestAbsorb_MergesCookies(t *testing.T) {
	// WHAT: Response cookies replace same-named cookies, add new ones, and delete expired ones.
	// WHY: The site rotates its clearance cookie on successful responses.
	clk := newClock()
	m := NewManager(Config{TTL: time.Minute, Now: clk.Now}, SolverFunc(func(context.Context) (*Credentials, error) {
		return &Credentials{
			Cookies:   []*http.Cookie{{Name: "a", Value: "1"}, {Name: "b", Value: "1"}},
			UserAgent: "UA",
		}, nil
	}))
	old, _ := m.Token(context.Background(), false)

	clk.Advance(50 * time.Second)
	m.Absorb([]*http.Cookie{{Name: "a", Value: "2"}, {Name: "c", Value: "1"}, {Name: "b", MaxAge: -1}})

	tok := m.Current()
	if tok == nil {
		t.Fatal("no token")
	}
	got := map[string]string{}
	for _, c := range tok.Cookies {
		got[c.Name] = c.Value
	}
	if len(got) != 2 || got["a"] != "2" || got["c"] != "1" {
		t.Errorf("cookies: %v", got)
	}
	if tok.UserAgent != "UA" {
		t.Errorf("user agent lost: %q", tok.UserAgent)
	}
	// The old snapshot is untouched.
	if old.Cookies[0].Value != "1" || len(old.Cookies) != 2 {
		t.Errorf("old token mutated: %+v", old.Cookies)
	}
	// TTL restarted.
	clk.Advance(30 * time.Second)
	if m.Current() == nil {
		t.Error("absorb should restart TTL")
	}
}

func TestAbsorb_CreatesToken(t *testing.T) {
	// WHAT: Absorbing into an empty manager creates a token.
	// WHY: When the browser is unavailable, cookies from plain responses still help.
	m := NewManager(Config{}, nil)
	m.Absorb([]*http.Cookie{{Name: "sid", Value: "x"}})
	if tok := m.Current(); tok == nil || len(tok.Cookies) != 1 {
		t.Errorf("got %+v", tok)
	}
}

func TestApply(t *testing.T) {
	// WHAT: Apply sets cookies and the solver's user agent on a request.
	// WHY: The clearance cookie is bound to the user agent that earned it.
	tok := &Token{Cookies: []*http.Cookie{{Name: "cf_clearance", Value: "abc", Domain: ".x"}}, UserAgent: "UA/1"}
	req, _ := http.NewRequest("GET", "https://x/", nil)
	tok.Apply(req)
	if c, err := req.Cookie("cf_clearance"); err != nil || c.Value != "abc" {
		t.Errorf("cookie: %v %v", c, err)
	}
	if req.Header.Get("User-Agent") != "UA/1" {
		t.Errorf("ua: %q", req.Header.Get("User-Agent"))
	}
	var nilTok *Token
	nilTok.Apply(req)
}
