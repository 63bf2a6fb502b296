package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type fakeChrome struct {
	launches  atomic.Int32
	shutdowns atomic.Int32
	pings     atomic.Int32
	dead      atomic.Bool
	fail      error
}

func newTestPool(idle time.Duration, fc *fakeChrome) *Pool {
	p := NewPool(Config{IdleTimeout: idle})
	p.launch = func(context.Context) (*rod.Browser, *launcher.Launcher, error) {
		if fc.fail != nil {
			return nil, nil, fc.fail
		}
		fc.launches.Add(1)
		return rod.New(), nil, nil
	}
	p.shutdown = func(*rod.Browser, *launcher.Launcher) { fc.shutdowns.Add(1) }
	p.ping = func(*rod.Browser) error {
		fc.pings.Add(1)
		if fc.dead.Load() {
			return errors.New("websocket: close 1006")
		}
		return nil
	}
	return p
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPool_LazyLaunchAndShare(t *testing.T) {
	// WHAT: The first Acquire launches; concurrent leases share the browser.
	// WHY: One Chrome per process bounds memory.
	fc := &fakeChrome{}
	p := newTestPool(time.Hour, fc)
	defer p.Close()

	if p.Running() {
		t.Fatal("nothing should run before Acquire")
	}
	b1, r1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b2, r2, _ := p.Acquire(context.Background())
	if b1 != b2 || fc.launches.Load() != 1 {
		t.Errorf("expected shared browser, launches=%d", fc.launches.Load())
	}
	r1()
	r2()
}

func TestPool_IdleTeardown(t *testing.T) {
	// WHAT: After the last release and IdleTimeout, Chrome is shut down.
	// WHY: A browser left running between daily ticks wastes hundreds of MB.
	fc := &fakeChrome{}
	p := newTestPool(20*time.Millisecond, fc)
	defer p.Close()

	_, release, _ := p.Acquire(context.Background())
	release()
	release() // second call is a no-op

	waitFor(t, func() bool { return fc.shutdowns.Load() == 1 })
	if p.Running() {
		t.Error("browser should be down")
	}

	// Next lease relaunches.
	_, release, _ = p.Acquire(context.Background())
	defer release()
	if fc.launches.Load() != 2 {
		t.Errorf("launches=%d, want 2", fc.launches.Load())
	}
}

func TestPool_LeaseCancelsIdleTimer(t *testing.T) {
	// WHAT: A lease taken before the idle timer fires keeps the browser alive.
	// WHY: Teardown must never pull Chrome from under an active refresh.
	fc := &fakeChrome{}
	p := newTestPool(30*time.Millisecond, fc)
	defer p.Close()

	_, r1, _ := p.Acquire(context.Background())
	r1()
	_, r2, _ := p.Acquire(context.Background())
	time.Sleep(80 * time.Millisecond)
	if fc.shutdowns.Load() != 0 {
		t.Error("browser torn down while leased")
	}
	r2()
	waitFor(t, func() bool { return fc.shutdowns.Load() == 1 })
}

func TestPool_StaleTimerIgnored(t *testing.T) {
	// WHAT: A timer armed before a newer lease cycle does not reap.
	// WHY: AfterFunc may already be running when Stop is called.
	fc := &fakeChrome{}
	p := newTestPool(time.Hour, fc)
	defer p.Close()

	_, r, _ := p.Acquire(context.Background())
	r()
	p.mu.Lock()
	stale := p.gen - 1
	p.mu.Unlock()
	p.reap(stale)
	if fc.shutdowns.Load() != 0 {
		t.Error("stale reap should be ignored")
	}
}

func TestPool_ConcurrentAcquireRelease(t *testing.T) {
	// WHAT: Many goroutines leasing and releasing never launch twice concurrently.
	// WHY: Acquire during teardown must be race-free (run with -race).
	fc := &fakeChrome{}
	p := newTestPool(time.Millisecond, fc)
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, r, err := p.Acquire(context.Background())
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				time.Sleep(time.Millisecond)
				r()
			}
		}()
	}
	wg.Wait()
	if d := fc.launches.Load() - fc.shutdowns.Load(); d < 0 || d > 1 {
		t.Errorf("launches=%d shutdowns=%d", fc.launches.Load(), fc.shutdowns.Load())
	}
}

func TestPool_DeadBrowserRelaunched(t *testing.T) {
	// WHAT: A browser that stops answering is shut down and the next lease gets a fresh one.
	// WHY: A crashed Chrome would otherwise fail every session refresh until restart.
	fc := &fakeChrome{}
	p := newTestPool(time.Hour, fc)
	defer p.Close()

	b1, r1, _ := p.Acquire(context.Background())
	r1()
	fc.dead.Store(true)

	b2, r2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer r2()
	if b2 == b1 || fc.launches.Load() != 2 || fc.shutdowns.Load() != 1 {
		t.Errorf("same=%v launches=%d shutdowns=%d", b2 == b1, fc.launches.Load(), fc.shutdowns.Load())
	}
}

func TestPool_CheckDiscardsDuringLease(t *testing.T) {
	// WHAT: Check on a dead leased browser discards it; release then arms no idle timer.
	// WHY: Failed solves keep leasing and releasing, which would re-arm the idle timer forever.
	fc := &fakeChrome{}
	p := newTestPool(20*time.Millisecond, fc)
	defer p.Close()

	b, release, _ := p.Acquire(context.Background())
	if !p.Check(b) {
		t.Fatal("live browser reported dead")
	}
	fc.dead.Store(true)
	if p.Check(b) {
		t.Fatal("dead browser reported live")
	}
	if p.Running() || fc.shutdowns.Load() != 1 {
		t.Fatalf("running=%v shutdowns=%d", p.Running(), fc.shutdowns.Load())
	}
	release()
	p.Discard(b, errors.New("again")) // stale handle: no-op
	time.Sleep(60 * time.Millisecond)
	if fc.shutdowns.Load() != 1 {
		t.Errorf("shutdowns=%d, want 1", fc.shutdowns.Load())
	}

	fc.dead.Store(false)
	_, r2, _ := p.Acquire(context.Background())
	r2()
	if fc.launches.Load() != 2 {
		t.Errorf("launches=%d, want 2", fc.launches.Load())
	}
}

func TestPool_LaunchFailureAndClose(t *testing.T) {
	// WHAT: Launch errors propagate; Acquire after Close fails with ErrClosed.
	// WHY: The session manager maps both to ErrUnavailable.
	fc := &fakeChrome{fail: errors.New("no chrome")}
	p := newTestPool(time.Hour, fc)
	if _, _, err := p.Acquire(context.Background()); err == nil {
		t.Error("expected launch error")
	}
	p.Close()
	if _, _, err := p.Acquire(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v", err)
	}
}

func TestConvertCookies(t *testing.T) {
	// WHAT: CDP cookies become http.Cookies; session cookies keep a zero Expires.
	// WHY: Cookies are replayed by the plain HTTP fetcher.
	in := []*proto.NetworkCookie{
		{Name: "cf_clearance", Value: "abc", Domain: ".tracker.gg", Path: "/", Expires: 1760000000, Secure: true, HTTPOnly: true},
		{Name: "sid", Value: "x", Expires: -1},
		{Name: ""},
		nil,
	}
	out := convertCookies(in)
	if len(out) != 2 {
		t.Fatalf("got %d cookies", len(out))
	}
	if out[0].Expires.Unix() != 1760000000 || !out[0].Secure || !out[0].HttpOnly {
		t.Errorf("first: %+v", out[0])
	}
	if !out[1].Expires.IsZero() {
		t.Errorf("session cookie expires: %v", out[1].Expires)
	}
}

func TestBlocked(t *testing.T) {
	// WHAT: Configured resource types are blocked, scripts never are.
	// WHY: Challenges run JavaScript; blocking it would make them unsolvable.
	block := map[string]bool{"images": true, "fonts": true, "script": true}
	if !blocked(block, "Image") || !blocked(block, "Font") {
		t.Error("images and fonts should be blocked")
	}
	if blocked(block, "Script") || blocked(block, "Document") || blocked(block, "Stylesheet") {
		t.Error("script, document and unconfigured stylesheet must pass")
	}
}

func TestSolve_NoURL(t *testing.T) {
	// WHAT: A solver without a target URL fails before touching the pool.
	// WHY: Misconfiguration must not launch Chrome.
	fc := &fakeChrome{}
	p := newTestPool(time.Hour, fc)
	defer p.Close()
	s := NewSolver(p, SolverConfig{})
	if _, err := s.Solve(context.Background()); err == nil {
		t.Error("expected error")
	}
	if fc.launches.Load() != 0 {
		t.Error("pool should not launch")
	}
}
