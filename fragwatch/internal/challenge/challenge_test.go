package challenge

import (
	"strings"
	"testing"
)

func TestMatch_DefaultMarkers(t *testing.T) {
	// WHAT: A Cloudflare interstitial is recognised case-insensitively.
	// WHY: A 200 with a challenge body must not be parsed as an empty profile.
	d := New(nil)
	body := []byte(`<html><head><TITLE>Just a moment...</TITLE></head><body><div id="cf-challenge-running"></div></body></html>`)
	m, ok := d.Match(body)
	if !ok {
		t.Fatal("expected a match")
	}
	if m == "" {
		t.Error("marker should be reported")
	}
}

func TestMatch_ProfilePage(t *testing.T) {
	// WHAT: A normal profile page does not match.
	// WHY: False positives would burn the retry budget on good pages.
	d := New(nil)
	body := []byte(`<html><head><title>neo - CS2 Profile</title></head><body><div class="matches">Oct 14</div></body></html>`)
	if m, ok := d.Match(body); ok {
		t.Errorf("unexpected match %q", m)
	}

	// Cloudflare's JS detection beacon ships on ordinary pages.
	beacon := []byte(`<html><head><title>neo - CS2 Profile</title></head><body><div class="matches">Oct 14</div>` +
		`<script>(function(){var a=document.createElement('script');a.nonce='';` +
		`a.src='/cdn-cgi/challenge-platform/scripts/jsd/main.js';` +
		`window.__CF$cv$params={r:'8f1c2a',t:'MTcyOTA='};document.head.appendChild(a);})();</script>` +
		`</body></html>`)
	if m, ok := d.Match(beacon); ok {
		t.Errorf("beacon page matched %q", m)
	}
}

func TestMatch_CustomMarkers(t *testing.T) {
	// WHAT: Configured markers replace the defaults.
	// WHY: Sites change vendors; markers are configuration.
	d := New([]string{"  Robot-Check  "})
	if _, ok := d.Match([]byte("<div class=robot-check>")); !ok {
		t.Error("custom marker not matched")
	}
	if _, ok := d.Match([]byte("<title>Just a moment...</title>")); ok {
		t.Error("default markers should be replaced")
	}
}

func TestBlockedStatus(t *testing.T) {
	// WHAT: 403, 429 and 503 are blocked; 404 and 500 are not.
	// WHY: Blocked responses trigger a session refresh, others only back off.
	for code, want := range map[int]bool{403: true, 429: true, 503: true, 404: false, 500: false, 200: false} {
		if got := BlockedStatus(code); got != want {
			t.Errorf("%d: got %v", code, got)
		}
	}
}

func TestTitle_Sanitized(t *testing.T) {
	// WHAT: Titles are stripped of markup, whitespace-collapsed and truncated.
	// WHY: Titles end up in user-facing failure reasons.
	d := New(nil)
	body := []byte("<title>\n  Access <b>denied</b><script>x()</script>  </title>")
	if got := d.Title(body); got != "Access denied" {
		t.Errorf("got %q", got)
	}
	long := "<title>" + strings.Repeat("a", 200) + "</title>"
	if got := d.Title([]byte(long)); len([]rune(got)) != 83 {
		t.Errorf("len %d", len([]rune(got)))
	}
	if got := d.Title([]byte("<html>no title</html>")); got != "" {
		t.Errorf("got %q", got)
	}
}
