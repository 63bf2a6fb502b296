// Package challenge recognises anti-bot interstitials: status codes and
// page markers that mean "you were served a challenge, not the profile".
package challenge

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMarkers are lowercase byte patterns found on common challenge pages.
var DefaultMarkers = []string{
	"cf-browser-verification",
	"cf-challenge",
	"cf_chl_opt",
	"<title>just a moment...</title>",
	"checking your browser before accessing",
	"attention required! | cloudflare",
	"enable javascript and cookies to continue",
	"ddos-guard",
	"px-captcha",
	"<title>access denied</title>",
}

// Detector matches bodies against a marker list.
type Detector struct {
	markers [][]byte
	policy  *bluemonday.Policy
}

// New creates a Detector. A nil or empty list uses DefaultMarkers.
func New(markers []string) *Detector {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	d := &Detector{policy: bluemonday.StrictPolicy()}
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			d.markers = append(d.markers, []byte(m))
		}
	}
	return d
}

// Match returns the first marker present in body, if any.
func (d *Detector) Match(body []byte) (string, bool) {
	// Challenge pages are small; markers sit in the head. Scanning the first
	// 64 KiB avoids lowering a multi-megabyte profile page.
	head := body
	if len(head) > 64<<10 {
		head = head[:64<<10]
	}
	lower := bytes.ToLower(head)
	for _, m := range d.markers {
		if bytes.Contains(lower, m) {
			return string(m), true
		}
	}
	return "", false
}

// BlockedStatus reports whether an HTTP status means the client was refused
// rather than the resource being missing.
func BlockedStatus(code int) bool {
	switch code {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// Title returns the page's <title>, stripped of markup and trimmed to 80
// runes, for use in log lines and failure reasons.
func (d *Detector) Title(body []byte) string {
	lower := bytes.ToLower(body)
	start := bytes.Index(lower, []byte("<title"))
	if start < 0 {
		return ""
	}
	gt := bytes.IndexByte(lower[start:], '>')
	if gt < 0 {
		return ""
	}
	from := start + gt + 1
	end := bytes.Index(lower[from:], []byte("</title>"))
	if end < 0 {
		return ""
	}
	return d.Sanitize(string(body[from : from+end]))
}

// Sanitize strips all markup from s, collapses whitespace and truncates it.
// Anything scraped from the remote site goes through here before it reaches
// a sink.
func (d *Detector) Sanitize(s string) string {
	s = d.policy.Sanitize(s)
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 80 {
		s = string(r[:80]) + "..."
	}
	return s
}
