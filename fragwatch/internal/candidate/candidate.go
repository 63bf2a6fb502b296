// Package candidate builds the ordered list of profile URLs tried for a
// player: every mirror host crossed with every path shape for the platform.
package candidate

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// ErrInvalidUsername is returned by ValidateUsername.
var ErrInvalidUsername = errors.New("candidate: invalid username")

// DefaultPaths are tried in order. {game}, {platform} and {id} are substituted.
var DefaultPaths = []string{
	"/{game}/profile/{platform}/{id}/matches",
	"/{game}/profile/{platform}/{id}/overview",
}

var platformAliases = map[string]string{
	"pc":          "steam",
	"xbox":        "xbl",
	"live":        "xbl",
	"playstation": "psn",
	"ps":          "psn",
	"ps4":         "psn",
	"ps5":         "psn",
}

// Config configures the resolver.
type Config struct {
	// Hosts are base URLs, e.g. "https://tracker.gg". Tried in order.
	Hosts []string
	// Paths are path templates. Default: DefaultPaths.
	Paths []string
	// Game is substituted for {game}. Default: "cs2".
	Game string
	// DefaultPlatform is used for an empty or unknown hint. Default: "steam".
	DefaultPlatform string
	// Platforms lists the accepted platform names after alias expansion.
	// Default: steam, xbl, psn, epic.
	Platforms []string
}

func (c *Config) defaults() {
	if len(c.Hosts) == 0 {
		c.Hosts = []string{"https://tracker.gg", "https://www.tracker.gg"}
	}
	if len(c.Paths) == 0 {
		c.Paths = DefaultPaths
	}
	if c.Game == "" {
		c.Game = "cs2"
	}
	if c.DefaultPlatform == "" {
		c.DefaultPlatform = "steam"
	}
	if len(c.Platforms) == 0 {
		c.Platforms = []string{"steam", "xbl", "psn", "epic"}
	}
}

// Resolver is safe for concurrent use; it holds no mutable state.
type Resolver struct {
	cfg       Config
	platforms map[string]bool
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	cfg.defaults()
	known := make(map[string]bool, len(cfg.Platforms))
	for _, p := range cfg.Platforms {
		known[strings.ToLower(p)] = true
	}
	return &Resolver{cfg: cfg, platforms: known}
}

// Platform normalises a platform hint.
func (r *Resolver) Platform(hint string) string {
	p := strings.ToLower(strings.TrimSpace(hint))
	if alias, ok := platformAliases[p]; ok {
		p = alias
	}
	if !r.platforms[p] {
		return r.cfg.DefaultPlatform
	}
	return p
}

// Resolve returns de-duplicated candidate URLs, hosts outermost.
func (r *Resolver) Resolve(username, platform string) []string {
	id := url.PathEscape(strings.TrimSpace(username))
	plat := r.Platform(platform)

	seen := make(map[string]bool)
	var out []string
	for _, host := range r.cfg.Hosts {
		host = strings.TrimRight(host, "/")
		for _, tmpl := range r.cfg.Paths {
			p := strings.NewReplacer("{game}", r.cfg.Game, "{platform}", plat, "{id}", id).Replace(tmpl)
			u := host + p
			if seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// ValidateUsername accepts what profile sites accept for handles: letters,
// digits, spaces and a few separators, at most 64 runes.
func ValidateUsername(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUsername)
	}
	n := 0
	for _, r := range s {
		n++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		switch r {
		case ' ', '_', '-', '.', '#':
			continue
		}
		return fmt.Errorf("%w: character %q", ErrInvalidUsername, r)
	}
	if n > 64 {
		return fmt.Errorf("%w: too long", ErrInvalidUsername)
	}
	// "." and ".." survive PathEscape and would walk the URL path.
	if strings.Trim(s, ".") == "" {
		return fmt.Errorf("%w: dots only", ErrInvalidUsername)
	}
	return nil
}
