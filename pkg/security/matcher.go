package security

import (
	"fmt"
	"net/url"

	"github.com/gobwas/glob"
)

// URLMatcher handles glob pattern matching for navigation targets. A pattern
// matches when it matches either the full URL or its host, so both
// "https://shop.example.com/*" and "*.example.com" work.
type URLMatcher struct {
	allowed []glob.Glob
	denied  []glob.Glob
}

// NewURLMatcher compiles allow and deny patterns.
func NewURLMatcher(allowed, denied []string) (*URLMatcher, error) {
	m := &URLMatcher{}
	for _, pattern := range allowed {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed url pattern '%s': %w", pattern, err)
		}
		m.allowed = append(m.allowed, g)
	}
	for _, pattern := range denied {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid denied url pattern '%s': %w", pattern, err)
		}
		m.denied = append(m.denied, g)
	}
	return m, nil
}

// IsAllowed returns true if u passes the pattern rules. Denied patterns take
// precedence; with no allowed patterns everything not denied is allowed.
func (m *URLMatcher) IsAllowed(u *url.URL) bool {
	full := u.String()
	host := u.Hostname()

	for _, g := range m.denied {
		if g.Match(full) || g.Match(host) {
			return false
		}
	}
	if len(m.allowed) == 0 {
		return true
	}
	for _, g := range m.allowed {
		if g.Match(full) || g.Match(host) {
			return true
		}
	}
	return false
}
