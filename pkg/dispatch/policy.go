package dispatch

import (
	"fmt"
	"net/url"

	"github.com/gobwas/glob"
)

// URLPolicy restricts navigation targets with glob patterns. Patterns are
// matched against both the full URL and its host; "*" matches any run of
// characters, including "/" and ".".
type URLPolicy struct {
	allowed []glob.Glob
	denied  []glob.Glob
}

// NewURLPolicy compiles the allow and deny lists.
func NewURLPolicy(allowed, denied []string) (*URLPolicy, error) {
	p := &URLPolicy{}

	for _, pattern := range allowed {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed pattern '%s': %w", pattern, err)
		}
		p.allowed = append(p.allowed, g)
	}

	for _, pattern := range denied {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid denied pattern '%s': %w", pattern, err)
		}
		p.denied = append(p.denied, g)
	}

	return p, nil
}

// Check returns ErrURLNotAllowed when rawURL is denied, or when an allow
// list exists and rawURL matches none of it. Denied patterns win.
func (p *URLPolicy) Check(rawURL string) error {
	if p == nil {
		return nil
	}

	var host string
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Hostname()
	}
	matches := func(g glob.Glob) bool {
		return g.Match(rawURL) || (host != "" && g.Match(host))
	}

	for _, g := range p.denied {
		if matches(g) {
			return fmt.Errorf("%w: %s", ErrURLNotAllowed, rawURL)
		}
	}

	if len(p.allowed) == 0 {
		return nil
	}
	for _, g := range p.allowed {
		if matches(g) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrURLNotAllowed, rawURL)
}
