package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultCooldown is how long a failed proxy is skipped.
const DefaultCooldown = 5 * time.Minute

// Pool rotates through outbound proxies, skipping ones that failed recently.
type Pool struct {
	proxies  []*url.URL
	index    int
	cooldown time.Duration
	failed   map[string]time.Time
	now      func() time.Time
	mu       sync.Mutex
}

// NewPool parses the proxy URLs (http, https or socks5) and builds a Pool.
// An empty list yields a nil Pool, which hands out no proxy.
func NewPool(rawProxies []string, cooldown time.Duration) (*Pool, error) {
	if len(rawProxies) == 0 {
		return nil, nil
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	proxies := make([]*url.URL, 0, len(rawProxies))
	for _, raw := range rawProxies {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", raw, err)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, fmt.Errorf("invalid proxy %q: unsupported scheme %q", raw, u.Scheme)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q: missing host", raw)
		}
		proxies = append(proxies, u)
	}

	return &Pool{
		proxies:  proxies,
		cooldown: cooldown,
		failed:   make(map[string]time.Time),
		now:      time.Now,
	}, nil
}

// Next returns the next healthy proxy. When every proxy is cooling down it
// returns the next one in rotation anyway.
func (p *Pool) Next() *url.URL {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.index
	for {
		candidate := p.proxies[p.index]
		p.index = (p.index + 1) % len(p.proxies)

		failTime, failed := p.failed[candidate.String()]
		if !failed {
			return candidate
		}
		if p.now().Sub(failTime) >= p.cooldown {
			delete(p.failed, candidate.String())
			return candidate
		}
		if p.index == start {
			return candidate
		}
	}
}

// MarkFailed puts a proxy into cool-down
func (p *Pool) MarkFailed(u *url.URL) {
	if p == nil || u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[u.String()] = p.now()
}

// MarkHealthy clears the failure status of a proxy
func (p *Pool) MarkHealthy(u *url.URL) {
	if p == nil || u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failed, u.String())
}

// Size returns the number of configured proxies.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return len(p.proxies)
}

type ctxKey struct{}

// WithProxy records the proxy chosen for a request.
func WithProxy(ctx context.Context, u *url.URL) context.Context {
	if u == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromRequest is an http.Transport Proxy function that uses the proxy
// recorded with WithProxy, or the environment's proxy settings otherwise.
func FromRequest(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(ctxKey{}).(*url.URL); ok {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}
