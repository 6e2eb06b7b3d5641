package worker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter throttles outbound requests per host. Wikidata and the
// Wikipedia language editions are distinct hosts and get distinct budgets.
type HostLimiter struct {
	mu    sync.RWMutex
	hosts map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

// NewHostLimiter creates a limiter applying rps/burst to every host.
// A non-positive rps disables throttling.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &HostLimiter{
		hosts: make(map[string]*rate.Limiter),
		rps:   limit,
		burst: burst,
	}
}

// Wait blocks until a request to rawURL may proceed or ctx is done
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}
	if err := l.budget(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", host, err)
	}
	return nil
}

// CapHostRate lowers the budget of host to rps, as asked by a robots.txt
// crawl delay. A rate at or above the default is ignored, as is a repeated
// cap at the current rate.
func (l *HostLimiter) CapHostRate(host string, rps float64) {
	limit := rate.Limit(rps)
	if rps <= 0 || limit >= l.rps {
		return
	}
	host = strings.ToLower(host)

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.hosts[host]; ok && b.Limit() <= limit {
		return
	}
	l.hosts[host] = rate.NewLimiter(limit, 1)
}

func (l *HostLimiter) budget(host string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.hosts[host]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.hosts[host]; ok {
		return b
	}
	b = rate.NewLimiter(l.rps, l.burst)
	l.hosts[host] = b
	return b
}

func hostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", rawURL, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	return strings.ToLower(parsed.Host), nil
}
