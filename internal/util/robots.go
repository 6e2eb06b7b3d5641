package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsChecker answers robots.txt questions for the hosts the fetcher visits.
// Rules are fetched once per host and kept for the life of the checker.
type RobotsChecker struct {
	client *http.Client
	agent  string

	mu    sync.Mutex
	hosts map[string]*robotstxt.Group
}

// NewRobotsChecker creates a checker using client for robots.txt requests
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsChecker{
		client: client,
		agent:  userAgent,
		hosts:  make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether rawURL may be fetched and the crawl delay the host asks for.
// An unreachable or unparsable robots.txt allows everything.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}

	group := r.group(ctx, parsed)
	if group == nil {
		return true, 0, nil
	}
	path := parsed.EscapedPath()
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return group.Test(path), group.CrawlDelay, nil
}

func (r *RobotsChecker) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	host := strings.ToLower(u.Host)

	r.mu.Lock()
	g, ok := r.hosts[host]
	r.mu.Unlock()
	if ok {
		return g
	}

	g = r.fetch(ctx, u.Scheme+"://"+u.Host+"/robots.txt")

	r.mu.Lock()
	r.hosts[host] = g
	r.mu.Unlock()
	return g
}

func (r *RobotsChecker) fetch(ctx context.Context, robotsURL string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.agent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(ProductToken(r.agent))
}

// ProductToken extracts the robots.txt product token from a user agent,
// e.g. "dares/0.1 (+https://...)" -> "dares"
func ProductToken(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) == 0 {
		return ua
	}
	return strings.Split(parts[0], "/")[0]
}
