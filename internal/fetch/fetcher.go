package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ppiankov/dares/internal/cache"
	"github.com/ppiankov/dares/internal/metrics"
	"github.com/ppiankov/dares/internal/model"
	"github.com/ppiankov/dares/internal/util"
	"github.com/ppiankov/dares/internal/worker"
)

// ErrDisallowed is returned when robots.txt forbids a URL
var ErrDisallowed = errors.New("disallowed by robots.txt")

// StatusError reports a non-2xx response
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s (%s)", e.Status, e.URL)
}

// NotFound reports whether the resource does not exist
func (e *StatusError) NotFound() bool {
	return e.Code == http.StatusNotFound
}

// Response is a fetched body with the metadata needed to decode it
type Response struct {
	Body        []byte
	ContentType string
}

// Options configures a Fetcher
type Options struct {
	Timeout       time.Duration
	UserAgent     string
	MaxBytes      int64
	HTTPProxy     string
	HTTPSProxy    string
	NoProxy       string
	RespectRobots bool
	Limiter       *worker.HostLimiter
	Cache         cache.Cache // Each layer applies its own TTL
}

// OptionsFromConfig maps the run configuration onto fetcher options
func OptionsFromConfig(cfg *model.Config, c cache.Cache) Options {
	return Options{
		Timeout:       cfg.HTTP.Timeout,
		UserAgent:     cfg.HTTP.UserAgent,
		MaxBytes:      cfg.HTTP.MaxBodyBytes,
		HTTPProxy:     cfg.HTTP.HTTPProxy,
		HTTPSProxy:    cfg.HTTP.HTTPSProxy,
		NoProxy:       cfg.HTTP.NoProxy,
		RespectRobots: cfg.HTTP.RespectRobots,
		Limiter:       worker.NewHostLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize),
		Cache:         c,
	}
}

// Fetcher performs throttled GETs. Failures are returned as-is; callers
// decide whether a failed unit is dropped.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	limiter    *worker.HostLimiter
	robots     *util.RobotsChecker
	cache      cache.Cache
}

// New creates a Fetcher
func New(opts Options) *Fetcher {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10_000_000
	}
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}

	client := &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			Proxy:               util.NewProxyFunc(opts.HTTPProxy, opts.HTTPSProxy, opts.NoProxy),
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		},
	}

	f := &Fetcher{
		httpClient: client,
		userAgent:  opts.UserAgent,
		maxBytes:   opts.MaxBytes,
		limiter:    opts.Limiter,
		cache:      opts.Cache,
	}
	if opts.RespectRobots {
		f.robots = util.NewRobotsChecker(client, opts.UserAgent)
	}
	return f
}

// Fetch retrieves rawURL without caching
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if f.robots != nil {
		allowed, delay, err := f.robots.Allowed(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		if delay > 0 && f.limiter != nil {
			if u, err := url.Parse(rawURL); err == nil {
				f.limiter.CapHostRate(u.Host, 1/delay.Seconds())
			}
		}
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")

	host := req.URL.Host
	resp, err := f.httpClient.Do(req)
	if err != nil {
		metrics.RecordRequest(host, 0)
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordRequest(host, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", rawURL, err)
	}

	return &Response{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// Get retrieves the body of rawURL without caching
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetJSON decodes the JSON document at rawURL into v. Successful bodies
// are cached; a cached body that no longer decodes is refetched.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, v any) error {
	key := cache.Key(rawURL)
	if body, ok := f.cache.Get(key); ok {
		metrics.RecordCacheLookup(true)
		if err := json.Unmarshal(body, v); err == nil {
			return nil
		}
		_ = f.cache.Delete(key)
	} else {
		metrics.RecordCacheLookup(false)
	}

	body, err := f.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	_ = f.cache.Set(key, body, 0)
	return nil
}
