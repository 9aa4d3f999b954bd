// Package fetch provides polite HTTP fetching for discovery adapters: every
// request passes a per-host rate limiter, an optional domain allowlist and a
// robots.txt gate before touching the network.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/jonathan/job-discovery/internal/ratelimit"
)

// DefaultUserAgent identifies the crawler to third-party origins.
const DefaultUserAgent = "JobDiscoveryBot/1.0"

// Result holds the response from a URL fetch.
type Result struct {
	URL         string
	Body        []byte
	ContentType string
	StatusCode  int
}

// HTML returns the body as a string.
func (r *Result) HTML() string {
	return string(r.Body)
}

// Error represents a fetch failure for one URL.
type Error struct {
	URL        string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// DisallowedError reports a URL that policy forbids fetching: not HTTPS, not
// on the allowlist, or disallowed by robots.txt. Callers treat it as a skip,
// not a failure.
type DisallowedError struct {
	URL    string
	Reason string
}

func (e *DisallowedError) Error() string {
	return fmt.Sprintf("fetch disallowed for %s: %s", e.URL, e.Reason)
}

// Options configures a Client.
type Options struct {
	Timeout        time.Duration
	UserAgent      string
	AllowedDomains []string // empty means any host
	CheckRobots    bool
	Limiter        *ratelimit.PerHost // required
}

// Client issues rate-limited HTTP requests with a single retry on transient
// failures. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	userAgent  string
	allowed    map[string]bool
	check      bool
	limiter    *ratelimit.PerHost

	robotsMu sync.Mutex
	robots   map[string]*robotstxt.RobotsData // keyed by host; nil entry = allow all
}

// NewClient constructs a Client from opts.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	allowed := make(map[string]bool, len(opts.AllowedDomains))
	for _, domain := range opts.AllowedDomains {
		allowed[strings.ToLower(domain)] = true
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		userAgent:  opts.UserAgent,
		allowed:    allowed,
		check:      opts.CheckRobots,
		limiter:    opts.Limiter,
		robots:     make(map[string]*robotstxt.RobotsData),
	}
}

// Get fetches urlStr after policy and rate-limit checks. Timeouts and 5xx
// responses are retried once, then surfaced as *Error. Policy violations
// return *DisallowedError without any network call to the target.
func (c *Client) Get(ctx context.Context, urlStr string) (*Result, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &Error{URL: urlStr, Message: "invalid URL", Cause: err}
	}

	if err := c.checkPolicy(ctx, parsed); err != nil {
		return nil, err
	}

	result, err := c.do(ctx, urlStr, parsed.Host)
	if err != nil && isTransient(err) {
		result, err = c.do(ctx, urlStr, parsed.Host)
	}
	return result, err
}

// GetJSON fetches urlStr and decodes the response body into v.
func (c *Client) GetJSON(ctx context.Context, urlStr string, v any) error {
	result, err := c.Get(ctx, urlStr)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result.Body, v); err != nil {
		return &Error{URL: urlStr, Message: "invalid JSON", StatusCode: result.StatusCode, Cause: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, urlStr, host string) (*Result, error) {
	if err := c.limiter.Acquire(ctx, host); err != nil {
		return nil, &Error{URL: urlStr, Message: "rate limiter interrupted", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to read response body", Cause: err}
	}

	result := &Result{
		URL:         urlStr,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}
	if resp.StatusCode != http.StatusOK {
		return result, &Error{
			URL:        urlStr,
			Message:    fmt.Sprintf("HTTP status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
	return result, nil
}

// checkPolicy enforces scheme, allowlist and robots.txt for the target URL.
func (c *Client) checkPolicy(ctx context.Context, parsed *url.URL) error {
	host := strings.ToLower(parsed.Host)

	if len(c.allowed) > 0 {
		if parsed.Scheme != "https" {
			return &DisallowedError{URL: parsed.String(), Reason: "only https is allowed"}
		}
		if !c.allowed[host] {
			return &DisallowedError{URL: parsed.String(), Reason: fmt.Sprintf("host %s not in allowlist", host)}
		}
	}

	if !c.check {
		return nil
	}

	group := c.robotsGroup(ctx, parsed.Scheme, host)
	if group != nil && !group.Test(parsed.Path) {
		return &DisallowedError{URL: parsed.String(), Reason: "disallowed by robots.txt"}
	}
	return nil
}

// robotsGroup fetches and caches robots.txt for a host. Fetch failures are
// treated as allow-all; a nil return means no restrictions apply.
func (c *Client) robotsGroup(ctx context.Context, scheme, host string) *robotstxt.Group {
	c.robotsMu.Lock()
	data, cached := c.robots[host]
	c.robotsMu.Unlock()

	if !cached {
		data = c.fetchRobots(ctx, scheme, host)
		c.robotsMu.Lock()
		c.robots[host] = data
		c.robotsMu.Unlock()
	}

	if data == nil {
		return nil
	}
	return data.FindGroup(c.userAgent)
}

func (c *Client) fetchRobots(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)

	result, err := c.do(ctx, robotsURL, host)
	if err != nil || result.StatusCode != http.StatusOK {
		return nil
	}

	data, err := robotstxt.FromBytes(result.Body)
	if err != nil {
		return nil
	}
	return data
}

// isTransient reports whether a fetch failure is worth one retry: a network
// or timeout error, or a 5xx response.
func isTransient(err error) bool {
	fetchErr, ok := err.(*Error)
	if !ok {
		return false
	}
	if fetchErr.StatusCode >= 500 {
		return true
	}
	return fetchErr.StatusCode == 0 && fetchErr.Cause != nil && fetchErr.Message == "HTTP request failed"
}
