// Package crawl collects website pages as evidence. It honors robots.txt,
// stays on the start URL's registrable domain and paces its requests.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"secq/internal/logging"
)

// ErrDisallowed is returned when robots.txt forbids the start URL.
var ErrDisallowed = errors.New("disallowed by robots.txt")

const (
	defaultUserAgent = "secq/1.0 (+https://github.com/secq)"
	maxBodyBytes     = 5 << 20
)

// HTTPError reports a non-200 response.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// Options configures a Crawler. Zero durations disable pacing.
type Options struct {
	Delay        time.Duration // between crawl fetches
	ExtractDelay time.Duration // between content fetches
	UserAgent    string
	Client       *http.Client
}

// Crawler fetches pages over HTTP. It is safe to reuse across sites but
// not for concurrent crawls.
type Crawler struct {
	client *http.Client
	opts   Options
}

func New(opts Options) *Crawler {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Crawler{client: client, opts: opts}
}

// Crawl walks same-site links breadth-first from start and returns the
// visited URLs in visit order, at most maxPages of them. A page that
// fails to load is still visited but contributes no links.
func (c *Crawler) Crawl(ctx context.Context, start string, maxPages int) ([]string, error) {
	startURL, err := parseHTTPURL(start)
	if err != nil {
		return nil, err
	}
	if maxPages < 1 {
		return nil, nil
	}

	robots := newRobotsCache(c)
	startKey := normalize(startURL)
	if !robots.allowed(ctx, startURL) {
		logging.CrawlWarn("access to %s is disallowed by robots.txt", start)
		return nil, fmt.Errorf("%s: %w", start, ErrDisallowed)
	}

	site := siteKey(startURL)
	f := newFrontier(startKey)
	var visited []string

	logging.Crawl("crawling %s (max %d pages)", startURL.Host, maxPages)
	for len(visited) < maxPages {
		current, ok := f.next()
		if !ok {
			break
		}
		if len(visited) > 0 {
			if err := sleep(ctx, c.opts.Delay); err != nil {
				return visited, err
			}
		}
		visited = append(visited, current)
		logging.CrawlDebug("crawling %s (%d queued)", current, f.len())

		links, err := c.links(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				return visited, ctx.Err()
			}
			logging.CrawlWarn("error getting links from %s: %v", current, err)
			continue
		}
		for _, l := range links {
			if siteKey(l) != site {
				continue
			}
			key := normalize(l)
			if !robots.allowed(ctx, l) {
				logging.CrawlDebug("skipping %s - disallowed by robots.txt", key)
				continue
			}
			f.push(key)
		}
	}

	logging.Crawl("crawl of %s complete: %d pages", startURL.Host, len(visited))
	return visited, nil
}

func (c *Crawler) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: want absolute http(s)", raw)
	}
	return u, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
