package crawl

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"

	"secq/internal/logging"
)

// robotsPolicy answers robots.txt checks for the wildcard agent. A nil
// group allows everything.
type robotsPolicy struct {
	group *robotstxt.Group
}

func (r robotsPolicy) allowed(rawURL string) bool {
	if r.group == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return r.group.Test(path)
}

// robotsCache holds one policy per scheme and host, fetched the first time
// a URL on that host is checked.
type robotsCache struct {
	crawler  *Crawler
	policies map[string]robotsPolicy
}

func newRobotsCache(c *Crawler) *robotsCache {
	return &robotsCache{crawler: c, policies: make(map[string]robotsPolicy)}
}

func (rc *robotsCache) allowed(ctx context.Context, u *url.URL) bool {
	origin := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
	policy, ok := rc.policies[origin]
	if !ok {
		policy = rc.crawler.loadRobots(ctx, u)
		rc.policies[origin] = policy
	}
	return policy.allowed(normalize(u))
}

// loadRobots fetches /robots.txt for the site of start. Network errors and
// server errors allow everything; 4xx responses allow everything;
// otherwise the file's "*" group applies.
func (c *Crawler) loadRobots(ctx context.Context, start *url.URL) robotsPolicy {
	robotsURL := start.Scheme + "://" + start.Host + "/robots.txt"

	body, err := c.get(ctx, robotsURL)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
			logging.CrawlDebug("no robots.txt at %s (HTTP %d)", robotsURL, httpErr.StatusCode)
		} else {
			logging.CrawlWarn("couldn't fetch %s, proceeding with caution: %v", robotsURL, err)
		}
		return robotsPolicy{}
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		logging.CrawlWarn("couldn't parse %s, proceeding with caution: %v", robotsURL, err)
		return robotsPolicy{}
	}
	return robotsPolicy{group: data.FindGroup("*")}
}
