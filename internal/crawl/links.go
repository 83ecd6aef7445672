package crawl

import (
	"bytes"
	"context"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"
)

// links fetches pageURL and returns its absolute http(s) anchors.
func (c *Crawler) links(ctx context.Context, pageURL string) ([]*url.URL, error) {
	body, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return extractLinks(doc, base), nil
}

func extractLinks(doc *html.Node, base *url.URL) []*url.URL {
	var out []*url.URL
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				href := strings.TrimSpace(attr.Val)
				if href == "" || strings.HasPrefix(href, "#") {
					continue
				}
				ref, err := url.Parse(href)
				if err != nil {
					continue
				}
				abs := base.ResolveReference(ref)
				if abs.Scheme == "http" || abs.Scheme == "https" {
					out = append(out, abs)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return out
}

// normalize drops query and fragment, lower-cases scheme and host and
// trims a trailing slash from non-root paths.
func normalize(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

// siteKey is the registrable domain (eTLD+1) of u. Hosts without a public
// suffix, such as IPs and localhost, compare by host and port.
func siteKey(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) != nil {
		return strings.ToLower(u.Host)
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}
	return strings.ToLower(u.Host)
}
