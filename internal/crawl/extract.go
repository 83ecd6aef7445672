package crawl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"secq/internal/logging"
)

// Page is the extracted text content of one crawled URL.
type Page struct {
	Title string
	URL   string
	Text  string
}

// Format renders the page as a corpus block.
func (p Page) Format() string {
	return fmt.Sprintf("# %s\nURL: %s\n\n%s\n", p.Title, p.URL, p.Text)
}

// Elements that carry navigation or code rather than content.
const boilerplate = "script, style, nav, footer, header, iframe, noscript"

// Extract fetches each URL and converts its main content to markdown.
// Pages that fail to load or parse are skipped.
func (c *Crawler) Extract(ctx context.Context, urls []string) []Page {
	converter := md.NewConverter("", true, nil)

	var pages []Page
	for i, u := range urls {
		if i > 0 {
			if err := sleep(ctx, c.opts.ExtractDelay); err != nil {
				break
			}
		}

		page, err := c.extractOne(ctx, converter, u)
		if err != nil {
			logging.CrawlWarn("error processing %s: %v", u, err)
			continue
		}
		logging.CrawlDebug("processed %q (%d chars)", page.Title, len(page.Text))
		pages = append(pages, page)
	}
	return pages
}

func (c *Crawler) extractOne(ctx context.Context, converter *md.Converter, pageURL string) (Page, error) {
	body, err := c.get(ctx, pageURL)
	if err != nil {
		return Page{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parsing html: %w", err)
	}
	return pageFromDocument(converter, doc, pageURL), nil
}

func pageFromDocument(converter *md.Converter, doc *goquery.Document, pageURL string) Page {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = "No title"
	}

	doc.Find(boilerplate).Remove()

	content := doc.Find("body")
	if content.Length() == 0 {
		content = doc.Selection
	}
	text := strings.TrimSpace(converter.Convert(content))

	return Page{Title: title, URL: pageURL, Text: text}
}

// FetchSite crawls site (or takes just the start page when crawl is false)
// and extracts every page. A crawl that finds nothing falls back to the
// start page unless robots.txt forbids it.
func (c *Crawler) FetchSite(ctx context.Context, site string, crawl bool, maxPages int) ([]Page, error) {
	urls := []string{site}
	if crawl {
		found, err := c.Crawl(ctx, site, maxPages)
		if errors.Is(err, ErrDisallowed) {
			return nil, err
		}
		if err != nil && ctx.Err() != nil {
			return nil, err
		}
		if len(found) > 0 {
			urls = found
		} else {
			logging.CrawlWarn("no pages found crawling %s, using only the provided URL", site)
		}
	}

	pages := c.Extract(ctx, urls)
	if len(pages) == 0 {
		return nil, fmt.Errorf("no content fetched from %s", site)
	}
	return pages, nil
}
