package crawl

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"secq/internal/evidence"
)

// WriteCorpus writes pages into one text file under dir and returns it as
// evidence cited by the site URL.
func WriteCorpus(dir, site string, pages []Page) (evidence.File, error) {
	if len(pages) == 0 {
		return evidence.File{}, fmt.Errorf("no pages for %s", site)
	}

	f, err := os.CreateTemp(dir, "secq-site-*.txt")
	if err != nil {
		return evidence.File{}, fmt.Errorf("failed to create corpus file: %w", err)
	}

	blocks := make([]string, len(pages))
	for i, p := range pages {
		blocks[i] = p.Format()
	}
	if _, err := f.WriteString(strings.Join(blocks, "\n\n")); err != nil {
		f.Close()
		os.Remove(f.Name())
		return evidence.File{}, fmt.Errorf("failed to write corpus file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return evidence.File{}, fmt.Errorf("failed to write corpus file: %w", err)
	}

	return evidence.File{
		Path:        f.Name(),
		Name:        corpusName(site),
		SourceURL:   site,
		Fingerprint: evidence.Fingerprint(f.Name()),
	}, nil
}

// corpusName is a stable cache name for a site's corpus.
func corpusName(site string) string {
	u, err := url.Parse(site)
	if err != nil || u.Host == "" {
		return "website.txt"
	}
	name := strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
	name = strings.NewReplacer("/", "_", ":", "_").Replace(name)
	return name + ".txt"
}
