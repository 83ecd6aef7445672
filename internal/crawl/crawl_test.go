package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// site serves a fixed set of HTML pages and records page requests.
type site struct {
	mu         sync.Mutex
	pages      map[string]string
	robots     string
	hits       []string
	times      []time.Time
	robotsHits int
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/robots.txt" {
		s.mu.Lock()
		s.robotsHits++
		s.mu.Unlock()
		if s.robots == "" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, s.robots)
		return
	}

	s.mu.Lock()
	s.hits = append(s.hits, r.URL.Path)
	s.times = append(s.times, time.Now())
	s.mu.Unlock()

	body, ok := s.pages[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, body)
}

func (s *site) pageHits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hits...)
}

func (s *site) robotsCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.robotsHits
}

func (s *site) gaps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for i := 1; i < len(s.times); i++ {
		out = append(out, s.times[i].Sub(s.times[i-1]))
	}
	return out
}

// hosts routes requests to a site by Host header.
type hosts map[string]*site

func (h hosts) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s, ok := h[r.Host]
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.ServeHTTP(w, r)
}

// redirectTransport sends every request to target, keeping the original
// Host header.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func linksPage(title string, hrefs ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body>", title)
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, h, h)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newSite(t *testing.T, s *site) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

func paths(t *testing.T, urls []string) []string {
	t.Helper()
	var out []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		out = append(out, u.Path)
	}
	return out
}

func TestCrawl_BreadthFirstAndSameSite(t *testing.T) {
	s := &site{pages: map[string]string{
		"/":      linksPage("home", "/a", "/b", "https://elsewhere.example.org/x", "mailto:sec@example.com"),
		"/a":     linksPage("a", "/a/deep", "/b?utm=1", "/#top"),
		"/b":     linksPage("b", "/b/", "/a#section"),
		"/a/deep": linksPage("deep"),
	}}
	srv := newSite(t, s)

	got, err := New(Options{}).Crawl(context.Background(), srv.URL+"/", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"/", "/a", "/b", "/a/deep"}, paths(t, got))
	assert.ElementsMatch(t, []string{"/", "/a", "/b", "/a/deep"}, s.pageHits(), "each page fetched once")
}

func TestCrawl_TerminatesOnCycles(t *testing.T) {
	s := &site{pages: map[string]string{
		"/a": linksPage("a", "/b"),
		"/b": linksPage("b", "/c"),
		"/c": linksPage("c", "/a"),
	}}
	srv := newSite(t, s)

	got, err := New(Options{}).Crawl(context.Background(), srv.URL+"/a", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, paths(t, got))

	got, err = New(Options{}).Crawl(context.Background(), srv.URL+"/a", 50)
	require.NoError(t, err)
	assert.Len(t, got, 3, "cycle exhausts the frontier")
}

func TestCrawl_RobotsDisallowsStart(t *testing.T) {
	s := &site{
		robots: "User-agent: *\nDisallow: /\n",
		pages:  map[string]string{"/": linksPage("home", "/a")},
	}
	srv := newSite(t, s)

	got, err := New(Options{}).Crawl(context.Background(), srv.URL+"/", 10)
	assert.ErrorIs(t, err, ErrDisallowed)
	assert.Empty(t, got)
	assert.Empty(t, s.pageHits(), "no page may be fetched")

	pages, err := New(Options{}).FetchSite(context.Background(), srv.URL+"/", true, 10)
	assert.ErrorIs(t, err, ErrDisallowed)
	assert.Empty(t, pages)
	assert.Empty(t, s.pageHits())
}

func TestCrawl_RobotsSkipsDisallowedLinks(t *testing.T) {
	s := &site{
		robots: "User-agent: *\nDisallow: /private\n",
		pages: map[string]string{
			"/":        linksPage("home", "/private/keys", "/public"),
			"/public":  linksPage("public"),
			"/private/keys": linksPage("secret"),
		},
	}
	srv := newSite(t, s)

	got, err := New(Options{}).Crawl(context.Background(), srv.URL+"/", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/public"}, paths(t, got))
	assert.NotContains(t, s.pageHits(), "/private/keys")
}

func TestCrawl_RobotsPerHost(t *testing.T) {
	www := &site{pages: map[string]string{
		"/": linksPage("home",
			"http://trust.example.com/secret",
			"http://trust.example.com/public",
			"http://docs.example.com/guide",
			"http://docs.example.com/setup"),
	}}
	trust := &site{
		robots: "User-agent: *\nDisallow: /secret\n",
		pages: map[string]string{
			"/secret": linksPage("secret"),
			"/public": linksPage("public"),
		},
	}
	docs := &site{
		robots: "User-agent: *\nDisallow: /setup\n",
		pages: map[string]string{
			"/guide": linksPage("guide"),
			"/setup": linksPage("setup"),
		},
	}
	srv := httptest.NewServer(hosts{
		"www.example.com":   www,
		"trust.example.com": trust,
		"docs.example.com":  docs,
	})
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	c := New(Options{Client: &http.Client{Transport: redirectTransport{target: target}}})
	got, err := c.Crawl(context.Background(), "http://www.example.com/", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"http://www.example.com/",
		"http://trust.example.com/public",
		"http://docs.example.com/guide",
	}, got)
	assert.Equal(t, []string{"/public"}, trust.pageHits())
	assert.Equal(t, []string{"/guide"}, docs.pageHits())
	assert.Equal(t, 1, trust.robotsCount(), "robots.txt loaded once per host")
	assert.Equal(t, 1, docs.robotsCount())
}

func TestCrawl_Pacing(t *testing.T) {
	const delay = 40 * time.Millisecond
	s := &site{pages: map[string]string{
		"/":  linksPage("home", "/a", "/b"),
		"/a": linksPage("a"),
		"/b": linksPage("b"),
	}}
	srv := newSite(t, s)

	got, err := New(Options{Delay: delay}).Crawl(context.Background(), srv.URL+"/", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	gaps := s.gaps()
	require.Len(t, gaps, 2)
	for _, g := range gaps {
		assert.GreaterOrEqual(t, g, delay)
	}
}

func TestExtract_Pacing(t *testing.T) {
	const delay = 40 * time.Millisecond
	s := &site{pages: map[string]string{
		"/a": linksPage("a"),
		"/b": linksPage("b"),
		"/c": linksPage("c"),
	}}
	srv := newSite(t, s)

	pages := New(Options{ExtractDelay: delay}).Extract(context.Background(),
		[]string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"})
	require.Len(t, pages, 3)

	for _, g := range s.gaps() {
		assert.GreaterOrEqual(t, g, delay)
	}
}

func TestExtract_CancelStopsPacing(t *testing.T) {
	s := &site{pages: map[string]string{"/a": linksPage("a"), "/b": linksPage("b")}}
	srv := newSite(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	pages := New(Options{ExtractDelay: time.Hour}).Extract(ctx, []string{srv.URL + "/a", srv.URL + "/b"})
	assert.Len(t, pages, 1)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCrawl_FailedPageStillVisited(t *testing.T) {
	s := &site{pages: map[string]string{
		"/": linksPage("home", "/missing", "/ok"),
		"/ok": linksPage("ok"),
	}}
	srv := newSite(t, s)

	got, err := New(Options{}).Crawl(context.Background(), srv.URL+"/", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/missing", "/ok"}, paths(t, got))
}

func TestCrawl_InvalidStart(t *testing.T) {
	_, err := New(Options{}).Crawl(context.Background(), "ftp://example.com", 5)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://WWW.Example.com/a/?q=1#frag", "https://www.example.com/a"},
		{"https://example.com", "https://example.com/"},
		{"https://example.com/", "https://example.com/"},
		{"http://example.com:8080/docs//", "http://example.com:8080/docs"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, err := url.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, normalize(u))
		})
	}
}

func TestSiteKey(t *testing.T) {
	key := func(raw string) string {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return siteKey(u)
	}

	assert.Equal(t, "example.co.uk", key("https://docs.example.co.uk/a"))
	assert.Equal(t, key("https://www.example.com"), key("https://trust.example.com"))
	assert.NotEqual(t, key("https://example.com"), key("https://example.org"))
	assert.Equal(t, "127.0.0.1:8080", key("http://127.0.0.1:8080/"))
}

func TestExtract(t *testing.T) {
	s := &site{pages: map[string]string{
		"/security": `<html><head><title> Security Overview </title><style>.x{}</style></head>
<body><nav>Menu Home About</nav><header>Site header</header>
<h1>Encryption</h1><p>All customer data is encrypted at rest with AES-256.</p>
<script>track()</script><footer>Copyright</footer></body></html>`,
		"/untitled": `<html><body><p>Plain page</p></body></html>`,
	}}
	srv := newSite(t, s)

	pages := New(Options{}).Extract(context.Background(), []string{
		srv.URL + "/security", srv.URL + "/gone", srv.URL + "/untitled",
	})
	require.Len(t, pages, 2)

	sec := pages[0]
	assert.Equal(t, "Security Overview", sec.Title)
	assert.Equal(t, srv.URL+"/security", sec.URL)
	assert.Contains(t, sec.Text, "encrypted at rest with AES-256")
	assert.Contains(t, sec.Text, "Encryption")
	for _, banned := range []string{"Menu", "Site header", "track()", "Copyright", ".x{}"} {
		assert.NotContains(t, sec.Text, banned)
	}

	assert.Equal(t, "No title", pages[1].Title)
	assert.Contains(t, pages[1].Text, "Plain page")
}

func TestFetchSite_NoCrawl(t *testing.T) {
	s := &site{pages: map[string]string{
		"/": linksPage("home", "/a"),
		"/a": linksPage("a"),
	}}
	srv := newSite(t, s)

	pages, err := New(Options{}).FetchSite(context.Background(), srv.URL+"/", false, 10)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "home", pages[0].Title)
}

func TestWriteCorpus(t *testing.T) {
	dir := t.TempDir()
	pages := []Page{
		{Title: "Security", URL: "https://example.com/security", Text: "TLS 1.2 everywhere."},
		{Title: "Privacy", URL: "https://example.com/privacy", Text: "GDPR compliant."},
	}

	f, err := WriteCorpus(dir, "https://example.com/trust/", pages)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/trust/", f.DisplayName())
	assert.Equal(t, "example.com_trust.txt", f.BaseName())
	assert.True(t, f.IsWebsite())
	assert.Len(t, f.Fingerprint, 64)

	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t,
		"# Security\nURL: https://example.com/security\n\nTLS 1.2 everywhere.\n\n\n"+
			"# Privacy\nURL: https://example.com/privacy\n\nGDPR compliant.\n",
		string(data))

	_, err = WriteCorpus(dir, "https://example.com", nil)
	assert.Error(t, err)
}
