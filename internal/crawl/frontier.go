package crawl

// frontier is a FIFO of URLs to visit. A URL is handed out by next at most
// once, so the pending and visited sets never overlap.
type frontier struct {
	queue []string
	seen  map[string]bool
}

func newFrontier(start string) *frontier {
	return &frontier{queue: []string{start}, seen: map[string]bool{start: true}}
}

func (f *frontier) push(u string) {
	if f.seen[u] {
		return
	}
	f.seen[u] = true
	f.queue = append(f.queue, u)
}

func (f *frontier) next() (string, bool) {
	if len(f.queue) == 0 {
		return "", false
	}
	u := f.queue[0]
	f.queue = f.queue[1:]
	return u, true
}

func (f *frontier) len() int { return len(f.queue) }
