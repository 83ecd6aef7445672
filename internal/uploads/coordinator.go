package uploads

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"secq/internal/evidence"
	"secq/internal/logging"
	"secq/internal/retry"
)

// MaxUploadBytes is the largest file the remote store accepts.
const MaxUploadBytes = 20 << 20

// DefaultWorkers caps concurrent uploads.
const DefaultWorkers = 4

var (
	ErrTooLarge        = errors.New("file exceeds upload size limit")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Outcome is the per-file result of an upload batch. Failed outcomes carry
// Err and are excluded from downstream evidence.
type Outcome struct {
	File   evidence.File
	Handle evidence.Handle
	Cached bool
	Err    error
}

// Options configures a Coordinator.
type Options struct {
	Workers int           // capped at DefaultWorkers
	Timeout time.Duration // whole-batch deadline, 0 means none
	Retry   retry.Policy  // applied to each upload call
}

// Coordinator uploads evidence files, reusing cached remote artifacts
// that are still usable.
type Coordinator struct {
	uploader evidence.Uploader
	status   evidence.StatusChecker
	cache    *Cache
	opts     Options
}

func NewCoordinator(uploader evidence.Uploader, status evidence.StatusChecker, cache *Cache, opts Options) *Coordinator {
	if opts.Workers < 1 || opts.Workers > DefaultWorkers {
		opts.Workers = DefaultWorkers
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	opts.Retry.Category = logging.CategoryUpload
	return &Coordinator{uploader: uploader, status: status, cache: cache, opts: opts}
}

// Upload processes the batch and returns one Outcome per input, in input
// order. Items still running or unscheduled when the batch deadline passes
// are reported failed with context.DeadlineExceeded. The cache is saved
// once at the end if it changed.
func (c *Coordinator) Upload(ctx context.Context, files []evidence.File) []Outcome {
	timer := logging.StartTimer(logging.CategoryUpload, fmt.Sprintf("upload batch of %d", len(files)))
	defer timer.StopWithInfo()

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	var (
		mu       sync.Mutex
		results  = make([]Outcome, len(files))
		finished = make([]bool, len(files))
		closed   bool
	)

	g := &errgroup.Group{}
	g.SetLimit(c.opts.Workers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, f := range files {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				out, update := c.uploadOne(ctx, f)
				mu.Lock()
				defer mu.Unlock()
				if !closed {
					results[i] = out
					finished[i] = true
					update.apply(c.cache)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logging.UploadWarn("upload batch deadline reached: %v", ctx.Err())
	}

	mu.Lock()
	closed = true
	cause := ctx.Err()
	if cause == nil {
		cause = context.DeadlineExceeded
	}
	for i := range results {
		if !finished[i] {
			results[i] = Outcome{File: files[i], Err: fmt.Errorf("upload abandoned: %w", cause)}
		}
	}
	mu.Unlock()

	if err := c.cache.Save(); err != nil {
		logging.UploadError("failed to save upload cache: %v", err)
	}

	var ok, cached int
	for _, r := range results {
		if r.Err == nil {
			ok++
			if r.Cached {
				cached++
			}
		}
	}
	logging.Upload("uploads: %d ready (%d cached), %d failed", ok, cached, len(results)-ok)

	return results
}

// cacheUpdate is the cache change an upload wants. It is applied only
// while the batch is still collecting results.
type cacheUpdate struct {
	key   string
	id    string
	evict bool
}

func (u cacheUpdate) apply(cache *Cache) {
	switch {
	case u.key == "":
	case u.id != "":
		cache.Set(u.key, u.id)
	case u.evict:
		cache.Delete(u.key)
	}
}

func (c *Coordinator) uploadOne(ctx context.Context, f evidence.File) (Outcome, cacheUpdate) {
	out := Outcome{File: f}
	var update cacheUpdate
	log := logging.Get(logging.CategoryUpload).With("file", f.BaseName())

	if err := ctx.Err(); err != nil {
		out.Err = err
		return out, update
	}

	mime, ok := evidence.MIMEType(f.Path)
	if !ok {
		out.Err = fmt.Errorf("%s: %w", f.BaseName(), ErrUnsupportedType)
		log.Warn("skipping: %v", out.Err)
		return out, update
	}

	key := f.CacheKey()
	if id, ok := c.cache.Get(key); ok {
		if h, reused := c.confirm(ctx, id, f, mime); reused {
			log.Debug("reusing cached upload %s", id)
			out.Handle, out.Cached = h, true
			return out, update
		}
		update = cacheUpdate{key: key, evict: true}
	}

	info, err := os.Stat(f.Path)
	if err != nil {
		out.Err = fmt.Errorf("stat %s: %w", f.BaseName(), err)
		log.Warn("skipping: %v", err)
		return out, update
	}
	if info.Size() > MaxUploadBytes {
		out.Err = fmt.Errorf("%s is %d bytes: %w", f.BaseName(), info.Size(), ErrTooLarge)
		log.Warn("skipping: %v", out.Err)
		return out, update
	}

	h, err := retry.Do(ctx, c.opts.Retry, "upload "+f.BaseName(), func(ctx context.Context) (evidence.Handle, error) {
		return c.uploader.UploadArtifact(ctx, f.Path, mime, f.DisplayName())
	})
	if err != nil {
		out.Err = fmt.Errorf("upload %s: %w", f.BaseName(), err)
		log.Error("upload failed: %v", err)
		return out, update
	}
	if h.DisplayName == "" {
		h.DisplayName = f.DisplayName()
	}

	log.Info("uploaded as %s", h.ID)
	out.Handle = h
	return out, cacheUpdate{key: key, id: h.ID}
}

// confirm checks that a cached artifact is still usable.
func (c *Coordinator) confirm(ctx context.Context, id string, f evidence.File, mime string) (evidence.Handle, bool) {
	st, err := c.status.ArtifactStatus(ctx, id)
	if err != nil {
		logging.UploadDebug("cached upload %s for %s is stale: %v", id, f.BaseName(), err)
		return evidence.Handle{}, false
	}
	if st != evidence.StatusActive && st != evidence.StatusProcessing {
		logging.UploadDebug("cached upload %s for %s is %s", id, f.BaseName(), st)
		return evidence.Handle{}, false
	}
	return evidence.Handle{ID: id, MIMEType: mime, DisplayName: f.DisplayName()}, true
}

// Ready returns the handles of successful outcomes.
func Ready(outcomes []Outcome) []evidence.Handle {
	var hs []evidence.Handle
	for _, o := range outcomes {
		if o.Err == nil {
			hs = append(hs, o.Handle)
		}
	}
	return hs
}
