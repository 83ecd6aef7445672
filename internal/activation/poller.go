// Package activation waits for uploaded artifacts to finish remote
// processing, backing off per artifact.
package activation

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"secq/internal/evidence"
	"secq/internal/logging"
)

// State is the local view of an artifact's activation.
type State int

const (
	Pending State = iota
	Active
	Failed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Options configures polling. Zero values take the defaults.
type Options struct {
	Timeout         time.Duration // global deadline, default 180s
	InitialInterval time.Duration // first per-handle interval, default 2s
	MaxInterval     time.Duration // interval cap, default 30s
	TickInterval    time.Duration // scheduler granularity, default 250ms
	Concurrency     int           // parallel status checks per tick, default 4
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 180 * time.Second
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 2 * time.Second
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 30 * time.Second
	}
	if o.MaxInterval < o.InitialInterval {
		o.MaxInterval = o.InitialInterval
	}
	if o.TickInterval <= 0 {
		o.TickInterval = 250 * time.Millisecond
	}
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	return o
}

// Failure records why an artifact did not become usable.
type Failure struct {
	Handle evidence.Handle
	Reason string
}

// Result partitions the polled handles. Active keeps input order.
type Result struct {
	Active   []evidence.Handle
	Failed   []Failure
	TimedOut []evidence.Handle
}

type tracked struct {
	handle    evidence.Handle
	state     State
	interval  time.Duration
	nextCheck time.Time
	reason    string
	checks    int
}

// Poller drives the per-handle activation state machine.
type Poller struct {
	status evidence.StatusChecker
	opts   Options
}

func NewPoller(status evidence.StatusChecker, opts Options) *Poller {
	return &Poller{status: status, opts: opts.withDefaults()}
}

// AwaitActive polls until every handle is terminal or the global deadline
// passes; handles still pending at the deadline are reported TimedOut.
func (p *Poller) AwaitActive(ctx context.Context, handles []evidence.Handle) Result {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	start := time.Now()
	items := make([]*tracked, len(handles))
	for i, h := range handles {
		items[i] = &tracked{handle: h, state: Pending, interval: p.opts.InitialInterval, nextCheck: start}
	}

	ticker := time.NewTicker(p.opts.TickInterval)
	defer ticker.Stop()

	for {
		now := time.Now()
		var due []*tracked
		pending := 0
		for _, it := range items {
			if it.state != Pending {
				continue
			}
			pending++
			if !now.Before(it.nextCheck) {
				due = append(due, it)
			}
		}
		if pending == 0 {
			break
		}

		if len(due) > 0 {
			p.checkAll(ctx, due)
			continue
		}

		select {
		case <-ctx.Done():
			for _, it := range items {
				if it.state == Pending {
					it.state = TimedOut
					logging.ActivationWarn("%s still processing after %v", it.handle, p.opts.Timeout)
				}
			}
		case <-ticker.C:
		}
	}

	var res Result
	for _, it := range items {
		switch it.state {
		case Active:
			res.Active = append(res.Active, it.handle)
		case Failed:
			res.Failed = append(res.Failed, Failure{Handle: it.handle, Reason: it.reason})
		case TimedOut:
			res.TimedOut = append(res.TimedOut, it.handle)
		}
	}
	logging.Activation("activation: %d active, %d failed, %d timed out in %v",
		len(res.Active), len(res.Failed), len(res.TimedOut), time.Since(start).Round(time.Millisecond))
	return res
}

// checkAll runs one status check for each due handle. Each goroutine
// mutates only its own entry.
func (p *Poller) checkAll(ctx context.Context, due []*tracked) {
	g := &errgroup.Group{}
	g.SetLimit(p.opts.Concurrency)
	for _, it := range due {
		g.Go(func() error {
			p.check(ctx, it)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) check(ctx context.Context, it *tracked) {
	it.checks++
	if ctx.Err() != nil {
		// The deadline handler marks the entry; leave it pending.
		it.nextCheck = time.Now().Add(p.opts.MaxInterval)
		return
	}

	st, err := p.status.ArtifactStatus(ctx, it.handle.ID)
	switch {
	case err != nil:
		logging.ActivationDebug("status check for %s failed: %v", it.handle, err)
		it.interval = p.grow(it.interval, 2)
	case st == evidence.StatusActive:
		it.state = Active
		logging.ActivationDebug("%s active after %d checks", it.handle, it.checks)
		return
	case st == evidence.StatusFailed:
		it.state = Failed
		it.reason = "remote processing failed"
		logging.ActivationWarn("%s failed remote processing", it.handle)
		return
	default:
		it.interval = p.grow(it.interval, 1.5)
	}
	it.nextCheck = time.Now().Add(it.interval)
}

func (p *Poller) grow(d time.Duration, factor float64) time.Duration {
	next := time.Duration(float64(d) * factor)
	if next > p.opts.MaxInterval {
		return p.opts.MaxInterval
	}
	return next
}
