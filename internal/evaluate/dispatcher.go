// Package evaluate asks the generative model for a verdict per requirement.
// Rows run concurrently; low-confidence answers get a second, deeper pass.
package evaluate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"secq/internal/config"
	"secq/internal/evidence"
	"secq/internal/logging"
	"secq/internal/retry"
)

// Generator produces a model answer for a prompt with evidence attached.
type Generator interface {
	Generate(ctx context.Context, prompt string, attachments []evidence.Handle) (string, error)
}

// Requirement is one eligible sheet row.
type Requirement struct {
	Row  int
	Text string
}

// Verdict is the answer for one row. Err is set when generation failed;
// Statement then carries the "ERROR: ..." text written to the sheet.
type Verdict struct {
	Row       int
	Statement string
	Pass      int
	Err       error
}

// Reviewed reports whether the verdict came from the second pass.
func (v Verdict) Reviewed() bool { return v.Pass == 2 }

// NotFound reports whether no source supported the verdict.
func (v Verdict) NotFound() bool {
	return strings.HasPrefix(v.Statement, NotFound)
}

// Options configures a Dispatcher.
type Options struct {
	Workers             int
	Mode                string
	Retry               retry.Policy
	SimilarityThreshold float64
	ReviewKeywords      []string

	// OnVerdict receives every final verdict as it completes. Calls are
	// serialized.
	OnVerdict func(Verdict)
}

// Dispatcher runs the two-pass evaluation protocol.
type Dispatcher struct {
	gen         Generator
	attachments []evidence.Handle
	allowed     []string
	opts        Options

	emitMu sync.Mutex
}

func NewDispatcher(gen Generator, attachments []evidence.Handle, allowed []string, opts Options) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Mode == "" {
		opts.Mode = config.SourcesBoth
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opts.ReviewKeywords == nil {
		opts.ReviewKeywords = DefaultReviewKeywords
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	opts.Retry.Category = logging.CategoryEvaluate
	return &Dispatcher{gen: gen, attachments: attachments, allowed: allowed, opts: opts}
}

// Evaluate runs pass one over all requirements, then pass two over the
// flagged ones, and returns verdicts in input order. A row whose
// generation fails gets an ERROR verdict and is never escalated.
func (d *Dispatcher) Evaluate(ctx context.Context, reqs []Requirement) []Verdict {
	verdicts := make([]Verdict, len(reqs))

	timer := logging.StartTimer(logging.CategoryEvaluate, "pass 1")
	var flagged []int
	var flaggedMu sync.Mutex
	d.runPass(ctx, len(reqs), func(ctx context.Context, i int) {
		v := d.first(ctx, reqs[i])
		verdicts[i] = v
		if v.Err == nil && NeedsReview(v.Statement, d.opts.ReviewKeywords) {
			flaggedMu.Lock()
			flagged = append(flagged, i)
			flaggedMu.Unlock()
			return
		}
		d.emit(v)
	})
	timer.StopWithInfo()

	if len(flagged) == 0 {
		return verdicts
	}

	logging.Evaluate("escalating %d of %d rows to a deep review", len(flagged), len(reqs))
	timer = logging.StartTimer(logging.CategoryEvaluate, "pass 2")
	d.runPass(ctx, len(flagged), func(ctx context.Context, j int) {
		i := flagged[j]
		v := d.second(ctx, reqs[i], verdicts[i])
		verdicts[i] = v
		d.emit(v)
	})
	timer.StopWithInfo()

	return verdicts
}

// runPass calls fn for indexes [0,n) on a bounded pool. Each call writes
// only its own slot.
func (d *Dispatcher) runPass(ctx context.Context, n int, fn func(context.Context, int)) {
	g := &errgroup.Group{}
	g.SetLimit(d.opts.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) first(ctx context.Context, req Requirement) Verdict {
	prompt := BuildPrompt(req.Text, d.opts.Mode, d.allowed)
	statement, err := d.ask(ctx, fmt.Sprintf("generate row %d", req.Row), prompt)
	if err != nil {
		logging.EvaluateError("row %d failed: %v", req.Row, err)
		return Verdict{Row: req.Row, Statement: "ERROR: " + err.Error(), Pass: 1, Err: err}
	}
	logging.EvaluateDebug("row %d: %s", req.Row, statement)
	return Verdict{Row: req.Row, Statement: statement, Pass: 1}
}

// second re-asks with the deep-scan prompt. If it fails the first-pass
// verdict stands.
func (d *Dispatcher) second(ctx context.Context, req Requirement, prev Verdict) Verdict {
	prompt := BuildReviewPrompt(req.Text, d.opts.Mode, d.allowed, prev.Statement)
	statement, err := d.ask(ctx, fmt.Sprintf("review row %d", req.Row), prompt)
	if err != nil {
		logging.EvaluateWarn("review of row %d failed, keeping first answer: %v", req.Row, err)
		return prev
	}
	return Verdict{Row: req.Row, Statement: statement + ReviewedMarker, Pass: 2}
}

func (d *Dispatcher) ask(ctx context.Context, op, prompt string) (string, error) {
	raw, err := retry.Do(ctx, d.opts.Retry, op, func(ctx context.Context) (string, error) {
		return d.gen.Generate(ctx, prompt, d.attachments)
	})
	if err != nil {
		return "", err
	}
	text := Normalize(raw, d.allowed)
	return CorrectCitations(text, d.allowed, d.opts.SimilarityThreshold), nil
}

func (d *Dispatcher) emit(v Verdict) {
	if d.opts.OnVerdict == nil {
		return
	}
	d.emitMu.Lock()
	defer d.emitMu.Unlock()
	d.opts.OnVerdict(v)
}
