// Package pipeline runs one questionnaire pass end to end: read eligible
// rows, gather and activate evidence, evaluate and write verdicts back.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"secq/internal/activation"
	"secq/internal/config"
	"secq/internal/crawl"
	"secq/internal/evaluate"
	"secq/internal/evidence"
	"secq/internal/logging"
	"secq/internal/retry"
	"secq/internal/sheets"
	"secq/internal/uploads"
)

// Remote is the model service: artifact storage plus generation.
type Remote interface {
	evidence.Uploader
	evidence.StatusChecker
	evaluate.Generator
}

// Deps are the collaborators a Runner drives.
type Deps struct {
	Remote    Remote
	Table     sheets.Table
	Reconnect func(ctx context.Context) (sheets.Table, error)
	Crawler   *crawl.Crawler
	Cache     *uploads.Cache
}

// Summary reports what a run did.
type Summary struct {
	RunID    string
	Eligible int
	Written  int
	NotFound int
	Reviewed int
	Errors   int
	Sources  []string
	Duration time.Duration
}

// Runner executes runs against one configuration.
type Runner struct {
	cfg  *config.Config
	deps Deps
}

func NewRunner(cfg *config.Config, deps Deps) *Runner {
	if deps.Crawler == nil {
		deps.Crawler = crawl.New(CrawlOptions(cfg))
	}
	if deps.Cache == nil {
		deps.Cache = uploads.LoadCache(cfg.Uploads.CacheFile, cfg.Uploads.Persist)
	}
	return &Runner{cfg: cfg, deps: deps}
}

// Run processes every eligible row once. It fails only when the worksheet
// cannot be read or its columns are missing; per-file and per-row problems
// are logged and counted.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString()}
	defer func() { summary.Duration = time.Since(start) }()
	logging.Pipeline("run %s started (sources=%s)", summary.RunID, r.cfg.Sources)

	layout, reqs, err := sheets.LoadRequirements(ctx, r.deps.Table)
	if err != nil {
		return nil, err
	}
	logging.Pipeline("columns: requirement=%s verdict=%s",
		sheets.ColumnLetter(layout.RequirementCol), sheets.ColumnLetter(layout.VerdictCol))

	summary.Eligible = len(reqs)
	if len(reqs) == 0 {
		logging.Pipeline("no new requirements to process")
		return summary, nil
	}

	tmpDir, err := os.MkdirTemp("", "secq-run-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	handles, err := r.PrepareSources(ctx, tmpDir)
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		logging.PipelineWarn("no evidence is active, evaluating without attachments")
	}

	var websites []string
	if r.cfg.UsesWebsite() {
		websites = r.cfg.WebsiteURLs
	}
	allowed := evaluate.NewAllowedSources(handles, websites, r.cfg.Sources)
	summary.Sources = allowed

	writer := sheets.NewWriter(r.deps.Table, sheets.WriterOptions{
		Verify:    r.cfg.Spreadsheet.VerifyWrites,
		Delay:     r.cfg.GetWriteDelay(),
		Retry:     RetryPolicy(r.cfg),
		Reconnect: r.deps.Reconnect,
	})

	var mu sync.Mutex
	record := func(v evaluate.Verdict) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case v.Err != nil:
			summary.Errors++
		case v.NotFound():
			summary.NotFound++
		}
		if v.Reviewed() {
			summary.Reviewed++
		}
	}

	// One writer drains verdicts so slow or retried writes never hold an
	// evaluation worker. Every row is emitted once, so sends never block.
	pending := make(chan evaluate.Verdict, len(reqs))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for v := range pending {
			if err := writer.Write(ctx, v.Row, layout.VerdictCol, v.Statement); err != nil {
				logging.Get(logging.CategorySheets).Error("row %d: %v", v.Row, err)
				continue
			}
			mu.Lock()
			summary.Written++
			mu.Unlock()
			logging.Pipeline("row %d: %s", v.Row, v.Statement)
		}
	}()

	dispatcher := evaluate.NewDispatcher(r.deps.Remote, handles, allowed, evaluate.Options{
		Workers:             r.cfg.Concurrency.Workers,
		Mode:                r.cfg.Sources,
		Retry:               RetryPolicy(r.cfg),
		SimilarityThreshold: r.cfg.Evaluation.SimilarityThreshold,
		ReviewKeywords:      r.cfg.Evaluation.ReviewKeywords,
		OnVerdict: func(v evaluate.Verdict) {
			record(v)
			pending <- v
		},
	})

	logging.Pipeline("evaluating %d rows with %d workers", len(reqs), r.cfg.Concurrency.Workers)
	dispatcher.Evaluate(ctx, reqs)
	close(pending)
	wg.Wait()
	return summary, nil
}

// PrepareSources turns the configured docs and websites into active
// remote handles. Website corpora come first. Working files go under
// tmpDir.
func (r *Runner) PrepareSources(ctx context.Context, tmpDir string) ([]evidence.Handle, error) {
	var files []evidence.File

	if r.cfg.UsesWebsite() {
		files = append(files, r.websiteFiles(ctx, tmpDir)...)
	}
	if r.cfg.UsesDocs() {
		docs, err := r.documentFiles(tmpDir)
		if err != nil {
			return nil, err
		}
		files = append(files, docs...)
	}
	if len(files) == 0 {
		return nil, nil
	}

	coord := uploads.NewCoordinator(r.deps.Remote, r.deps.Remote, r.deps.Cache, uploads.Options{
		Workers: r.cfg.Concurrency.UploadWorkers,
		Timeout: r.cfg.GetUploadTimeout(),
		Retry:   RetryPolicy(r.cfg),
	})
	ready := uploads.Ready(coord.Upload(ctx, files))
	if len(ready) == 0 {
		return nil, nil
	}

	poller := activation.NewPoller(r.deps.Remote, activation.Options{
		Timeout:         r.cfg.GetActivationTimeout(),
		InitialInterval: r.cfg.GetActivationInitialInterval(),
		MaxInterval:     r.cfg.GetActivationMaxInterval(),
	})
	res := poller.AwaitActive(ctx, ready)
	for _, f := range res.Failed {
		logging.ActivationWarn("%s unusable: %s", f.Handle.DisplayName, f.Reason)
	}
	for _, h := range res.TimedOut {
		logging.ActivationWarn("%s still processing at deadline", h.DisplayName)
	}
	logging.Pipeline("%d of %d sources ready", len(res.Active), len(files))
	return res.Active, nil
}

func (r *Runner) websiteFiles(ctx context.Context, tmpDir string) []evidence.File {
	var files []evidence.File
	for _, site := range r.cfg.WebsiteURLs {
		pages, err := r.deps.Crawler.FetchSite(ctx, site, true, r.cfg.MaxPages)
		if err != nil {
			logging.CrawlWarn("skipping %s: %v", site, err)
			continue
		}
		f, err := crawl.WriteCorpus(tmpDir, site, pages)
		if err != nil {
			logging.CrawlWarn("skipping %s: %v", site, err)
			continue
		}
		logging.Crawl("%s: %d pages", site, len(pages))
		files = append(files, f)
	}
	return files
}

func (r *Runner) documentFiles(tmpDir string) ([]evidence.File, error) {
	dir := r.cfg.DocsDirectory
	if _, err := os.Stat(dir); err != nil {
		logging.UploadWarn("docs directory %s unavailable: %v", dir, err)
		return nil, nil
	}
	paths, err := evidence.Discover(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	files, _ := evidence.Prepare(paths, tmpDir)
	logging.Upload("%d documents found in %s", len(files), dir)
	return files, nil
}

// RetryPolicy builds the shared back-off policy from cfg.
func RetryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.GetRetryBaseDelay(),
		Factor:      cfg.Retry.Factor,
		Jitter:      cfg.Retry.Jitter,
		MaxDelay:    cfg.GetRetryMaxDelay(),
	}
}

// CrawlOptions builds crawler options from cfg.
func CrawlOptions(cfg *config.Config) crawl.Options {
	return crawl.Options{
		Delay:        cfg.GetCrawlDelay(),
		ExtractDelay: cfg.GetExtractDelay(),
		UserAgent:    cfg.Crawl.UserAgent,
	}
}
