package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"secq/internal/config"
	"secq/internal/gemini"
	"secq/internal/logging"
	"secq/internal/pipeline"
	"secq/internal/sheets"
)

// runCmd evaluates every unanswered row once
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Answer every unanswered requirement in the sheet",
	Long: `Reads the Requirement and Compliance Statement columns, gathers evidence
according to --sources, and writes one verdict per unanswered row.

Source modes:
  - both:    crawled websites take precedence over local documents
  - website: only crawled website content
  - docs:    only files from --docs-dir (pdf, md, csv, tsv, xlsx, xls, ods)`,
	Args: cobra.NoArgs,
	RunE: runQuestionnaire,
}

func init() {
	f := runCmd.Flags()
	f.String("sources", "", "Evidence sources: both, website or docs")
	f.String("docs-dir", "", "Directory of local evidence documents")
	f.StringSlice("website-url", nil, "Website to crawl (repeatable)")
	f.Int("max-pages", 0, "Maximum pages to crawl per website")
	f.String("spreadsheet-id", "", "Google spreadsheet ID")
	f.Int("worksheet-index", 0, "Worksheet index within the spreadsheet")
	f.Int("max-workers", 0, "Concurrent evaluation workers")
	f.Bool("no-verify-writes", false, "Skip read-back verification of written cells")
	f.Bool("no-persist-uploads", false, "Do not persist the upload cache")
}

// applyRunFlags overrides cfg with the flags set on cmd.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("sources") {
		cfg.Sources, _ = f.GetString("sources")
	}
	if f.Changed("docs-dir") {
		cfg.DocsDirectory, _ = f.GetString("docs-dir")
	}
	if f.Changed("website-url") {
		cfg.WebsiteURLs, _ = f.GetStringSlice("website-url")
	}
	if f.Changed("max-pages") {
		cfg.MaxPages, _ = f.GetInt("max-pages")
	}
	if f.Changed("spreadsheet-id") {
		cfg.Spreadsheet.ID, _ = f.GetString("spreadsheet-id")
	}
	if f.Changed("worksheet-index") {
		cfg.Spreadsheet.WorksheetIndex, _ = f.GetInt("worksheet-index")
	}
	if f.Changed("max-workers") {
		cfg.Concurrency.Workers, _ = f.GetInt("max-workers")
	}
	if v, _ := f.GetBool("no-verify-writes"); v {
		cfg.Spreadsheet.VerifyWrites = false
	}
	if v, _ := f.GetBool("no-persist-uploads"); v {
		cfg.Uploads.Persist = false
	}
}

func runQuestionnaire(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logging.PipelineWarn("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Boot("sources=%s workers=%d verify_writes=%t persist_uploads=%t",
		cfg.Sources, cfg.Concurrency.Workers, cfg.Spreadsheet.VerifyWrites, cfg.Uploads.Persist)

	remote, err := gemini.New(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		return err
	}

	connect := func(ctx context.Context) (sheets.Table, error) {
		t, err := sheets.Connect(ctx, cfg.Spreadsheet.ID, cfg.Spreadsheet.WorksheetIndex, cfg.Spreadsheet.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	table, err := connect(ctx)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(cfg, pipeline.Deps{
		Remote:    remote,
		Table:     table,
		Reconnect: connect,
	})
	summary, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary))
	return nil
}
