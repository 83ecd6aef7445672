package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"secq/internal/crawl"
	"secq/internal/evidence"
	"secq/internal/pipeline"
	"secq/internal/uploads"
)

// crawlCmd previews what a website crawl would collect
var crawlCmd = &cobra.Command{
	Use:   "crawl [url]",
	Short: "List the pages a run would collect from a website",
	Args:  cobra.ExactArgs(1),
	RunE:  crawlSite,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  showConfig,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the upload cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List cached uploads",
	Args:  cobra.NoArgs,
	RunE:  showCache,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all cached uploads",
	Args:  cobra.NoArgs,
	RunE:  clearCache,
}

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Prepare documentation trees as evidence",
}

// docsProcessCmd flattens a docs site checkout into citable evidence files
var docsProcessCmd = &cobra.Command{
	Use:   "process [root]",
	Short: "Flatten README.md pages into files that cite their published URL",
	Long: `Walks root for README.md pages and writes one markdown file per page into
--out, named after its directory (security/sso/README.md -> security-sso.md).
Each file starts with SOURCE_URL and ORIGINAL_PATH comments, so answers cite
the published page. The name-to-URL mapping is saved as url_mapping.json.

Point docs_directory (or --docs-dir) at the output to use it in a run.`,
	Args: cobra.ExactArgs(1),
	RunE: processDocs,
}

func init() {
	crawlCmd.Flags().Int("max-pages", 0, "Maximum pages to visit (default from config)")
	configCmd.AddCommand(configShowCmd)
	cacheCmd.AddCommand(cacheShowCmd, cacheClearCmd)

	docsProcessCmd.Flags().String("out", "processed_docs", "Output directory")
	docsProcessCmd.Flags().String("base-url", "", "Published URL of the docs root")
	_ = docsProcessCmd.MarkFlagRequired("base-url")
	docsCmd.AddCommand(docsProcessCmd)
}

func crawlSite(cmd *cobra.Command, args []string) error {
	maxPages := cfg.MaxPages
	if cmd.Flags().Changed("max-pages") {
		maxPages, _ = cmd.Flags().GetInt("max-pages")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	urls, err := crawl.New(pipeline.CrawlOptions(cfg)).Crawl(ctx, args[0], maxPages)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, u := range urls {
		fmt.Fprintf(out, "%3d. %s\n", i+1, u)
	}
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d pages", len(urls))))
	return nil
}

func processDocs(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	baseURL, _ := cmd.Flags().GetString("base-url")

	mapping, err := evidence.ProcessDocs(args[0], out, baseURL)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	sort.Strings(names)

	w := cmd.OutOrStdout()
	for _, name := range names {
		fmt.Fprintf(w, "%s -> %s\n", name, mapping[name])
	}
	fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("%d pages written to %s", len(names), out)))
	return nil
}

func showConfig(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	out := cmd.OutOrStdout()
	if cfg.LoadedFrom != "" {
		fmt.Fprintf(out, "# loaded from %s\n", cfg.LoadedFrom)
	} else {
		fmt.Fprintln(out, "# no config file found, using defaults")
	}
	_, err = out.Write(data)
	return err
}

func showCache(cmd *cobra.Command, args []string) error {
	cache := uploads.LoadCache(cfg.Uploads.CacheFile, true)
	entries := cache.Entries()

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(cache.Path()))
	for _, k := range keys {
		fmt.Fprintf(out, "%s -> %s\n", k, entries[k])
	}
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d entries", len(keys))))
	return nil
}

func clearCache(cmd *cobra.Command, args []string) error {
	cache := uploads.LoadCache(cfg.Uploads.CacheFile, true)
	n := cache.Len()
	if err := cache.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached uploads\n", n)
	return nil
}
