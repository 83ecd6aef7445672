// Command secq answers security questionnaires from local documents and
// public trust pages, writing cited verdicts into a Google Sheet.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"secq/internal/config"
	"secq/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	logLevel   string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "secq",
	Short: "secq - evidence-backed security questionnaire responder",
	Long: `secq fills the "Compliance Statement" column of a questionnaire sheet.

Each unanswered requirement is evaluated by Gemini against your uploaded
policy documents and crawled trust-center pages. Every answer cites one
source, or reads not_found when nothing supports it. Uncertain answers get
a second, deeper review and are marked [REVIEWED].`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.Find(configPath))
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		if verbose {
			level = "debug"
		}
		cfg.Logging.Level = level

		if err := logging.Initialize(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			File:   cfg.Logging.File,
		}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if cfg.LoadedFrom != "" {
			logging.BootDebug("config loaded from %s", cfg.LoadedFrom)
		} else {
			logging.BootDebug("no config file found, using defaults")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file (default: search ./secq.yaml, user config dir, /etc/secq)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Hour, "Overall operation timeout")

	rootCmd.AddCommand(runCmd, crawlCmd, configCmd, cacheCmd, docsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
