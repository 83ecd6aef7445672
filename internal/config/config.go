package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source modes select which evidence the evaluator may cite.
const (
	SourcesBoth    = "both"
	SourcesWebsite = "website"
	SourcesDocs    = "docs"
)

// ValidSourceModes lists all supported source modes.
var ValidSourceModes = []string{SourcesBoth, SourcesWebsite, SourcesDocs}

var (
	ErrInvalidSourceMode = errors.New("invalid source mode")
	ErrMissingAPIKey     = errors.New("gemini API key not configured (set GEMINI_API_KEY)")
	ErrMissingSheet      = errors.New("spreadsheet id not configured (set SPREADSHEET_ID)")
)

// Config holds all secq configuration.
type Config struct {
	// Evidence selection
	Sources       string   `yaml:"sources"` // both, website, docs
	DocsDirectory string   `yaml:"docs_directory"`
	WebsiteURLs   []string `yaml:"website_urls"`
	MaxPages      int      `yaml:"max_pages"`

	Spreadsheet SpreadsheetConfig `yaml:"spreadsheet"`
	Gemini      GeminiConfig      `yaml:"gemini"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Uploads     UploadsConfig     `yaml:"uploads"`
	Activation  ActivationConfig  `yaml:"activation"`
	Crawl       CrawlConfig       `yaml:"crawl"`
	Retry       RetryConfig       `yaml:"retry"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`

	Logging LoggingConfig `yaml:"logging"`

	// LoadedFrom is the file Load read; empty when only defaults applied.
	LoadedFrom string `yaml:"-"`
}

// SpreadsheetConfig configures the questionnaire sheet.
type SpreadsheetConfig struct {
	ID              string `yaml:"id"`
	WorksheetIndex  int    `yaml:"worksheet_index"`
	CredentialsFile string `yaml:"credentials_file"`
	VerifyWrites    bool   `yaml:"verify_writes"`
	WriteDelay      string `yaml:"write_delay"`
}

// GeminiConfig configures the generative model.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ConcurrencyConfig bounds the worker pools.
type ConcurrencyConfig struct {
	Workers       int `yaml:"workers"`
	UploadWorkers int `yaml:"upload_workers"`
}

// UploadsConfig configures the upload cache and batch deadline.
type UploadsConfig struct {
	Persist   bool   `yaml:"persist"`
	CacheFile string `yaml:"cache_file"`
	Timeout   string `yaml:"timeout"`
}

// ActivationConfig configures remote activation polling.
type ActivationConfig struct {
	Timeout         string `yaml:"timeout"`
	InitialInterval string `yaml:"initial_interval"`
	MaxInterval     string `yaml:"max_interval"`
}

// CrawlConfig configures the website crawler.
type CrawlConfig struct {
	Delay        string `yaml:"delay"`
	ExtractDelay string `yaml:"extract_delay"`
	UserAgent    string `yaml:"user_agent"`
}

// RetryConfig configures back-off for transient collaborator errors.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BaseDelay   string  `yaml:"base_delay"`
	Factor      float64 `yaml:"factor"`
	Jitter      float64 `yaml:"jitter"`
	MaxDelay    string  `yaml:"max_delay"`
}

// EvaluationConfig holds the tunable evaluation thresholds.
type EvaluationConfig struct {
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
	ReviewKeywords      []string `yaml:"review_keywords"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sources:       SourcesBoth,
		DocsDirectory: "docs",
		MaxPages:      50,

		Spreadsheet: SpreadsheetConfig{
			VerifyWrites: true,
			WriteDelay:   "500ms",
		},

		Gemini: GeminiConfig{
			Model: "gemini-1.5-pro",
		},

		Concurrency: ConcurrencyConfig{
			Workers:       4,
			UploadWorkers: 4,
		},

		Uploads: UploadsConfig{
			Persist:   true,
			CacheFile: defaultCacheFile(),
			Timeout:   "10m",
		},

		Activation: ActivationConfig{
			Timeout:         "180s",
			InitialInterval: "2s",
			MaxInterval:     "30s",
		},

		Crawl: CrawlConfig{
			Delay:        "1s",
			ExtractDelay: "500ms",
			UserAgent:    "secq/1.0 (+https://github.com/secq)",
		},

		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   "2s",
			Factor:      2,
			Jitter:      0.5,
			MaxDelay:    "30s",
		},

		Evaluation: EvaluationConfig{
			SimilarityThreshold: 0.6,
			ReviewKeywords: []string{
				"not_found", "uncertain", "partially",
				"i don't know", "i do not know", "don't know",
			},
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func defaultCacheFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "upload_cache.json"
	}
	return filepath.Join(home, ".secq", "upload_cache.json")
}

// DefaultConfigName is the file name looked up in each search directory.
const DefaultConfigName = "secq.yaml"

// SearchPaths lists the config files Find tries, in order: the working
// directory, the user config directory, then /etc.
func SearchPaths() []string {
	paths := []string{DefaultConfigName}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "secq", DefaultConfigName))
	}
	return append(paths, filepath.Join("/etc", "secq", DefaultConfigName))
}

// Find returns explicit when set, otherwise the first existing file from
// SearchPaths. Empty means no config file.
func Find(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range SearchPaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			cfg.LoadedFrom = path
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		c.Gemini.Model = model
	}

	if id := os.Getenv("SPREADSHEET_ID"); id != "" {
		c.Spreadsheet.ID = id
	}
	if v := os.Getenv("WORKSHEET_INDEX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Spreadsheet.WorksheetIndex = n
		}
	}
	if path := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); path != "" {
		c.Spreadsheet.CredentialsFile = path
	}
	if v := os.Getenv("VERIFY_WRITES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Spreadsheet.VerifyWrites = b
		}
	}

	if mode := os.Getenv("SOURCES"); mode != "" {
		c.Sources = strings.ToLower(mode)
	}
	if dir := os.Getenv("DOCS_DIR"); dir != "" {
		c.DocsDirectory = dir
	}
	if urls := os.Getenv("WEBSITE_URLS"); urls != "" {
		c.WebsiteURLs = splitList(urls)
	}

	if v := os.Getenv("GEMINI_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency.Workers = n
		}
	}

	if v := os.Getenv("PERSIST_UPLOADS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Uploads.Persist = b
		}
	}
	if path := os.Getenv("UPLOAD_CACHE_FILE"); path != "" {
		c.Uploads.CacheFile = path
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validMode := false
	for _, m := range ValidSourceModes {
		if c.Sources == m {
			validMode = true
			break
		}
	}
	if !validMode {
		return fmt.Errorf("%w: %q (valid: %v)", ErrInvalidSourceMode, c.Sources, ValidSourceModes)
	}

	if c.Gemini.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Spreadsheet.ID == "" {
		return ErrMissingSheet
	}
	if c.Concurrency.Workers < 1 {
		return fmt.Errorf("concurrency.workers must be >= 1, got %d", c.Concurrency.Workers)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if t := c.Evaluation.SimilarityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("evaluation.similarity_threshold must be within [0,1], got %v", t)
	}

	return nil
}

// UsesWebsite reports whether crawled sites are part of the evidence.
func (c *Config) UsesWebsite() bool {
	return c.Sources == SourcesBoth || c.Sources == SourcesWebsite
}

// UsesDocs reports whether local documents are part of the evidence.
func (c *Config) UsesDocs() bool {
	return c.Sources == SourcesBoth || c.Sources == SourcesDocs
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// GetWriteDelay returns the pause after each sheet write.
func (c *Config) GetWriteDelay() time.Duration {
	return parseDuration(c.Spreadsheet.WriteDelay, 500*time.Millisecond)
}

// GetUploadTimeout returns the deadline for a whole upload batch.
func (c *Config) GetUploadTimeout() time.Duration {
	return parseDuration(c.Uploads.Timeout, 10*time.Minute)
}

// GetActivationTimeout returns the global activation deadline.
func (c *Config) GetActivationTimeout() time.Duration {
	return parseDuration(c.Activation.Timeout, 180*time.Second)
}

// GetActivationInitialInterval returns the first per-handle poll interval.
func (c *Config) GetActivationInitialInterval() time.Duration {
	return parseDuration(c.Activation.InitialInterval, 2*time.Second)
}

// GetActivationMaxInterval returns the poll interval cap.
func (c *Config) GetActivationMaxInterval() time.Duration {
	return parseDuration(c.Activation.MaxInterval, 30*time.Second)
}

// GetCrawlDelay returns the politeness delay between crawl fetches.
func (c *Config) GetCrawlDelay() time.Duration {
	return parseDuration(c.Crawl.Delay, time.Second)
}

// GetExtractDelay returns the politeness delay between content fetches.
func (c *Config) GetExtractDelay() time.Duration {
	return parseDuration(c.Crawl.ExtractDelay, 500*time.Millisecond)
}

// GetRetryBaseDelay returns the first back-off delay.
func (c *Config) GetRetryBaseDelay() time.Duration {
	return parseDuration(c.Retry.BaseDelay, 2*time.Second)
}

// GetRetryMaxDelay returns the back-off cap.
func (c *Config) GetRetryMaxDelay() time.Duration {
	return parseDuration(c.Retry.MaxDelay, 30*time.Second)
}
