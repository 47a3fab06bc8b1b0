// Package config holds the pipeline's explicit configuration. Options are
// enumerated on one struct; unknown keys in the YAML are a load error.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Duration parses YAML durations given either as Go duration strings
// ("45s", "2m") or as plain integer seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		v, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(v)
		return nil
	}
	var secs int64
	if err := unmarshal(&secs); err != nil {
		return err
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// D converts to time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Root is one watched investor folder.
type Root struct {
	Path         string `yaml:"path"`
	InvestorCode string `yaml:"investor_code"`
}

// Tolerances for reconciliation and extraction validation.
type Tolerances struct {
	NAVPct        float64 `yaml:"nav_pct"`
	NAVAbs        float64 `yaml:"nav_abs"`
	CommitmentPct float64 `yaml:"commitment_pct"`
	CommitmentAbs float64 `yaml:"commitment_abs"`
	IRRPp         float64 `yaml:"irr_pp"`
	MultipleAbs   float64 `yaml:"multiple_abs"`
	TVPIIdentity  float64 `yaml:"tvpi_identity"`
}

// LLM holds provider throttling and timeouts.
type LLM struct {
	Model           string        `yaml:"model"`
	Concurrency     int           `yaml:"concurrency"`
	RatePerMinute   int           `yaml:"rate_per_minute"`
	ClassifyTimeout Duration      `yaml:"classify_timeout"`
	ExtractTimeout  Duration      `yaml:"extract_timeout"`
}

// Config is the full pipeline configuration.
type Config struct {
	Roots               []Root   `yaml:"roots"`
	SupportedExtensions []string `yaml:"supported_extensions"`
	MaxFileSizeMB       int      `yaml:"max_file_size_mb"`
	DebounceSeconds     int      `yaml:"debounce_seconds"`
	MaxAttempts         int      `yaml:"max_attempts"`
	WorkQueueCapacity   int      `yaml:"work_queue_capacity"`

	ParserWorkers         int `yaml:"parser_workers"`
	ExtractorWorkers      int `yaml:"extractor_workers"`
	IndexerWorkers        int `yaml:"indexer_workers"`
	ReconciliationWorkers int `yaml:"reconciliation_workers"`

	Tolerances        Tolerances `yaml:"tolerances"`
	ReportingCurrency string     `yaml:"reporting_currency"`
	RescanCron        string     `yaml:"rescan_cron"`
	LLM               LLM        `yaml:"llm"`

	ClassificationMinConfidence float64 `yaml:"classification_min_confidence"`
	LedgerPath                  string  `yaml:"ledger_path"`
	DatabaseURL                 string  `yaml:"database_url"`

	ParserTimeout  Duration `yaml:"parser_timeout"`
	PersistTimeout Duration `yaml:"persist_timeout"`
	IndexTimeout   Duration `yaml:"index_timeout"`
}

// Default returns a Config with every documented default applied.
func Default() Config {
	return Config{
		SupportedExtensions: []string{".pdf", ".xlsx", ".xls", ".csv"},
		MaxFileSizeMB:       100,
		DebounceSeconds:     5,
		MaxAttempts:         3,
		WorkQueueCapacity:   1024,

		ParserWorkers:         4,
		ExtractorWorkers:      4,
		IndexerWorkers:        4,
		ReconciliationWorkers: 2,

		Tolerances: Tolerances{
			NAVPct:        0.001, // 0.1%
			NAVAbs:        100,
			CommitmentPct: 0.001,
			CommitmentAbs: 1,
			IRRPp:         0.1,
			MultipleAbs:   0.01,
			TVPIIdentity:  0.001,
		},
		ReportingCurrency: "EUR",
		RescanCron:        "0 2 * * *",
		LLM: LLM{
			Model:           "gemini-2.0-flash-exp",
			Concurrency:     8,
			RatePerMinute:   60,
			ClassifyTimeout: Duration(45 * time.Second),
			ExtractTimeout:  Duration(45 * time.Second),
		},

		ClassificationMinConfidence: 0.3,
		LedgerPath:                  "data/ledger.json",

		ParserTimeout:  Duration(60 * time.Second),
		PersistTimeout: Duration(30 * time.Second),
		IndexTimeout:   Duration(30 * time.Second),
	}
}

// Load reads a YAML config file over the defaults. Unknown keys are an
// error, not ignored.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the pipeline relies on.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("config: at least one root is required")
	}
	for _, r := range c.Roots {
		if r.Path == "" || r.InvestorCode == "" {
			return fmt.Errorf("config: every root needs path and investor_code")
		}
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("config: max_file_size_mb must be positive")
	}
	if c.WorkQueueCapacity <= 0 {
		return fmt.Errorf("config: work_queue_capacity must be positive")
	}
	if len(c.ReportingCurrency) != 3 {
		return fmt.Errorf("config: reporting_currency must be ISO-4217 (got %q)", c.ReportingCurrency)
	}
	for _, ext := range c.SupportedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("config: extension %q must start with a dot", ext)
		}
	}
	return nil
}

// MaxFileSizeBytes converts the configured MB limit to bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// SupportsExtension reports whether the extension (with dot, any case) is
// configured for ingestion.
func (c *Config) SupportsExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range c.SupportedExtensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// InvestorForPath returns the investor_code of the root containing path.
func (c *Config) InvestorForPath(path string) (string, bool) {
	for _, r := range c.Roots {
		if strings.HasPrefix(path, strings.TrimSuffix(r.Path, "/")+"/") || path == r.Path {
			return r.InvestorCode, true
		}
	}
	return "", false
}

// DebounceWindow converts debounce_seconds to a duration.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}
