package model

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// ErrConflictingNegativePolicy is returned when both negative sampling policies are set
var ErrConflictingNegativePolicy = errors.New("negative sampling: max_size and balance are mutually exclusive")

// Config is the complete run configuration
type Config struct {
	Project          ProjectConfig   `json:"project" yaml:"project" mapstructure:"project"`
	Language         string          `json:"language" yaml:"language" mapstructure:"language"`
	FallbackLanguage string          `json:"fallback_language" yaml:"fallback_language" mapstructure:"fallback_language"`
	Workers          int             `json:"workers" yaml:"workers" mapstructure:"workers"`
	Crawl            CrawlConfig     `json:"crawl" yaml:"crawl" mapstructure:"crawl"`
	Alignment        AlignConfig     `json:"alignment" yaml:"alignment" mapstructure:"alignment"`
	Negative         NegativeConfig  `json:"negative" yaml:"negative" mapstructure:"negative"`
	Corpus           CorpusConfig    `json:"corpus" yaml:"corpus" mapstructure:"corpus"`
	HTTP             HTTPConfig      `json:"http" yaml:"http" mapstructure:"http"`
	RateLimiting     RateLimitConfig `json:"rate_limiting" yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Cache            CacheConfig     `json:"cache" yaml:"cache" mapstructure:"cache"`
	Store            StoreConfig     `json:"store" yaml:"store" mapstructure:"store"`
	Annotator        AnnotatorConfig `json:"annotator" yaml:"annotator" mapstructure:"annotator"`
	Log              LogConfig       `json:"log" yaml:"log" mapstructure:"log"`
	Entities         []EntityType    `json:"entities" yaml:"entities" mapstructure:"entities"`
}

// ProjectConfig locates the project's on-disk state
type ProjectConfig struct {
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"` // Parent of the project folder
}

// Dir returns the project folder
func (p ProjectConfig) Dir() string {
	if p.DataDir == "" {
		return "projects/" + p.Name
	}
	return p.DataDir + "/" + p.Name
}

// CrawlConfig controls WhatLinksHere enumeration
type CrawlConfig struct {
	BaseURL   string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	PageSize  int    `json:"page_size" yaml:"page_size" mapstructure:"page_size"` // Items per list page ("next N")
	MaxPages  int    `json:"max_pages" yaml:"max_pages" mapstructure:"max_pages"` // Stop after this many pages, 0 = unlimited
	SaveStep  int    `json:"save_step" yaml:"save_step" mapstructure:"save_step"` // Persist the checkpoint every N pages, 0 = only at the end
	Namespace int    `json:"namespace" yaml:"namespace" mapstructure:"namespace"`
}

// AlignConfig controls the alignment engine
type AlignConfig struct {
	ScoreCutoff   float64 `json:"score_cutoff" yaml:"score_cutoff" mapstructure:"score_cutoff"`
	KeepUnmatched bool    `json:"keep_unmatched" yaml:"keep_unmatched" mapstructure:"keep_unmatched"` // Retain entities with no matched sentence
}

// NegativeConfig selects the Other-class sampling policy
type NegativeConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	MaxSize int  `json:"max_size" yaml:"max_size" mapstructure:"max_size"` // Absolute cap
	Balance bool `json:"balance" yaml:"balance" mapstructure:"balance"`   // Cap at the number of labeled sentences
}

// CorpusConfig controls export
type CorpusConfig struct {
	RemoveNoMatch bool     `json:"remove_no_match" yaml:"remove_no_match" mapstructure:"remove_no_match"`
	Relations     []string `json:"relations" yaml:"relations" mapstructure:"relations"` // Keep only these relation labels, empty = all
	Format        string   `json:"format" yaml:"format" mapstructure:"format"`       // ndjson or sqlite
	Path          string   `json:"path" yaml:"path" mapstructure:"path"`
}

// HTTPConfig configures outbound requests
type HTTPConfig struct {
	Timeout       time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `json:"max_body_bytes" yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy     string        `json:"http_proxy" yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy    string        `json:"https_proxy" yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy       string        `json:"no_proxy" yaml:"no_proxy" mapstructure:"no_proxy"`
	RespectRobots bool          `json:"respect_robots" yaml:"respect_robots" mapstructure:"respect_robots"`
}

// RateLimitConfig configures the per-host limiter
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size" mapstructure:"burst_size"`
}

// CacheConfig configures the response cache
type CacheConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	MemoryTTL time.Duration `json:"memory_ttl" yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskDir   string        `json:"disk_dir" yaml:"disk_dir" mapstructure:"disk_dir"`
	DiskTTL   time.Duration `json:"disk_ttl" yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// StoreConfig selects the snapshot backend
type StoreConfig struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"` // disk or badger
	Path    string `json:"path" yaml:"path" mapstructure:"path"`       // Defaults to the project folder
}

// AnnotatorConfig points at the linguistic annotation service
type AnnotatorConfig struct {
	URL     string        `json:"url" yaml:"url" mapstructure:"url"` // Empty uses the built-in splitter
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// LogConfig configures logging and metrics
type LogConfig struct {
	Level       string `json:"level" yaml:"level" mapstructure:"level"`
	File        string `json:"file" yaml:"file" mapstructure:"file"`
	MaxSizeMB   int    `json:"max_size_mb" yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups  int    `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups"`
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr" mapstructure:"metrics_addr"`
}

// DefaultConfig returns the defaults used when no config file overrides them
func DefaultConfig() *Config {
	return &Config{
		Project:          ProjectConfig{Name: "Q5", DataDir: "projects"},
		Language:         "en",
		FallbackLanguage: "en",
		Workers:          runtime.NumCPU(),
		Crawl: CrawlConfig{
			BaseURL:   "https://www.wikidata.org",
			PageSize:  100,
			MaxPages:  0,
			SaveStep:  10,
			Namespace: 0,
		},
		Alignment: AlignConfig{
			ScoreCutoff:   90,
			KeepUnmatched: true,
		},
		Negative: NegativeConfig{Enabled: false},
		Corpus: CorpusConfig{
			RemoveNoMatch: false,
			Format:        "ndjson",
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "dares/0.1 (+https://github.com/ppiankov/dares)",
			MaxBodyBytes:  10_000_000,
			RespectRobots: false,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: time.Hour,
			DiskTTL:   24 * time.Hour,
		},
		Store: StoreConfig{Backend: "disk"},
		Annotator: AnnotatorConfig{
			Timeout: time.Minute,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Validate checks the configuration before any work starts
func (c *Config) Validate() error {
	if c.Language == "" {
		return fmt.Errorf("language must be set")
	}
	if len(c.Entities) == 0 {
		return fmt.Errorf("at least one entity type must be configured")
	}
	for _, t := range c.Entities {
		if t.Type == "" {
			return fmt.Errorf("entity type with empty identifier")
		}
	}
	if c.Alignment.ScoreCutoff < 0 || c.Alignment.ScoreCutoff > 100 {
		return fmt.Errorf("score_cutoff must be within [0, 100], got %v", c.Alignment.ScoreCutoff)
	}
	if c.Crawl.PageSize <= 0 {
		return fmt.Errorf("crawl page_size must be positive, got %d", c.Crawl.PageSize)
	}
	if err := c.Negative.Validate(); err != nil {
		return err
	}
	switch c.Store.Backend {
	case "", "disk", "badger":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Corpus.Format {
	case "", "ndjson", "sqlite":
	default:
		return fmt.Errorf("unknown corpus format %q", c.Corpus.Format)
	}
	return nil
}

// Validate rejects the simultaneous use of both sizing policies
func (n NegativeConfig) Validate() error {
	if n.MaxSize > 0 && n.Balance {
		return ErrConflictingNegativePolicy
	}
	if n.MaxSize < 0 {
		return fmt.Errorf("negative max_size must not be negative, got %d", n.MaxSize)
	}
	return nil
}
