// Package config loads notevault's configuration: index paths, the
// embedding and vision endpoints, scheduler timings, and search defaults.
// Values are layered default -> YAML file -> environment variable, the
// same order the teacher repo's config layer used.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Embedding describes how to reach the remote embedding endpoint.
type Embedding struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// Vision describes how to reach the remote vision-extraction endpoint.
type Vision struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// Scheduler holds the timing constants spec.md §4.6 names.
type Scheduler struct {
	DebounceMillis       int `yaml:"debounce_millis"`
	ActiveReindexMillis  int `yaml:"active_reindex_millis"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	RequeueDelayMillis   int `yaml:"requeue_delay_millis"`
}

// Search holds default query parameters.
type Search struct {
	Limit        int     `yaml:"limit"`
	Threshold    float64 `yaml:"threshold"`
	MaxSources   int     `yaml:"max_sources"`
	MaxPerSource int     `yaml:"max_per_source"`
}

// Config is the full, process-wide configuration value. It is passed by
// reference into each component's constructor; nothing reads environment
// variables outside Load.
type Config struct {
	IndexPath    string    `yaml:"index_path"`
	CorpusRoot   string    `yaml:"corpus_root"`
	LogLevel     string    `yaml:"log_level"`
	Embedding    Embedding `yaml:"embedding"`
	Vision       Vision    `yaml:"vision"`
	Scheduler    Scheduler `yaml:"scheduler"`
	Search       Search    `yaml:"search"`
	BatchSize    int       `yaml:"batch_size"`
	ImageSources bool      `yaml:"image_sources"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		IndexPath:  "vector-index/embeddings.json",
		CorpusRoot: ".",
		LogLevel:   "warn",
		Embedding: Embedding{
			Endpoint: "http://localhost:11434/v1/embeddings",
			Model:    "nomic-embed-text",
		},
		Vision: Vision{
			Endpoint: "http://localhost:11434/v1/chat/completions",
			Model:    "llava",
		},
		Scheduler: Scheduler{
			DebounceMillis:       500,
			ActiveReindexMillis:  100,
			SweepIntervalSeconds: 30,
			RequeueDelayMillis:   250,
		},
		Search: Search{
			Limit:        10,
			Threshold:    0.0,
			MaxSources:   5,
			MaxPerSource: 3,
		},
		BatchSize:    32,
		ImageSources: true,
	}
}

// Load layers a YAML file at path (if it exists) and then environment
// overrides on top of Default, validating the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			var fileCfg Config
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			mergeInto(cfg, &fileCfg)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeInto overlays non-zero fields of override onto base.
func mergeInto(base *Config, override *Config) {
	if override.IndexPath != "" {
		base.IndexPath = override.IndexPath
	}
	if override.CorpusRoot != "" {
		base.CorpusRoot = override.CorpusRoot
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
	if override.Embedding.Endpoint != "" {
		base.Embedding.Endpoint = override.Embedding.Endpoint
	}
	if override.Embedding.Model != "" {
		base.Embedding.Model = override.Embedding.Model
	}
	if override.Embedding.APIKey != "" {
		base.Embedding.APIKey = override.Embedding.APIKey
	}
	if override.Vision.Endpoint != "" {
		base.Vision.Endpoint = override.Vision.Endpoint
	}
	if override.Vision.Model != "" {
		base.Vision.Model = override.Vision.Model
	}
	if override.Vision.APIKey != "" {
		base.Vision.APIKey = override.Vision.APIKey
	}
	if override.Scheduler.DebounceMillis != 0 {
		base.Scheduler.DebounceMillis = override.Scheduler.DebounceMillis
	}
	if override.Scheduler.ActiveReindexMillis != 0 {
		base.Scheduler.ActiveReindexMillis = override.Scheduler.ActiveReindexMillis
	}
	if override.Scheduler.SweepIntervalSeconds != 0 {
		base.Scheduler.SweepIntervalSeconds = override.Scheduler.SweepIntervalSeconds
	}
	if override.Scheduler.RequeueDelayMillis != 0 {
		base.Scheduler.RequeueDelayMillis = override.Scheduler.RequeueDelayMillis
	}
	if override.Search.Limit != 0 {
		base.Search.Limit = override.Search.Limit
	}
	if override.Search.MaxSources != 0 {
		base.Search.MaxSources = override.Search.MaxSources
	}
	if override.Search.MaxPerSource != 0 {
		base.Search.MaxPerSource = override.Search.MaxPerSource
	}
	base.Search.Threshold = override.Search.Threshold
	if override.BatchSize != 0 {
		base.BatchSize = override.BatchSize
	}
}

// applyEnv overrides a handful of fields commonly injected by process
// supervisors, mirroring the teacher's AMANMCP_* env override layer.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NOTEVAULT_EMBEDDING_ENDPOINT"); v != "" {
		cfg.Embedding.Endpoint = v
	}
	if v := os.Getenv("NOTEVAULT_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("NOTEVAULT_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("NOTEVAULT_VISION_ENDPOINT"); v != "" {
		cfg.Vision.Endpoint = v
	}
	if v := os.Getenv("NOTEVAULT_VISION_MODEL"); v != "" {
		cfg.Vision.Model = v
	}
	if v := os.Getenv("NOTEVAULT_INDEX_PATH"); v != "" {
		cfg.IndexPath = v
	}
	if v := os.Getenv("NOTEVAULT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NOTEVAULT_SEARCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.Threshold = f
		}
	}
}

// Validate rejects configurations the rest of the system cannot act on.
func (c *Config) Validate() error {
	if c.IndexPath == "" {
		return fmt.Errorf("index_path must not be empty")
	}
	if c.Embedding.Endpoint == "" {
		return fmt.Errorf("embedding.endpoint must not be empty")
	}
	if c.Scheduler.DebounceMillis <= 0 {
		return fmt.Errorf("scheduler.debounce_millis must be positive")
	}
	if c.Scheduler.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.sweep_interval_seconds must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	return nil
}

// DebounceDuration is a typed convenience accessor.
func (s Scheduler) DebounceDuration() time.Duration {
	return time.Duration(s.DebounceMillis) * time.Millisecond
}

// ActiveReindexDuration is a typed convenience accessor.
func (s Scheduler) ActiveReindexDuration() time.Duration {
	return time.Duration(s.ActiveReindexMillis) * time.Millisecond
}

// SweepInterval is a typed convenience accessor.
func (s Scheduler) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// RequeueDelay is a typed convenience accessor.
func (s Scheduler) RequeueDelay() time.Duration {
	return time.Duration(s.RequeueDelayMillis) * time.Millisecond
}
