// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML duration
// strings like "30s" or "24h". Plain integers are read as nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Config holds the full daemon configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	Serving   ServingConfig   `yaml:"serving"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServingConfig tunes the ad selection engine.
type ServingConfig struct {
	// ShortlistSize bounds the number of candidates entering the auction.
	ShortlistSize int `yaml:"shortlist_size"`
	// FrequencyCap is the maximum times one creative is shown to a session.
	// Zero disables capping.
	FrequencyCap int `yaml:"frequency_cap"`
	// RequestTimeout bounds a single RequestAd call.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// AnalyticsConfig tunes event retention and the insight cycle.
type AnalyticsConfig struct {
	// Retention is how long raw events are kept before pruning.
	Retention Duration `yaml:"retention"`
	// InsightInterval is the period between insight generation passes.
	InsightInterval Duration `yaml:"insight_interval"`
	// IngestBatchSize bounds a single event batch drained from the stream.
	IngestBatchSize int `yaml:"ingest_batch_size"`
	// IngestFlushInterval bounds how long a partial batch may wait.
	IngestFlushInterval Duration `yaml:"ingest_flush_interval"`

	Alerts AlertThresholds `yaml:"alerts"`
}

// AlertThresholds are the alerting trigger levels.
type AlertThresholds struct {
	// MinCTR in percent; metrics below trigger a low-CTR alert.
	MinCTR float64 `yaml:"min_ctr"`
	// MaxCPM in dollars; metrics above trigger a high-CPM alert.
	MaxCPM float64 `yaml:"max_cpm"`
	// MinRevenue in dollars; metrics below trigger a low-revenue alert.
	MinRevenue float64 `yaml:"min_revenue"`
	// MinImpressions gates alerting so empty metrics do not fire.
	MinImpressions int64 `yaml:"min_impressions"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		ListenAddr: ":8000",
		LogLevel:   "info",
		Serving: ServingConfig{
			ShortlistSize:  10,
			FrequencyCap:   0,
			RequestTimeout: Duration(50 * time.Millisecond),
		},
		Analytics: AnalyticsConfig{
			Retention:           Duration(30 * 24 * time.Hour),
			InsightInterval:     Duration(5 * time.Minute),
			IngestBatchSize:     256,
			IngestFlushInterval: Duration(time.Second),
			Alerts: AlertThresholds{
				MinCTR:         0.5,
				MaxCPM:         20.0,
				MinRevenue:     1.0,
				MinImpressions: 100,
			},
		},
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Serving.ShortlistSize <= 0 {
		return fmt.Errorf("serving.shortlist_size must be positive, got %d", c.Serving.ShortlistSize)
	}
	if c.Analytics.Retention <= 0 {
		return fmt.Errorf("analytics.retention must be positive, got %s", c.Analytics.Retention)
	}
	if c.Analytics.InsightInterval <= 0 {
		return fmt.Errorf("analytics.insight_interval must be positive, got %s", c.Analytics.InsightInterval)
	}
	return nil
}
