package control

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"volley/internal/runner"
	"volley/internal/stats"
)

// Config describes one burst. It is filled from flags, env and config file.
type Config struct {
	URL     string            `json:"url" mapstructure:"url"`
	Method  string            `json:"method" mapstructure:"method"`
	Headers map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Body    string            `json:"body,omitempty" mapstructure:"body"`

	// Workers is the cohort size. With a data file, 0 means one per row.
	Workers     int `json:"workers" mapstructure:"workers"`
	MaxInFlight int `json:"max_in_flight,omitempty" mapstructure:"max-inflight"`

	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"timeout"`
	OverallTimeout time.Duration `json:"overall_timeout" mapstructure:"overall-timeout"`
	ReadyTimeout   time.Duration `json:"ready_timeout,omitempty" mapstructure:"ready-timeout"`
	Degraded       bool          `json:"degraded,omitempty" mapstructure:"degraded"`

	Percentile float64 `json:"percentile" mapstructure:"percentile"`
	SampleSize int     `json:"sample_size" mapstructure:"samples"`

	DataFile string `json:"data_file,omitempty" mapstructure:"data"`
	Expect   string `json:"expect,omitempty" mapstructure:"expect"`
	Insecure bool   `json:"insecure,omitempty" mapstructure:"insecure"`
}

func DefaultConfig() Config {
	return Config{
		Method:         "GET",
		Workers:        10,
		RequestTimeout: 30 * time.Second,
		OverallTimeout: 120 * time.Second,
		Percentile:     stats.DefaultPercentile,
		SampleSize:     stats.DefaultSampleSize,
	}
}

// Validate checks everything that can be checked before the data file is
// read. Every error wraps runner.ErrInvalidConfig.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", runner.ErrInvalidConfig)
	}
	if u, err := url.Parse(c.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		// Templated URLs are checked again after rendering.
		if !strings.Contains(c.URL, "{{") {
			return fmt.Errorf("%w: url %q must be an absolute http(s) URL", runner.ErrInvalidConfig, c.URL)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers cannot be negative", runner.ErrInvalidConfig)
	}
	if c.Workers == 0 && c.DataFile == "" {
		return fmt.Errorf("%w: %w: workers must be greater than 0 without a data file", runner.ErrInvalidConfig, runner.ErrNoTasks)
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("%w: max in-flight cannot be negative", runner.ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be greater than 0", runner.ErrInvalidConfig)
	}
	if c.OverallTimeout < c.RequestTimeout {
		return fmt.Errorf("%w: overall timeout (%s) must be at least the request timeout (%s)", runner.ErrInvalidConfig, c.OverallTimeout, c.RequestTimeout)
	}
	if c.ReadyTimeout < 0 {
		return fmt.Errorf("%w: ready timeout cannot be negative", runner.ErrInvalidConfig)
	}
	if c.Degraded && c.ReadyTimeout == 0 {
		return fmt.Errorf("%w: degraded mode needs a ready timeout", runner.ErrInvalidConfig)
	}
	if c.Percentile <= 0 || c.Percentile > 100 {
		return fmt.Errorf("%w: percentile must be in (0, 100]", runner.ErrInvalidConfig)
	}
	if c.SampleSize < 0 {
		return fmt.Errorf("%w: sample size cannot be negative", runner.ErrInvalidConfig)
	}
	return nil
}
