package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL   = "https://epgshare01.online/epgshare01/"
	DefaultUserAgent = "Mozilla/5.0 (compatible; merged-epg/1.0; +https://github.com/Junior2237/merged-epg-filtered)"
)

// DefaultFiles are joined to BaseURL when no explicit sources are configured.
var DefaultFiles = []string{
	"epg_ripper_BEIN1.xml.gz",
	"epg_ripper_BR1.xml.gz",
	"epg_ripper_BR2.xml.gz",
	"epg_ripper_CA2.xml.gz",
	"epg_ripper_UK1.xml.gz",
	"epg_ripper_DELUXEMUSIC1.xml.gz",
	"epg_ripper_DIRECTVSPORTS1.xml.gz",
	"epg_ripper_DISTROTV1.xml.gz",
	"epg_ripper_DRAFTKINGS1.xml.gz",
	"epg_ripper_DUMMY_CHANNELS.xml.gz",
	"epg_ripper_ES1.xml.gz",
	"epg_ripper_FANDUEL1.xml.gz",
	"epg_ripper_FI1.xml.gz",
	"epg_ripper_PEACOCK1.xml.gz",
	"epg_ripper_PLEX1.xml.gz",
	"epg_ripper_POWERNATION1.xml.gz",
	"epg_ripper_RAKUTEN1.xml.gz",
	"epg_ripper_RALLY_TV1.xml.gz",
	"epg_ripper_SPORTKLUB1.xml.gz",
	"epg_ripper_SSPORTPLUS1.xml.gz",
	"epg_ripper_TBNPLUS1.xml.gz",
	"epg_ripper_THESPORTPLUS1.xml.gz",
	"epg_ripper_US2.xml.gz",
	"epg_ripper_US_LOCALS1.xml.gz",
	"epg_ripper_US_SPORTS1.xml.gz",
	"locomotiontv.xml.gz",
}

// Config is the full run configuration.
type Config struct {
	BaseURL          string      `yaml:"base_url"`
	Files            []string    `yaml:"files"`
	Sources          []string    `yaml:"sources"`
	KeepPastDays     int         `yaml:"keep_past_days"`
	KeepFutureDays   int         `yaml:"keep_future_days"`
	Output           string      `yaml:"output"`
	Previous         string      `yaml:"previous"`
	Fetch            FetchConfig `yaml:"fetch"`
	GeneratorName    string      `yaml:"generator_name"`
	CompressionLevel int         `yaml:"compression_level"`
	MetricsFile      string      `yaml:"metrics_file"`
}

// FetchConfig tunes source downloads.
type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Attempts    int           `yaml:"attempts"`
	Backoff     time.Duration `yaml:"backoff"`
	Concurrency int           `yaml:"concurrency"`
	UserAgent   string        `yaml:"user_agent"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		Files:          append([]string(nil), DefaultFiles...),
		KeepPastDays:   2,
		KeepFutureDays: 7,
		Output:         "merged_epg.xml.gz",
		Previous:       "dist/epg.xml.gz",
		Fetch: FetchConfig{
			Timeout:     180 * time.Second,
			Attempts:    3,
			Backoff:     2 * time.Second,
			Concurrency: 4,
			UserAgent:   DefaultUserAgent,
		},
		GeneratorName: "epgmerge",
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped when
// path is empty) and EPG_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.BaseURL = getEnv("EPG_BASE_URL", c.BaseURL)
	if v := os.Getenv("EPG_SOURCES"); v != "" {
		c.Sources = splitList(v)
	}
	c.Output = getEnv("EPG_OUTPUT", c.Output)
	c.Previous = getEnv("EPG_PREVIOUS", c.Previous)
	c.MetricsFile = getEnv("EPG_METRICS_FILE", c.MetricsFile)
	c.Fetch.UserAgent = getEnv("EPG_USER_AGENT", c.Fetch.UserAgent)

	var err error
	if c.KeepPastDays, err = getIntEnv("EPG_KEEP_PAST_DAYS", c.KeepPastDays); err != nil {
		return err
	}
	if c.KeepFutureDays, err = getIntEnv("EPG_KEEP_FUTURE_DAYS", c.KeepFutureDays); err != nil {
		return err
	}
	if c.Fetch.Attempts, err = getIntEnv("EPG_FETCH_ATTEMPTS", c.Fetch.Attempts); err != nil {
		return err
	}
	if c.Fetch.Concurrency, err = getIntEnv("EPG_FETCH_CONCURRENCY", c.Fetch.Concurrency); err != nil {
		return err
	}
	if c.Fetch.Timeout, err = getDurationEnv("EPG_FETCH_TIMEOUT", c.Fetch.Timeout); err != nil {
		return err
	}
	if c.Fetch.Backoff, err = getDurationEnv("EPG_FETCH_BACKOFF", c.Fetch.Backoff); err != nil {
		return err
	}
	return nil
}

// SourceURLs returns the explicit sources, or BaseURL joined with each file.
func (c *Config) SourceURLs() []string {
	if len(c.Sources) > 0 {
		return append([]string(nil), c.Sources...)
	}
	urls := make([]string, 0, len(c.Files))
	for _, f := range c.Files {
		urls = append(urls, c.BaseURL+f)
	}
	return urls
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	var errs []error

	urls := c.SourceURLs()
	if len(urls) == 0 {
		errs = append(errs, errors.New("no sources configured"))
	}
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", raw, err))
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("source %q: scheme must be http or https", raw))
		}
	}

	if c.KeepPastDays < 0 {
		errs = append(errs, errors.New("keep_past_days must not be negative"))
	}
	if c.KeepFutureDays < 0 {
		errs = append(errs, errors.New("keep_future_days must not be negative"))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output is required"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.Fetch.Attempts < 1 {
		errs = append(errs, errors.New("fetch.attempts must be at least 1"))
	}
	if c.Fetch.Backoff < 0 {
		errs = append(errs, errors.New("fetch.backoff must not be negative"))
	}
	if c.Fetch.Concurrency < 1 {
		errs = append(errs, errors.New("fetch.concurrency must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
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
