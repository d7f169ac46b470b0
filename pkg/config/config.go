package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for tweetharvest
type Config struct {
	// API credentials and transport
	Twitter TwitterConfig `yaml:"twitter" json:"twitter"`

	// Batch lookup settings
	Hydrate HydrateConfig `yaml:"hydrate" json:"hydrate"`

	// Search pagination settings
	Search SearchConfig `yaml:"search" json:"search"`

	// Output file settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Optional Postgres copy of fetched records
	Archive ArchiveConfig `yaml:"archive" json:"archive"`
}

// TwitterConfig holds API-specific configuration
type TwitterConfig struct {
	AppKey    string        `yaml:"app_key" json:"app_key"`
	AppSecret string        `yaml:"app_secret" json:"app_secret"`
	Profile   string        `yaml:"profile" json:"profile"`
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	TokenURL  string        `yaml:"token_url" json:"token_url"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	Extended  bool          `yaml:"extended" json:"extended"`
}

// HydrateConfig holds the batch fetch loop configuration
type HydrateConfig struct {
	BatchSize        int           `yaml:"batch_size" json:"batch_size"`
	JSONKey          string        `yaml:"json_key" json:"json_key"`
	Interval         time.Duration `yaml:"interval" json:"interval"`
	RetryInterval    time.Duration `yaml:"retry_interval" json:"retry_interval"`
	RetryStrategy    string        `yaml:"retry_strategy" json:"retry_strategy"`
	MaxRetries       int           `yaml:"max_retries" json:"max_retries"`
	ProgressInterval time.Duration `yaml:"progress_interval" json:"progress_interval"`
	Resume           bool          `yaml:"resume" json:"resume"`
}

// SearchConfig holds the pagination walker configuration
type SearchConfig struct {
	Count         int    `yaml:"count" json:"count"`
	MaxPages      int    `yaml:"max_pages" json:"max_pages"`
	ResultType    string `yaml:"result_type" json:"result_type"`
	Lang          string `yaml:"lang" json:"lang"`
	ProgressEvery int    `yaml:"progress_every" json:"progress_every"`
}

// OutputConfig holds output file configuration. Empty paths are derived from the input name.
type OutputConfig struct {
	RecordFile  string `yaml:"record_file" json:"record_file"`
	FailureFile string `yaml:"failure_file" json:"failure_file"`
	TabularFile string `yaml:"tabular_file" json:"tabular_file"`
	Sync        bool   `yaml:"sync" json:"sync"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// MetricsConfig holds the metrics listener configuration
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// ArchiveConfig holds the Postgres archive configuration
type ArchiveConfig struct {
	DSN      string `yaml:"dsn" json:"dsn"`
	Table    string `yaml:"table" json:"table"`
	MaxConns int32  `yaml:"max_conns" json:"max_conns"`
}

// MinRetryInterval is the shortest accepted pause between retries.
const MinRetryInterval = time.Second

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Twitter: TwitterConfig{
			BaseURL:   "https://api.twitter.com/1.1",
			TokenURL:  "https://api.twitter.com/oauth2/token",
			UserAgent: "tweetharvest/1.0",
			Timeout:   30 * time.Second,
		},
		Hydrate: HydrateConfig{
			BatchSize:        100,
			JSONKey:          "",
			Interval:         1 * time.Second,
			RetryInterval:    30 * time.Second,
			RetryStrategy:    "constant",
			MaxRetries:       0, // 0 means unbounded
			ProgressInterval: 10 * time.Second,
		},
		Search: SearchConfig{
			Count:         100,
			MaxPages:      0,
			ResultType:    "recent",
			ProgressEvery: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Archive: ArchiveConfig{
			Table:    "tweets",
			MaxConns: 4,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	// Credentials keep the names the collection scripts always used
	if key := os.Getenv("TWITTER_APP_KEY"); key != "" {
		c.Twitter.AppKey = key
	}
	if secret := os.Getenv("TWITTER_APP_SECRET"); secret != "" {
		c.Twitter.AppSecret = secret
	}
	if profile := os.Getenv("TWEETHARVEST_PROFILE"); profile != "" {
		c.Twitter.Profile = profile
	}
	if baseURL := os.Getenv("TWEETHARVEST_BASE_URL"); baseURL != "" {
		c.Twitter.BaseURL = baseURL
	}
	if tokenURL := os.Getenv("TWEETHARVEST_TOKEN_URL"); tokenURL != "" {
		c.Twitter.TokenURL = tokenURL
	}

	if v := os.Getenv("TWEETHARVEST_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TWEETHARVEST_BATCH_SIZE: %w", err))
		} else {
			c.Hydrate.BatchSize = n
		}
	}
	if v := os.Getenv("TWEETHARVEST_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TWEETHARVEST_INTERVAL: %w", err))
		} else {
			c.Hydrate.Interval = d
		}
	}
	if v := os.Getenv("TWEETHARVEST_RETRY_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TWEETHARVEST_RETRY_INTERVAL: %w", err))
		} else {
			c.Hydrate.RetryInterval = d
		}
	}
	if v := os.Getenv("TWEETHARVEST_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TWEETHARVEST_MAX_RETRIES: %w", err))
		} else {
			c.Hydrate.MaxRetries = n
		}
	}
	if v := os.Getenv("TWEETHARVEST_EXTENDED"); v != "" {
		c.Twitter.Extended = strings.ToLower(v) == "true"
	}

	if logLevel := os.Getenv("TWEETHARVEST_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("TWEETHARVEST_LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}
	if addr := os.Getenv("TWEETHARVEST_METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
	}
	if dsn := os.Getenv("TWEETHARVEST_ARCHIVE_DSN"); dsn != "" {
		c.Archive.DSN = dsn
	}

	return errors.Join(errs...)
}

// parseSeconds accepts either a Go duration ("1.5s") or a bare number of seconds ("1.5").
func parseSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return Seconds(f), nil
}

// Seconds converts a float number of seconds to a Duration.
func Seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".tweetharvest.yaml",
		".tweetharvest.yml",
		filepath.Join(home, ".config", "tweetharvest", "config.yaml"),
		filepath.Join(home, ".config", "tweetharvest", "config.yml"),
		filepath.Join(home, ".tweetharvest.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid.
// Credentials are not checked here: they may come from a credential store,
// and their absence is reported as an authentication failure by the client.
func (c *Config) Validate() error {
	var errs []error

	if c.Twitter.BaseURL == "" {
		errs = append(errs, errors.New("twitter base URL is required"))
	}
	if c.Twitter.TokenURL == "" {
		errs = append(errs, errors.New("twitter token URL is required"))
	}
	if c.Twitter.Timeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Hydrate.BatchSize <= 0 || c.Hydrate.BatchSize > 100 {
		errs = append(errs, errors.New("batch size must be between 1 and 100"))
	}
	if c.Hydrate.RetryInterval < MinRetryInterval {
		errs = append(errs, fmt.Errorf("retry interval must be at least %s", MinRetryInterval))
	}
	if c.Hydrate.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.Hydrate.ProgressInterval <= 0 {
		errs = append(errs, errors.New("progress interval must be positive"))
	}
	switch strings.ToLower(c.Hydrate.RetryStrategy) {
	case "constant", "exponential":
	default:
		errs = append(errs, fmt.Errorf("invalid retry strategy %q", c.Hydrate.RetryStrategy))
	}

	if c.Search.Count <= 0 || c.Search.Count > 100 {
		errs = append(errs, errors.New("search count must be between 1 and 100"))
	}
	if c.Search.MaxPages < 0 {
		errs = append(errs, errors.New("max pages cannot be negative"))
	}
	switch c.Search.ResultType {
	case "", "recent", "popular", "mixed":
	default:
		errs = append(errs, fmt.Errorf("invalid search result type %q", c.Search.ResultType))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Logging.Format))
	}

	if c.Archive.DSN != "" && c.Archive.Table == "" {
		errs = append(errs, errors.New("archive table is required when a DSN is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied, so the caller decides which
// flags were explicitly set.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output-name"].(string); ok && v != "" {
		c.Output.RecordFile = v
		c.Output.TabularFile = v
	}
	if v, ok := flags["errors-name"].(string); ok && v != "" {
		c.Output.FailureFile = v
	}
	if v, ok := flags["json-key"].(string); ok && v != "" {
		c.Hydrate.JSONKey = v
	}
	if v, ok := flags["extended"].(bool); ok {
		c.Twitter.Extended = v
	}
	if v, ok := flags["interval"].(float64); ok {
		c.Hydrate.Interval = Seconds(v)
	}
	if v, ok := flags["retry-interval"].(float64); ok {
		c.Hydrate.RetryInterval = Seconds(v)
	}
	if v, ok := flags["retry-strategy"].(string); ok && v != "" {
		c.Hydrate.RetryStrategy = v
	}
	if v, ok := flags["max-retries"].(int); ok {
		c.Hydrate.MaxRetries = v
	}
	if v, ok := flags["batch-size"].(int); ok {
		c.Hydrate.BatchSize = v
	}
	if v, ok := flags["resume"].(bool); ok {
		c.Hydrate.Resume = v
	}
	if v, ok := flags["count"].(int); ok {
		c.Search.Count = v
	}
	if v, ok := flags["max-pages"].(int); ok {
		c.Search.MaxPages = v
	}
	if v, ok := flags["result-type"].(string); ok && v != "" {
		c.Search.ResultType = v
	}
	if v, ok := flags["lang"].(string); ok && v != "" {
		c.Search.Lang = v
	}
	if v, ok := flags["profile"].(string); ok && v != "" {
		c.Twitter.Profile = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-format"].(string); ok && v != "" {
		c.Logging.Format = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.Addr = v
	}
	if v, ok := flags["archive-dsn"].(string); ok && v != "" {
		c.Archive.DSN = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".tweetharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
