package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 100, cfg.Hydrate.BatchSize)
	assert.Empty(t, cfg.Hydrate.JSONKey)
	assert.Equal(t, time.Second, cfg.Hydrate.Interval)
	assert.Equal(t, 30*time.Second, cfg.Hydrate.RetryInterval)
	assert.Equal(t, 0, cfg.Hydrate.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Hydrate.ProgressInterval)
	assert.Equal(t, 100, cfg.Search.Count)
	assert.Equal(t, 0, cfg.Search.MaxPages)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TWITTER_APP_KEY", "env-key")
	t.Setenv("TWITTER_APP_SECRET", "env-secret")
	t.Setenv("TWEETHARVEST_BATCH_SIZE", "50")
	t.Setenv("TWEETHARVEST_INTERVAL", "2.5")
	t.Setenv("TWEETHARVEST_RETRY_INTERVAL", "45s")
	t.Setenv("TWEETHARVEST_MAX_RETRIES", "4")
	t.Setenv("TWEETHARVEST_EXTENDED", "true")
	t.Setenv("TWEETHARVEST_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "env-key", cfg.Twitter.AppKey)
	assert.Equal(t, "env-secret", cfg.Twitter.AppSecret)
	assert.Equal(t, 50, cfg.Hydrate.BatchSize)
	assert.Equal(t, 2500*time.Millisecond, cfg.Hydrate.Interval)
	assert.Equal(t, 45*time.Second, cfg.Hydrate.RetryInterval)
	assert.Equal(t, 4, cfg.Hydrate.MaxRetries)
	assert.True(t, cfg.Twitter.Extended)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("TWEETHARVEST_BATCH_SIZE", "lots")
	t.Setenv("TWEETHARVEST_INTERVAL", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWEETHARVEST_BATCH_SIZE")
	assert.Contains(t, err.Error(), "TWEETHARVEST_INTERVAL")
	assert.Equal(t, 100, cfg.Hydrate.BatchSize)
}

func TestLoadFromFile(t *testing.T) {
	t.Run("valid yaml file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := `
twitter:
  base_url: http://localhost:9999/1.1
  extended: true
hydrate:
  batch_size: 20
  retry_interval: 5s
  max_retries: 3
search:
  max_pages: 7
logging:
  level: warn
  format: json
`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(configPath))

		assert.Equal(t, "http://localhost:9999/1.1", cfg.Twitter.BaseURL)
		assert.True(t, cfg.Twitter.Extended)
		assert.Equal(t, 20, cfg.Hydrate.BatchSize)
		assert.Equal(t, 5*time.Second, cfg.Hydrate.RetryInterval)
		assert.Equal(t, 3, cfg.Hydrate.MaxRetries)
		assert.Equal(t, 7, cfg.Search.MaxPages)
		assert.Equal(t, "json", cfg.Logging.Format)
		// untouched keys keep their defaults
		assert.Empty(t, cfg.Hydrate.JSONKey)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("hydrate: [unclosed"), 0644))

		err := DefaultConfig().LoadFromFile(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("missing explicit file", func(t *testing.T) {
		err := DefaultConfig().LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"batch too large", func(c *Config) { c.Hydrate.BatchSize = 101 }, "batch size"},
		{"batch zero", func(c *Config) { c.Hydrate.BatchSize = 0 }, "batch size"},
		{"retry interval zero", func(c *Config) { c.Hydrate.RetryInterval = 0 }, "retry interval must be at least 1s"},
		{"retry interval below a second", func(c *Config) { c.Hydrate.RetryInterval = 500 * time.Millisecond }, "retry interval"},
		{"retry interval of a second", func(c *Config) { c.Hydrate.RetryInterval = time.Second }, ""},
		{"negative retries", func(c *Config) { c.Hydrate.MaxRetries = -1 }, "max retries"},
		{"unknown strategy", func(c *Config) { c.Hydrate.RetryStrategy = "random" }, "retry strategy"},
		{"search count", func(c *Config) { c.Search.Count = 0 }, "search count"},
		{"result type", func(c *Config) { c.Search.ResultType = "newest" }, "result type"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
		{"archive table", func(c *Config) { c.Archive.DSN = "postgres://x"; c.Archive.Table = "" }, "archive table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Hydrate.BatchSize = 42
	cfg.Hydrate.RetryInterval = 12 * time.Second
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 42, loaded.Hydrate.BatchSize)
	assert.Equal(t, 12*time.Second, loaded.Hydrate.RetryInterval)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"output-name": "out.json",
		"json-key":    "tweet_id",
		"extended":    true,
		"interval":    0.25,
		"max-retries": 2,
		"max-pages":   3,
		"log-level":   "debug",
	})

	assert.Equal(t, "out.json", cfg.Output.RecordFile)
	assert.Equal(t, "tweet_id", cfg.Hydrate.JSONKey)
	assert.True(t, cfg.Twitter.Extended)
	assert.Equal(t, 250*time.Millisecond, cfg.Hydrate.Interval)
	assert.Equal(t, 2, cfg.Hydrate.MaxRetries)
	assert.Equal(t, 3, cfg.Search.MaxPages)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// absent keys leave values alone
	cfg.MergeCommandLineFlags(nil)
	assert.Equal(t, 2, cfg.Hydrate.MaxRetries)
}

func TestLoad(t *testing.T) {
	t.Run("precedence order", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := `
twitter:
  app_key: file-key
  app_secret: file-secret
hydrate:
  batch_size: 10
  max_retries: 1
`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		t.Setenv("TWITTER_APP_KEY", "env-key")
		t.Setenv("TWEETHARVEST_MAX_RETRIES", "5")

		cfg, err := Load(configPath, map[string]interface{}{"max-retries": 9})
		require.NoError(t, err)

		assert.Equal(t, "env-key", cfg.Twitter.AppKey)        // env over file
		assert.Equal(t, "file-secret", cfg.Twitter.AppSecret) // file only
		assert.Equal(t, 10, cfg.Hydrate.BatchSize)            // file only
		assert.Equal(t, 9, cfg.Hydrate.MaxRetries)            // flag over env
	})

	t.Run("validation failure", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"), nil)
		assert.Error(t, err)
		assert.Nil(t, cfg)

		configPath := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("hydrate:\n  batch_size: 500\n"), 0644))
		cfg, err = Load(configPath, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")
		assert.Nil(t, cfg)
	})

	t.Run("loads .env file", func(t *testing.T) {
		dir := t.TempDir()
		oldDir, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		t.Cleanup(func() { _ = os.Chdir(oldDir) })

		t.Setenv("HOME", dir)
		require.NoError(t, os.WriteFile(".env", []byte("TWEETHARVEST_ARCHIVE_DSN=postgres://dotenv/db\n"), 0644))
		require.NoError(t, os.Unsetenv("TWEETHARVEST_ARCHIVE_DSN"))
		t.Cleanup(func() { _ = os.Unsetenv("TWEETHARVEST_ARCHIVE_DSN") })

		cfg, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, "postgres://dotenv/db", cfg.Archive.DSN)
	})
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"1", time.Second, true},
		{"0.5", 500 * time.Millisecond, true},
		{"2m", 2 * time.Minute, true},
		{"-1", -time.Second, true},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, err := parseSeconds(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
