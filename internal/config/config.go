package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stocknet ingester.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Logging   Logging   `yaml:"logging"`
	Ingest    Ingest    `yaml:"ingest"`
	Schedule  Schedule  `yaml:"schedule"`
	Sentiment Sentiment `yaml:"sentiment"`
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
	ExportDir  string `yaml:"export_dir"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs. They are
// passed through to the market-data, news and calendar clients untouched.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Ingest controls the daily per-ticker run.
type Ingest struct {
	Tickers           []string `yaml:"tickers"`
	TickersFile       string   `yaml:"tickers_file"`
	RetryAttempts     int      `yaml:"retry_attempts"`
	RetryDelaySeconds int      `yaml:"retry_delay_seconds"`
	RateLimitPerMin   int      `yaml:"rate_limit_per_min"`
	NewsLimit         int      `yaml:"news_limit"`
	// LastRunDate seeds the store's run marker when the store has none.
	LastRunDate string `yaml:"last_run_date"`
}

// RetryDelay returns RetryDelaySeconds as a duration.
func (i Ingest) RetryDelay() time.Duration {
	return time.Duration(i.RetryDelaySeconds) * time.Second
}

// Schedule is the wall-clock window, in Timezone, during which a run may
// start. A window whose end is before its start wraps past midnight.
type Schedule struct {
	Timezone    string `yaml:"timezone"`
	WindowStart string `yaml:"window_start"`
	WindowEnd   string `yaml:"window_end"`
}

// Sentiment selects and configures the LLM used to score articles.
type Sentiment struct {
	Provider       string `yaml:"provider"` // "ollama", "genai" or "none"
	Model          string `yaml:"model"`
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns TimeoutSeconds as a duration.
func (s Sentiment) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, fills defaults,
// applies environment variable overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with the values used when a key is
// absent from the file.
func Default() *Config {
	return &Config{
		Storage: Storage{
			SQLitePath: "stockdata/stockdata.db",
			ExportDir:  "stockdata/export",
		},
		Alpaca: Alpaca{
			Feed: "iex",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Ingest: Ingest{
			RetryAttempts:     3,
			RetryDelaySeconds: 60,
			RateLimitPerMin:   120,
			NewsLimit:         10,
		},
		Schedule: Schedule{
			Timezone:    "America/New_York",
			WindowStart: "17:00",
			WindowEnd:   "09:00",
		},
		Sentiment: Sentiment{
			Provider:       "ollama",
			Model:          "llama3.1:70b",
			Endpoint:       "http://localhost:11434",
			TimeoutSeconds: 120,
		},
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required")
	}
	if c.Ingest.RetryAttempts < 1 {
		return fmt.Errorf("ingest.retry_attempts must be >= 1, got %d", c.Ingest.RetryAttempts)
	}
	if c.Ingest.RetryDelaySeconds < 0 {
		return fmt.Errorf("ingest.retry_delay_seconds must be >= 0, got %d", c.Ingest.RetryDelaySeconds)
	}
	if c.Ingest.LastRunDate != "" {
		if _, err := time.Parse("2006-01-02", c.Ingest.LastRunDate); err != nil {
			return fmt.Errorf("ingest.last_run_date: %w", err)
		}
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if _, err := ParseClock(c.Schedule.WindowStart); err != nil {
		return fmt.Errorf("schedule.window_start: %w", err)
	}
	if _, err := ParseClock(c.Schedule.WindowEnd); err != nil {
		return fmt.Errorf("schedule.window_end: %w", err)
	}
	switch c.Sentiment.Provider {
	case "ollama", "genai", "none":
	default:
		return fmt.Errorf("sentiment.provider %q is not one of ollama, genai, none", c.Sentiment.Provider)
	}
	return nil
}

// ParseClock parses an "HH:MM" wall-clock value into an offset from
// midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("STOCKNET_TICKERS"); v != "" {
		var tickers []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickers = append(tickers, t)
			}
		}
		cfg.Ingest.Tickers = tickers
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Sentiment.APIKey = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.Sentiment.Endpoint = v
	}

	// Standard Alpaca env vars take precedence over the ALPACA_* names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
