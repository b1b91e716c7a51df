package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "stocknet-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SQLITE_PATH", "ALPACA_API_KEY", "ALPACA_API_SECRET", "APCA_API_KEY_ID",
		"APCA_API_SECRET_KEY", "LOG_LEVEL", "STOCKNET_TICKERS", "GEMINI_API_KEY", "OLLAMA_HOST",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  sqlite_path: "/tmp/stocknet/stockdata.db"
  export_dir: "/tmp/stocknet/export"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
logging:
  level: "debug"
  format: "json"
ingest:
  tickers: [AAPL, MSFT]
  retry_attempts: 2
  retry_delay_seconds: 90
  news_limit: 5
  last_run_date: "2024-06-14"
schedule:
  timezone: "America/New_York"
  window_start: "18:30"
  window_end: "06:00"
sentiment:
  provider: "genai"
  model: "gemini-2.0-flash"
  api_key: "g-key"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.SQLitePath != "/tmp/stocknet/stockdata.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/stocknet/stockdata.db")
	}
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.Feed != "iex" {
		t.Errorf("Alpaca.Feed = %q, want default %q", cfg.Alpaca.Feed, "iex")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if len(cfg.Ingest.Tickers) != 2 || cfg.Ingest.Tickers[1] != "MSFT" {
		t.Errorf("Ingest.Tickers = %v, want [AAPL MSFT]", cfg.Ingest.Tickers)
	}
	if cfg.Ingest.RetryAttempts != 2 {
		t.Errorf("Ingest.RetryAttempts = %d, want 2", cfg.Ingest.RetryAttempts)
	}
	if cfg.Ingest.RetryDelay() != 90*time.Second {
		t.Errorf("Ingest.RetryDelay() = %v, want 90s", cfg.Ingest.RetryDelay())
	}
	if cfg.Ingest.RateLimitPerMin != 120 {
		t.Errorf("Ingest.RateLimitPerMin = %d, want default 120", cfg.Ingest.RateLimitPerMin)
	}
	if cfg.Ingest.LastRunDate != "2024-06-14" {
		t.Errorf("Ingest.LastRunDate = %q", cfg.Ingest.LastRunDate)
	}
	if cfg.Schedule.WindowStart != "18:30" || cfg.Schedule.WindowEnd != "06:00" {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.Sentiment.Provider != "genai" || cfg.Sentiment.APIKey != "g-key" {
		t.Errorf("Sentiment = %+v", cfg.Sentiment)
	}
	if cfg.Sentiment.Timeout() != 120*time.Second {
		t.Errorf("Sentiment.Timeout() = %v, want default 120s", cfg.Sentiment.Timeout())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
ingest:
  tickers: [AAPL]
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("STOCKNET_TICKERS", "nvda, amd ,")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if len(cfg.Ingest.Tickers) != 2 || cfg.Ingest.Tickers[0] != "nvda" || cfg.Ingest.Tickers[1] != "amd" {
		t.Errorf("Ingest.Tickers = %v, want [nvda amd]", cfg.Ingest.Tickers)
	}
	if cfg.Sentiment.Endpoint != "http://gpu-box:11434" {
		t.Errorf("Sentiment.Endpoint = %q", cfg.Sentiment.Endpoint)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	sc := cfg.Schedule
	if sc.Timezone != "America/New_York" || sc.WindowStart != "17:00" || sc.WindowEnd != "09:00" {
		t.Errorf("default schedule = %+v, want 17:00-09:00 America/New_York", sc)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"zero attempts":  "ingest:\n  retry_attempts: 0\n",
		"bad window":     "schedule:\n  window_start: \"25:00\"\n",
		"bad provider":   "sentiment:\n  provider: \"gpt\"\n",
		"bad last run":   "ingest:\n  last_run_date: \"yesterday\"\n",
		"bad timezone":   "schedule:\n  timezone: \"Mars/Olympus\"\n",
		"negative delay": "ingest:\n  retry_delay_seconds: -1\n",
	}
	for name, content := range cases {
		path := writeConfig(t, content)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: Load() returned nil error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/stocknet.yaml"); err == nil {
		t.Fatal("Load() of a missing file returned nil error")
	}
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("17:30")
	if err != nil {
		t.Fatal(err)
	}
	if d != 17*time.Hour+30*time.Minute {
		t.Errorf("ParseClock(17:30) = %v", d)
	}
}
