package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "orderwatch-config-*.yaml")
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
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
		"DATA_DIR", "SQLITE_PATH", "ORDERWATCH_PORT", "KAFKA_BROKERS", "ORDERWATCH_PAPER_MODE",
		"LOG_LEVEL", "ORDERWATCH_ALLOWED_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/orderwatch/data"
  sqlite_path: "/tmp/orderwatch/orders.db"
server:
  host: "0.0.0.0"
  port: 8080
  grpc_port: 9090
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
  data_url: "https://data.alpaca.markets"
logging:
  level: "debug"
  format: "text"
  file: "/tmp/orderwatch/orderwatch.log"
engine:
  conditional_interval: "500ms"
  schedule_interval: "10s"
  max_workers: 4
  oracle_rate_per_sec: 2.5
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  topic: "order-events"
trading:
  paper_mode: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/orderwatch/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/orderwatch/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/orderwatch/orders.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/orderwatch/orders.db")
	}

	// -- Server --
	if cfg.Server.Port != 8080 || cfg.Server.GRPCPort != 9090 {
		t.Errorf("Server ports = %d/%d, want 8080/9090", cfg.Server.Port, cfg.Server.GRPCPort)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.DataURL != "https://data.alpaca.markets" {
		t.Errorf("Alpaca.DataURL = %q, want %q", cfg.Alpaca.DataURL, "https://data.alpaca.markets")
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %q/%q, want debug/text", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Logging.MaxSizeMB != 100 {
		t.Errorf("Logging.MaxSizeMB = %d, want default 100", cfg.Logging.MaxSizeMB)
	}

	// -- Engine --
	if cfg.Engine.ConditionalInterval != 500*time.Millisecond {
		t.Errorf("Engine.ConditionalInterval = %v, want 500ms", cfg.Engine.ConditionalInterval)
	}
	if cfg.Engine.ScheduleInterval != 10*time.Second {
		t.Errorf("Engine.ScheduleInterval = %v, want 10s", cfg.Engine.ScheduleInterval)
	}
	if cfg.Engine.TrailingInterval != time.Second {
		t.Errorf("Engine.TrailingInterval = %v, want default 1s", cfg.Engine.TrailingInterval)
	}
	if cfg.Engine.MaxWorkers != 4 {
		t.Errorf("Engine.MaxWorkers = %d, want 4", cfg.Engine.MaxWorkers)
	}
	if cfg.Engine.OracleRatePerSec != 2.5 {
		t.Errorf("Engine.OracleRatePerSec = %f, want 2.5", cfg.Engine.OracleRatePerSec)
	}

	// -- Kafka --
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Topic != "order-events" {
		t.Errorf("Kafka = %v/%q, want 2 brokers and order-events", cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}

	// -- Trading --
	if !cfg.Trading.PaperMode {
		t.Error("Trading.PaperMode = false, want true")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("ORDERWATCH_PORT", "9000")
	t.Setenv("ORDERWATCH_ALLOWED_ORIGINS", "app.example.com,*.example.org")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Errorf("Kafka.Brokers = %v, want [a:9092 b:9092]", cfg.Kafka.Brokers)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "*.example.org" {
		t.Errorf("Server.AllowedOrigins = %v, want [app.example.com *.example.org]", cfg.Server.AllowedOrigins)
	}
}

func TestLoadValidation(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
engine:
  max_workers: -1
kafka:
  brokers: ["k:9092"]
  topic: ""
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() succeeded, want validation error")
	}
	msg := err.Error()
	for _, want := range []string{"max_workers", "alpaca credentials"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestDefault(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if !cfg.Trading.PaperMode {
		t.Error("Default() should run in paper mode")
	}
	if cfg.Engine.ScheduleInterval != 5*time.Second {
		t.Errorf("Engine.ScheduleInterval = %v, want 5s", cfg.Engine.ScheduleInterval)
	}
}

func TestLoadPaperQuotes(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
trading:
  paper_mode: true
paper:
  quotes:
    AAPL:
      price: 189.25
      volume: "52000"
    MSFT:
      price: "415"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := len(cfg.Paper.Quotes); got != 2 {
		t.Fatalf("len(Paper.Quotes) = %d, want 2", got)
	}
	price, volume, err := cfg.Paper.Quotes["AAPL"].Decimals()
	if err != nil {
		t.Fatalf("AAPL Decimals() error: %v", err)
	}
	if price.String() != "189.25" || volume.String() != "52000" {
		t.Errorf("AAPL = %s/%s, want 189.25/52000", price, volume)
	}
	_, volume, err = cfg.Paper.Quotes["MSFT"].Decimals()
	if err != nil {
		t.Fatalf("MSFT Decimals() error: %v", err)
	}
	if !volume.IsZero() {
		t.Errorf("MSFT volume = %s, want 0", volume)
	}
}

func TestLoadPaperQuotesValidation(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
trading:
  paper_mode: true
paper:
  quotes:
    AAPL:
      price: "-1"
    TSLA:
      price: abc
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() succeeded, want validation error")
	}
	for _, want := range []string{"paper.quotes.AAPL", "paper.quotes.TSLA"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestExampleConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("../../config/orderwatch.example.yaml")
	if err != nil {
		t.Fatalf("Load(example) error: %v", err)
	}
	if !cfg.Trading.PaperMode {
		t.Error("example config should run in paper mode")
	}
	if _, ok := cfg.Paper.Quotes["AAPL"]; !ok {
		t.Errorf("example config Paper.Quotes = %v, want an AAPL quote", cfg.Paper.Quotes)
	}
}
