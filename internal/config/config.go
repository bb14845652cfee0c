// Package config loads the orderwatch configuration from YAML with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the orderwatch service.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Server  Server        `yaml:"server"`
	Alpaca  Alpaca        `yaml:"alpaca"`
	Logging Logging       `yaml:"logging"`
	Engine  EngineConfig  `yaml:"engine"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Trading TradingConfig `yaml:"trading"`
	Paper   PaperConfig   `yaml:"paper"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
	// AllowedOrigins lists browser origin host patterns, such as
	// "app.example.com" or "*.example.com", that may open the event stream.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger. When File is set, output is
// also written to a size-rotated file.
type Logging struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// EngineConfig controls monitor cadence and fan-out.
type EngineConfig struct {
	ConditionalInterval time.Duration `yaml:"conditional_interval"`
	TrailingInterval    time.Duration `yaml:"trailing_interval"`
	OCOInterval         time.Duration `yaml:"oco_interval"`
	BracketInterval     time.Duration `yaml:"bracket_interval"`
	IcebergInterval     time.Duration `yaml:"iceberg_interval"`
	ScheduleInterval    time.Duration `yaml:"schedule_interval"`
	MaxWorkers          int           `yaml:"max_workers"`
	OracleRatePerSec    float64       `yaml:"oracle_rate_per_sec"`
	OracleBurst         int           `yaml:"oracle_burst"`
	VolumeWindow        int           `yaml:"volume_window"`
	ExecutionTimeout    time.Duration `yaml:"execution_timeout"`
}

// KafkaConfig enables publishing order events to Kafka when Brokers is set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// TradingConfig selects how triggered orders are executed.
type TradingConfig struct {
	PaperMode bool `yaml:"paper_mode"`
}

// PaperConfig seeds the static price oracle used when no market-data
// credentials are configured. Quotes are keyed by symbol.
type PaperConfig struct {
	Quotes map[string]PaperQuote `yaml:"quotes"`
}

// PaperQuote is a starting quote. Values are decimal strings; volume is
// optional and only matters to volume-weighted schedules.
type PaperQuote struct {
	Price  string `yaml:"price"`
	Volume string `yaml:"volume"`
}

// Decimals parses the quote. The price must be positive and the volume, when
// set, non-negative.
func (q PaperQuote) Decimals() (price, volume decimal.Decimal, err error) {
	price, err = decimal.NewFromString(q.Price)
	if err != nil {
		return price, volume, fmt.Errorf("price %q: %w", q.Price, err)
	}
	if !price.IsPositive() {
		return price, volume, fmt.Errorf("price %s must be positive", price)
	}
	if q.Volume != "" {
		volume, err = decimal.NewFromString(q.Volume)
		if err != nil {
			return price, volume, fmt.Errorf("volume %q: %w", q.Volume, err)
		}
		if volume.IsNegative() {
			return price, volume, fmt.Errorf("volume %s must not be negative", volume)
		}
	}
	return price, volume, nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies defaults and environment variable overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a paper-trading configuration with every default applied,
// for running without a config file.
func Default() *Config {
	cfg := &Config{Trading: TradingConfig{PaperMode: true}}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

// Validate reports configuration values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port %d out of range", c.Server.GRPCPort))
	}
	if c.Engine.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("engine.max_workers must be at least 1"))
	}
	for name, d := range map[string]time.Duration{
		"conditional_interval": c.Engine.ConditionalInterval,
		"trailing_interval":    c.Engine.TrailingInterval,
		"oco_interval":         c.Engine.OCOInterval,
		"bracket_interval":     c.Engine.BracketInterval,
		"iceberg_interval":     c.Engine.IcebergInterval,
		"schedule_interval":    c.Engine.ScheduleInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("engine.%s must be positive", name))
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, fmt.Errorf("kafka.topic required when kafka.brokers is set"))
	}
	if !c.Trading.PaperMode && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		errs = append(errs, fmt.Errorf("alpaca credentials required when trading.paper_mode is false"))
	}
	for symbol, q := range c.Paper.Quotes {
		if _, _, err := q.Decimals(); err != nil {
			errs = append(errs, fmt.Errorf("paper.quotes.%s: %w", symbol, err))
		}
	}
	return errors.Join(errs...)
}

// applyDefaults fills zero values with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/orderwatch.db"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 7
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 30
	}

	e := &cfg.Engine
	setDuration(&e.ConditionalInterval, time.Second)
	setDuration(&e.TrailingInterval, time.Second)
	setDuration(&e.OCOInterval, time.Second)
	setDuration(&e.BracketInterval, time.Second)
	setDuration(&e.IcebergInterval, 2*time.Second)
	setDuration(&e.ScheduleInterval, 5*time.Second)
	setDuration(&e.ExecutionTimeout, 10*time.Second)
	if e.MaxWorkers == 0 {
		e.MaxWorkers = 16
	}
	if e.OracleRatePerSec == 0 {
		e.OracleRatePerSec = 3
	}
	if e.OracleBurst == 0 {
		e.OracleBurst = 10
	}
	if e.VolumeWindow == 0 {
		e.VolumeWindow = 30
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "orderwatch.order-events"
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ORDERWATCH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
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

	if v := os.Getenv("ORDERWATCH_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	if v := os.Getenv("ORDERWATCH_PAPER_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Trading.PaperMode = b
		}
	}

	// Standard Alpaca env vars take precedence over ALPACA_*.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
