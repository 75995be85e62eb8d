// Package config loads pipeline configuration from YAML with defaults,
// validation and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"btc-signal-lab/internal/domain"
)

// Data sources for bars and features.
const (
	SourceCSV        = "csv"
	SourceClickHouse = "clickhouse"
)

// Result store backends for signals and exits.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Data       DataConfig       `yaml:"data"`
	Filter     FilterConfig     `yaml:"filter"`
	Exit       ExitConfig       `yaml:"exit"`
	Simulation SimulationConfig `yaml:"simulation"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Publish    PublishConfig    `yaml:"publish"`
	Cache      CacheConfig      `yaml:"cache"`
}

// DataConfig locates input data and the report directory.
type DataConfig struct {
	Source     string `yaml:"source" default:"csv" validate:"oneof=csv clickhouse"`
	PriceCSV   string `yaml:"price_csv" default:"data/btc_price.csv" validate:"required_if=Source csv"`
	FeatureCSV string `yaml:"feature_csv" default:"data/btc_features.csv" validate:"required_if=Source csv"`
	OutputDir  string `yaml:"output_dir" default:"reports" validate:"required"`
}

// FilterConfig holds trend filter thresholds.
type FilterConfig struct {
	MinSentimentBalance float64  `yaml:"min_sentiment_balance" default:"20"`
	MinWhaleCount100k   float64  `yaml:"min_whale_count_100k" default:"250" validate:"gte=0"`
	MinWhaleCount1m     *float64 `yaml:"min_whale_count_1m,omitempty" validate:"omitempty,gte=0"`
	CompatBitwiseGate   bool     `yaml:"compat_bitwise_gate"`
}

// ExitConfig holds exit thresholds as fractional returns.
type ExitConfig struct {
	TakeProfit float64 `yaml:"take_profit" default:"0.10" validate:"gtfield=StopLoss"`
	StopLoss   float64 `yaml:"stop_loss" default:"-0.15"`
}

// SimulationConfig tunes the exit simulation.
type SimulationConfig struct {
	Workers int `yaml:"workers" default:"4" validate:"min=1,max=256"`
}

// StorageConfig selects stores and their connection strings.
type StorageConfig struct {
	Backend       string `yaml:"backend" default:"memory" validate:"oneof=memory postgres sqlite"`
	PostgresDSN   string `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	SQLitePath    string `yaml:"sqlite_path" default:"data/btc_signal_lab.db" validate:"required_if=Backend sqlite"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stderr"`
}

// ServerConfig configures the scheduled server.
type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080" validate:"required"`
	Schedule        string        `yaml:"schedule" default:"0 30 0 * * *" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

// PublishConfig configures publishing of run results to Kafka.
// Publishing is off while no broker is set.
type PublishConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers" validate:"omitempty,dive,hostname_port"`
	Topic        string   `yaml:"topic" default:"btc-signals" validate:"required"`
}

// CacheConfig configures the Redis API cache and the scheduled-run lock.
// Both are off while RedisAddr is empty.
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr" validate:"omitempty,hostname_port"`
	Prefix    string        `yaml:"prefix" default:"btc-signal-lab" validate:"required"`
	TTL       time.Duration `yaml:"ttl" default:"5m"`
	LockTTL   time.Duration `yaml:"lock_ttl" default:"10m"`
}

var validate = validator.New()

// Default returns a config with only defaults applied.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads config from a YAML file, then applies environment variable
// overrides and validates the result. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BTC_PRICE_CSV"); v != "" {
		c.Data.PriceCSV = v
	}
	if v := os.Getenv("BTC_FEATURE_CSV"); v != "" {
		c.Data.FeatureCSV = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.Data.OutputDir = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Publish.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
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

// Validate checks struct constraints and cross-section requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q check", fe.Namespace(), fe.Tag())
		}
		return err
	}
	if c.Data.Source == SourceClickHouse && c.Storage.ClickHouseDSN == "" {
		return fmt.Errorf("storage.clickhouse_dsn is required when data.source is clickhouse")
	}
	return nil
}

// FilterDomainConfig converts the filter section for strategy.FilterFromConfig.
func (c *Config) FilterDomainConfig() domain.FilterConfig {
	minSent := c.Filter.MinSentimentBalance
	minWhale := c.Filter.MinWhaleCount100k
	cfg := domain.FilterConfig{
		FilterType:          domain.FilterTypeMATrend,
		MinSentimentBalance: &minSent,
		MinWhaleCount100k:   &minWhale,
		CompatBitwiseGate:   c.Filter.CompatBitwiseGate,
	}
	if c.Filter.MinWhaleCount1m != nil {
		v := *c.Filter.MinWhaleCount1m
		cfg.MinWhaleCount1m = &v
	}
	return cfg
}

// ExitDomainConfig converts the exit section for strategy.ExitFromConfig.
func (c *Config) ExitDomainConfig() domain.ExitConfig {
	tp := c.Exit.TakeProfit
	sl := c.Exit.StopLoss
	return domain.ExitConfig{
		ExitType:   domain.ExitTypeThreshold,
		TakeProfit: &tp,
		StopLoss:   &sl,
	}
}
