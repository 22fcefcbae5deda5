// Package config loads the daemon's YAML configuration, with env overrides
// for secrets and decimal-string parsing for all price-space parameters.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"liquidity-engine/fixed"
	"liquidity-engine/infrastructure/logger"
	"liquidity-engine/pricing"
	"liquidity-engine/stream"
)

// Strategy modes.
const (
	ModeFixed  = "fixed"
	ModeOracle = "oracle"
	ModeModel  = "model"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Market   MarketConfig   `yaml:"market"`
	Strategy StrategyConfig `yaml:"strategy"`
	Pool     PoolConfig     `yaml:"pool"`
	Journal  JournalConfig  `yaml:"journal"`
	Stream   StreamConfig   `yaml:"stream"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      logger.Config  `yaml:"log"`
}

type MarketConfig struct {
	ID          string        `yaml:"id"`
	TickSize    string        `yaml:"tickSize"` // decimal string, e.g. "0.25"
	Width       string        `yaml:"width"`    // batch price width, decimal string
	MinInterval time.Duration `yaml:"minInterval"`
	Operator    string        `yaml:"operator"`
}

type StrategyConfig struct {
	Mode   string       `yaml:"mode"` // fixed, oracle or model
	Fixed  FixedQuote   `yaml:"fixed"`
	Oracle OracleConfig `yaml:"oracle"`
	Model  ModelParams  `yaml:"model"`
}

type FixedQuote struct {
	BidLimit int64 `yaml:"bidLimit"`
	AskLimit int64 `yaml:"askLimit"`
}

type OracleConfig struct {
	Pair string `yaml:"pair"`
}

// ModelParams carries the pricing parameters as decimal strings so the file
// format never round-trips through binary floating point.
type ModelParams struct {
	RiskAversion     string `yaml:"riskAversion"`
	VolatilitySq     string `yaml:"volatilitySq"`
	ArrivalIntensity string `yaml:"arrivalIntensity"`
	TargetRatio      string `yaml:"targetRatio"`
}

type PoolConfig struct {
	Public bool `yaml:"public"`
}

type JournalConfig struct {
	DSN string `yaml:"dsn"` // empty disables persistence
}

type StreamConfig struct {
	ListenAddr  string `yaml:"listenAddr"`
	AuthToken   string `yaml:"authToken"`
	EventBuffer int    `yaml:"eventBuffer"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := AppConfig{Log: logger.DefaultConfig()}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env
// vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("LQ_JOURNAL_DSN"); v != "" {
		cfg.Journal.DSN = v
	}
	if v := os.Getenv("LQ_STREAM_AUTH_TOKEN"); v != "" {
		cfg.Stream.AuthToken = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present and parseable.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Market.ID == "" {
		return errors.New("market.id is required")
	}
	if cfg.Market.Operator == "" {
		return errors.New("market.operator is required")
	}
	if cfg.Market.MinInterval < 0 {
		return errors.New("market.minInterval must be >= 0")
	}
	tick, err := cfg.Market.Tick()
	if err != nil {
		return err
	}
	if tick.IsZero() {
		return errors.New("market.tickSize must be > 0")
	}
	if _, err := cfg.Market.BatchWidth(); err != nil {
		return err
	}

	switch cfg.Strategy.Mode {
	case ModeFixed:
		if cfg.Strategy.Fixed.BidLimit >= cfg.Strategy.Fixed.AskLimit {
			return errors.New("strategy.fixed: bidLimit must be below askLimit")
		}
	case ModeOracle:
		if cfg.Strategy.Oracle.Pair == "" {
			return errors.New("strategy.oracle.pair is required")
		}
	case ModeModel:
		params, err := cfg.Strategy.Model.Parse()
		if err != nil {
			return err
		}
		if err := params.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("strategy.mode must be %s, %s or %s", ModeFixed, ModeOracle, ModeModel)
	}
	return nil
}

// Tick parses the tick size.
func (m MarketConfig) Tick() (fixed.Fixed, error) {
	return parseFixed("market.tickSize", m.TickSize)
}

// BatchWidth parses the batch price width; empty defaults to one.
func (m MarketConfig) BatchWidth() (fixed.Fixed, error) {
	if m.Width == "" {
		return fixed.One(), nil
	}
	return parseFixed("market.width", m.Width)
}

// Parse converts the decimal strings into pricing parameters.
func (p ModelParams) Parse() (pricing.Params, error) {
	gamma, err := parseFixed("strategy.model.riskAversion", p.RiskAversion)
	if err != nil {
		return pricing.Params{}, err
	}
	volSq, err := parseFixed("strategy.model.volatilitySq", p.VolatilitySq)
	if err != nil {
		return pricing.Params{}, err
	}
	k, err := parseFixed("strategy.model.arrivalIntensity", p.ArrivalIntensity)
	if err != nil {
		return pricing.Params{}, err
	}
	ratio, err := parseFixed("strategy.model.targetRatio", p.TargetRatio)
	if err != nil {
		return pricing.Params{}, err
	}
	return pricing.Params{
		RiskAversion:     gamma,
		VolatilitySq:     volSq,
		ArrivalIntensity: k,
		TargetRatio:      ratio,
	}, nil
}

// StreamConfig converts into the stream server's own config type.
func (s StreamConfig) ServerConfig() stream.Config {
	out := stream.DefaultConfig()
	out.AuthToken = s.AuthToken
	if s.EventBuffer > 0 {
		out.EventBuffer = s.EventBuffer
	}
	return out
}

func parseFixed(field, value string) (fixed.Fixed, error) {
	if value == "" {
		return fixed.Fixed{}, fmt.Errorf("%s is required", field)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return fixed.Fixed{}, fmt.Errorf("%s: %w", field, err)
	}
	f, err := fixed.FromDecimal(d)
	if err != nil {
		return fixed.Fixed{}, fmt.Errorf("%s: %w", field, err)
	}
	return f, nil
}
