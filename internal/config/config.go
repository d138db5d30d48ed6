// Package config loads and validates the daemon configuration from
// defaults, an optional TOML file and FXPERPD_ environment overrides.
package config

import (
	"github.com/fxperp/fxperpd/internal/core/book"
	"github.com/fxperp/fxperpd/internal/core/engine"
	"github.com/fxperp/fxperpd/internal/core/fixed"
)

// Config is the complete fxperpd configuration.
type Config struct {
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `toml:"log_level" mapstructure:"log_level"`

	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Protocol ProtocolConfig `toml:"protocol" mapstructure:"protocol"`
	Funding  FundingConfig  `toml:"funding" mapstructure:"funding"`
	Oracle   OracleConfig   `toml:"oracle" mapstructure:"oracle"`
	Storage  StorageConfig  `toml:"storage" mapstructure:"storage"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Markets  []MarketConfig `toml:"markets" mapstructure:"markets"`

	configPath string
}

// ServerConfig is the JSON-RPC/websocket server section.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr" mapstructure:"listen_addr"`
	// RequestTimeout bounds a single RPC call, in seconds.
	RequestTimeout int `toml:"request_timeout" mapstructure:"request_timeout"`
}

// ProtocolConfig is the risk parameter section. Ratio values are decimal
// strings ("0.9", "1.1") parsed to 1e18 fixed point.
type ProtocolConfig struct {
	QuoteName        string `toml:"quote_name" mapstructure:"quote_name"`
	MaxLTV           string `toml:"max_ltv" mapstructure:"max_ltv"`
	LiquidationRatio string `toml:"liquidation_ratio" mapstructure:"liquidation_ratio"`
	DampingDivisor   int64  `toml:"damping_divisor" mapstructure:"damping_divisor"`
}

// FundingConfig gates the funding epoch accumulator, in seconds.
type FundingConfig struct {
	EpochLength       int64 `toml:"epoch_length" mapstructure:"epoch_length"`
	MinSampleInterval int64 `toml:"min_sample_interval" mapstructure:"min_sample_interval"`
}

// OracleConfig is the price oracle section.
type OracleConfig struct {
	// StalenessWindow rejects feed values older than this many seconds.
	StalenessWindow int64 `toml:"staleness_window" mapstructure:"staleness_window"`
}

// StorageConfig is the snapshot store section.
type StorageConfig struct {
	// Path is the snapshot database directory. Empty disables snapshots.
	Path string `toml:"path" mapstructure:"path"`
	// SnapshotInterval is the seconds between periodic checkpoints.
	SnapshotInterval int64 `toml:"snapshot_interval" mapstructure:"snapshot_interval"`
}

// HistoryConfig is the fill history section.
type HistoryConfig struct {
	// DSN is the postgres connection string. Empty disables history.
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// MarketConfig declares one synthetic currency.
type MarketConfig struct {
	Name                string `toml:"name" mapstructure:"name"`
	CollateralOracleKey string `toml:"collateral_oracle_key" mapstructure:"collateral_oracle_key"`
	PegKey              string `toml:"peg_key" mapstructure:"peg_key"`
	// MaxLTV overrides protocol.max_ltv for this market when set.
	MaxLTV string `toml:"max_ltv" mapstructure:"max_ltv"`
}

// ConfigPath returns the file the configuration was loaded from, empty
// when running on defaults only.
func (c *Config) ConfigPath() string {
	return c.configPath
}

// EngineParams converts the validated configuration into engine wiring
// parameters. Call Validate first; parse errors here mean it was skipped.
func (c *Config) EngineParams() (engine.Params, error) {
	maxLTV, err := fixed.Parse(c.Protocol.MaxLTV)
	if err != nil {
		return engine.Params{}, err
	}
	liqRatio, err := fixed.Parse(c.Protocol.LiquidationRatio)
	if err != nil {
		return engine.Params{}, err
	}
	p := engine.Params{
		QuoteName:        c.Protocol.QuoteName,
		MaxLTV:           maxLTV,
		LiquidationRatio: liqRatio,
		DampingDivisor:   c.Protocol.DampingDivisor,
		Funding: book.FundingConfig{
			EpochLength:       c.Funding.EpochLength,
			MinSampleInterval: c.Funding.MinSampleInterval,
		},
	}
	for _, m := range c.Markets {
		spec := engine.MarketSpec{
			Name:                m.Name,
			CollateralOracleKey: m.CollateralOracleKey,
			PegKey:              m.PegKey,
		}
		if m.MaxLTV != "" {
			ltv, err := fixed.Parse(m.MaxLTV)
			if err != nil {
				return engine.Params{}, err
			}
			spec.MaxLTV = ltv
		}
		p.Markets = append(p.Markets, spec)
	}
	return p, nil
}
