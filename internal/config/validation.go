package config

import (
	"fmt"

	"github.com/fxperp/fxperpd/internal/core/fixed"
)

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// ValidateConfig checks the complete configuration for values the engine
// would reject or silently misbehave on.
func ValidateConfig(cfg *Config) error {
	if !logLevels[cfg.LogLevel] {
		return fmt.Errorf("log_level %q is not one of trace/debug/info/warn/error", cfg.LogLevel)
	}
	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := validateProtocol(&cfg.Protocol); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if err := validateFunding(&cfg.Funding); err != nil {
		return fmt.Errorf("funding: %w", err)
	}
	if cfg.Oracle.StalenessWindow <= 0 {
		return fmt.Errorf("oracle: staleness_window must be positive, got %d", cfg.Oracle.StalenessWindow)
	}
	if cfg.Storage.Path != "" && cfg.Storage.SnapshotInterval <= 0 {
		return fmt.Errorf("storage: snapshot_interval must be positive, got %d", cfg.Storage.SnapshotInterval)
	}
	if err := validateMarkets(cfg.Markets); err != nil {
		return fmt.Errorf("markets: %w", err)
	}
	return nil
}

func validateServer(s *ServerConfig) error {
	if s.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %d", s.RequestTimeout)
	}
	return nil
}

func validateProtocol(p *ProtocolConfig) error {
	if p.QuoteName == "" {
		return fmt.Errorf("quote_name cannot be empty")
	}
	if err := validateLTV(p.MaxLTV); err != nil {
		return fmt.Errorf("max_ltv: %w", err)
	}
	ratio, err := fixed.Parse(p.LiquidationRatio)
	if err != nil {
		return fmt.Errorf("liquidation_ratio: %w", err)
	}
	if ratio.Cmp(fixed.One()) < 0 {
		return fmt.Errorf("liquidation_ratio %s is below 1", ratio)
	}
	if p.DampingDivisor <= 0 {
		return fmt.Errorf("damping_divisor must be positive, got %d", p.DampingDivisor)
	}
	return nil
}

func validateFunding(f *FundingConfig) error {
	if f.EpochLength <= 0 {
		return fmt.Errorf("epoch_length must be positive, got %d", f.EpochLength)
	}
	if f.MinSampleInterval <= 0 {
		return fmt.Errorf("min_sample_interval must be positive, got %d", f.MinSampleInterval)
	}
	if f.MinSampleInterval > f.EpochLength {
		return fmt.Errorf("min_sample_interval %d exceeds epoch_length %d", f.MinSampleInterval, f.EpochLength)
	}
	return nil
}

func validateMarkets(markets []MarketConfig) error {
	if len(markets) == 0 {
		return fmt.Errorf("at least one market is required")
	}
	seen := make(map[string]bool, len(markets))
	for i, m := range markets {
		if m.Name == "" {
			return fmt.Errorf("market %d has no name", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate market name %q", m.Name)
		}
		seen[m.Name] = true
		if m.CollateralOracleKey == "" {
			return fmt.Errorf("market %q has no collateral_oracle_key", m.Name)
		}
		if m.PegKey == "" {
			return fmt.Errorf("market %q has no peg_key", m.Name)
		}
		if m.MaxLTV != "" {
			if err := validateLTV(m.MaxLTV); err != nil {
				return fmt.Errorf("market %q max_ltv: %w", m.Name, err)
			}
		}
	}
	return nil
}

func validateLTV(s string) error {
	ltv, err := fixed.Parse(s)
	if err != nil {
		return err
	}
	if !ltv.IsPositive() || ltv.Cmp(fixed.One()) > 0 {
		return fmt.Errorf("%s is outside (0, 1]", ltv)
	}
	return nil
}
