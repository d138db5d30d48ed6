package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxperp/fxperpd/internal/core/fixed"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8642", cfg.Server.ListenAddr)
	assert.Equal(t, "USDC", cfg.Protocol.QuoteName)
	assert.Equal(t, "0.9", cfg.Protocol.MaxLTV)
	assert.Equal(t, int64(24), cfg.Protocol.DampingDivisor)
	assert.Equal(t, int64(3600), cfg.Funding.EpochLength)
	assert.Equal(t, int64(60), cfg.Funding.MinSampleInterval)
	assert.Empty(t, cfg.Storage.Path)
	assert.Empty(t, cfg.History.DSN)

	require.Len(t, cfg.Markets, 1)
	assert.Equal(t, "fxEUR", cfg.Markets[0].Name)
	assert.Equal(t, "USDC/EUR", cfg.Markets[0].CollateralOracleKey)
	assert.Equal(t, "EUR/USDC", cfg.Markets[0].PegKey)
}

func TestLoadConfigFromFile(t *testing.T) {
	raw := `
log_level = "debug"

[server]
listen_addr = ":9000"

[protocol]
max_ltv = "0.8"

[[markets]]
name = "fxGBP"
collateral_oracle_key = "USDC/GBP"
peg_key = "GBP/USDC"
max_ltv = "0.5"
`
	path := filepath.Join(t.TempDir(), "fxperpd.toml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, "0.8", cfg.Protocol.MaxLTV)
	// File values replace the default market list entirely.
	require.Len(t, cfg.Markets, 1)
	assert.Equal(t, "fxGBP", cfg.Markets[0].Name)
	assert.Equal(t, path, cfg.ConfigPath())

	// Untouched sections keep their defaults.
	assert.Equal(t, 30, cfg.Server.RequestTimeout)
	assert.Equal(t, "1.1", cfg.Protocol.LiquidationRatio)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"empty listen addr", func(c *Config) { c.Server.ListenAddr = "" }},
		{"zero timeout", func(c *Config) { c.Server.RequestTimeout = 0 }},
		{"empty quote name", func(c *Config) { c.Protocol.QuoteName = "" }},
		{"ltv zero", func(c *Config) { c.Protocol.MaxLTV = "0" }},
		{"ltv above one", func(c *Config) { c.Protocol.MaxLTV = "1.01" }},
		{"ltv garbage", func(c *Config) { c.Protocol.MaxLTV = "most of it" }},
		{"liquidation ratio below one", func(c *Config) { c.Protocol.LiquidationRatio = "0.99" }},
		{"zero damping divisor", func(c *Config) { c.Protocol.DampingDivisor = 0 }},
		{"zero epoch", func(c *Config) { c.Funding.EpochLength = 0 }},
		{"sample interval above epoch", func(c *Config) { c.Funding.MinSampleInterval = 7200 }},
		{"zero staleness window", func(c *Config) { c.Oracle.StalenessWindow = 0 }},
		{"snapshots on with zero interval", func(c *Config) {
			c.Storage.Path = "/tmp/snap"
			c.Storage.SnapshotInterval = 0
		}},
		{"no markets", func(c *Config) { c.Markets = nil }},
		{"unnamed market", func(c *Config) { c.Markets[0].Name = "" }},
		{"duplicate market", func(c *Config) { c.Markets = append(c.Markets, c.Markets[0]) }},
		{"market without peg key", func(c *Config) { c.Markets[0].PegKey = "" }},
		{"market ltv outside range", func(c *Config) { c.Markets[0].MaxLTV = "2" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}

func TestEngineParams(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Markets[0].MaxLTV = "0.5"

	p, err := cfg.EngineParams()
	require.NoError(t, err)
	assert.Equal(t, "USDC", p.QuoteName)
	assert.True(t, p.MaxLTV.Equal(fixed.MustParse("0.9")))
	assert.True(t, p.LiquidationRatio.Equal(fixed.MustParse("1.1")))
	assert.Equal(t, int64(24), p.DampingDivisor)
	assert.Equal(t, int64(3600), p.Funding.EpochLength)
	require.Len(t, p.Markets, 1)
	assert.Equal(t, "fxEUR", p.Markets[0].Name)
	assert.True(t, p.Markets[0].MaxLTV.Equal(fixed.MustParse("0.5")))
}
