package config

import "github.com/spf13/viper"

// setDefaults installs the protocol's stock parameters. A bare daemon with
// no config file runs a single fxEUR market against these.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	// Server defaults
	v.SetDefault("server.listen_addr", ":8642")
	v.SetDefault("server.request_timeout", 30)

	// Risk parameter defaults
	v.SetDefault("protocol.quote_name", "USDC")
	v.SetDefault("protocol.max_ltv", "0.9")
	v.SetDefault("protocol.liquidation_ratio", "1.1")
	v.SetDefault("protocol.damping_divisor", 24)

	// Funding epoch defaults
	v.SetDefault("funding.epoch_length", 3600)
	v.SetDefault("funding.min_sample_interval", 60)

	// Oracle defaults
	v.SetDefault("oracle.staleness_window", 3600)

	// Storage defaults; empty path disables snapshots
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.snapshot_interval", 300)

	// History defaults; empty DSN disables the postgres recorder
	v.SetDefault("history.dsn", "")

	v.SetDefault("markets", []map[string]interface{}{
		{
			"name":                  "fxEUR",
			"collateral_oracle_key": "USDC/EUR",
			"peg_key":               "EUR/USDC",
		},
	})
}
