// Package cli wires the fxperpd commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	quiet      bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fxperpd",
	Short: "fxperpd - synthetic FX perpetual daemon",
	Long: `fxperpd runs the synthetic-currency protocol engine: collateralized
vaults minting static/dynamic debt token pairs, an on-ledger price-time
priority order book, and the funding epoch that rebases dynamic balances
toward each currency's peg. It serves a JSON-RPC API and a websocket
fill feed.`,
	Version: "0.1.0-dev",
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress console output after startup")
}
