// Package cli implements the wafguard command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wafguard-systems/wafguard/internal/config"
	"github.com/wafguard-systems/wafguard/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "wafguard",
	Short: "WAFGuard correlation engine",
	Long: `wafguard tails a web application firewall's JSON audit log, normalizes
each blocked request into events, and correlates sustained campaigns from one
source IP against one attack category into incidents with escalating severity.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults + WAFGUARD_* env)")
}

// loadConfig loads the configuration for a command invocation.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
}
