package cli

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wafguard-systems/wafguard/internal/simulator"
)

var (
	simMode     string
	simCount    int
	simInterval time.Duration
	simSourceIP string
	simPatterns []string
	simTarget   string
	simLogPath  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate attack traffic for testing the pipeline",
	Long: `Simulate produces synthetic attack traffic in one of two modes.

Log mode appends ModSecurity-shaped JSON audit records directly to the
tailed log file, exercising the pipeline without a WAF in front.

HTTP mode fires malicious-looking requests at a target URL so a real WAF
deployment produces the audit records itself.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simMode, "mode", "log", "simulation mode: log or http")
	simulateCmd.Flags().IntVar(&simCount, "count", 10, "number of records or requests to generate")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", 100*time.Millisecond, "pause between records")
	simulateCmd.Flags().StringVar(&simSourceIP, "source-ip", "", "pin every record to one source IP (default: random per record)")
	simulateCmd.Flags().StringSliceVar(&simPatterns, "patterns", nil, "restrict to named attack patterns (default: all)")
	simulateCmd.Flags().StringVar(&simTarget, "target", "http://localhost:8080", "target base URL for http mode")
	simulateCmd.Flags().StringVar(&simLogPath, "log-path", "", "audit log path for log mode (default: ingest.log_path from config)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	simCfg := simulator.Config{
		Count:    simCount,
		Interval: simInterval,
		SourceIP: simSourceIP,
		Patterns: simPatterns,
	}

	switch simMode {
	case "log":
		path := simLogPath
		if path == "" {
			path = cfg.Ingest.LogPath
		}
		n, err := simulator.AppendToFile(ctx, path, simCfg)
		if err != nil {
			return fmt.Errorf("write records: %w", err)
		}
		logger.InfoContext(ctx, "simulation finished", "mode", "log", "records", n, "path", path)
	case "http":
		client := &http.Client{Timeout: 10 * time.Second}
		n, err := simulator.Fire(ctx, client, simTarget, simCfg)
		if err != nil {
			return fmt.Errorf("fire requests: %w", err)
		}
		logger.InfoContext(ctx, "simulation finished", "mode", "http", "requests", n, "target", simTarget)
	default:
		return fmt.Errorf("unknown mode %q, expected log or http", simMode)
	}

	return nil
}
