package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"nexus-sim/internal/config"
	"nexus-sim/internal/logging"
)

var (
	configPath string
	schemaPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "nexus",
	Short:        "NEXUS PROTOCOL telemetry backend",
	Long:         "nexus aggregates service telemetry, simulates failure scenarios and streams live system state to subscribers.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/nexus.yaml", "Path to configuration YAML")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to a CUE schema overriding the embedded one")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chaosCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(dashboardCmd)
}

// loadConfig reads the configuration and builds the logger it selects.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath, schemaPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
