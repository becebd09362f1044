package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nexus-sim/internal/logging"
	"nexus-sim/internal/watch"
)

var watchURL string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live state stream in the terminal",
	Long:  "watch subscribes to a running backend's websocket and renders state, alerts and remediations.",
	RunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if logLevel != "" {
			level = logLevel
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, logging.NewWithWriter(os.Stderr, level))
		return watch.Run(ctx, watchURL, os.Stdout)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "ws://localhost:8000/ws/nexus", "Websocket endpoint of the backend")
}
