package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nexus-sim/internal/clock"
	"nexus-sim/internal/logging"
	"nexus-sim/internal/scenario"
	"nexus-sim/internal/sim"
	"nexus-sim/internal/telemetry"
)

var (
	chaosMode    string
	chaosDemo    bool
	chaosJSON    bool
	chaosKafka   bool
	chaosLogFile string
	chaosRate    float64
)

var chaosCmd = &cobra.Command{
	Use:   "chaos",
	Short: "Generate synthetic telemetry",
	Long: "chaos runs the scenario engine on its own and emits telemetry to STDOUT or a Kafka topic. " +
		"--demo walks through spike, cascade and recovery.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		mode, err := scenario.ParseMode(chaosMode)
		if err != nil {
			return err
		}
		rate := cfg.Simulation.EventsPerSecond
		if cmd.Flags().Changed("rate") {
			rate = chaosRate
		}

		reg := telemetry.DefaultRegistry()
		c := clock.Real()
		var arcs map[scenario.Mode]scenario.Arc
		if cfg.Simulation.ScenarioFile != "" {
			if arcs, err = scenario.Load(cfg.Simulation.ScenarioFile, reg); err != nil {
				return err
			}
		}
		eng, err := scenario.NewEngine(reg, c, arcs, logger)
		if err != nil {
			return err
		}
		if err := eng.SetMode(mode); err != nil {
			return err
		}
		defer eng.Stop()

		writer, cleanup, err := newWriters(reg, cfg.Kafka, chaosKafka, chaosJSON, chaosLogFile, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, logger)

		if chaosDemo {
			cancelDemo := scheduleDemo(c, eng, logger)
			defer cancelDemo()
		}

		simulator := sim.NewSimulator(reg, eng, nil, rate, c)
		logger.Info("chaos engine started", "mode", mode, "events_per_second", rate, "demo", chaosDemo)
		if err := simulator.RunBatch(ctx, sim.WriterBatchHandler(writer)); err != nil {
			return err
		}
		logger.Info("chaos engine stopped")
		return nil
	},
}

func init() {
	chaosCmd.Flags().StringVar(&chaosMode, "mode", string(scenario.ModeSteadyState), "Initial scenario mode")
	chaosCmd.Flags().BoolVar(&chaosDemo, "demo", false, "Run the spike, cascade and recovery demo sequence")
	chaosCmd.Flags().BoolVar(&chaosJSON, "json", false, "Print JSON lines instead of colored output")
	chaosCmd.Flags().BoolVar(&chaosKafka, "kafka", false, "Publish events to the configured Kafka topic")
	chaosCmd.Flags().StringVar(&chaosLogFile, "log-file", "", "Also record events to this log (.zst compresses)")
	chaosCmd.Flags().Float64Var(&chaosRate, "rate", 0, "Events per second per service (overrides config)")
}

type demoStep struct {
	at   time.Duration
	mode scenario.Mode
}

// demoSequence is measured from the start of the run.
var demoSequence = []demoStep{
	{at: 5 * time.Second, mode: scenario.ModeLatencySpike},
	{at: 15 * time.Second, mode: scenario.ModeCascadingFailure},
	{at: 30 * time.Second, mode: scenario.ModeRecovery},
}

// scheduleDemo arms every demo step on c and returns a function cancelling
// the steps that have not fired yet.
func scheduleDemo(c clock.Clock, eng *scenario.Engine, logger *slog.Logger) func() {
	timers := make([]*clock.Timer, 0, len(demoSequence))
	for _, step := range demoSequence {
		timers = append(timers, c.AfterFunc(step.at, func() {
			logger.Info("demo step", "mode", step.mode)
			if err := eng.SetMode(step.mode); err != nil {
				logger.Warn("demo step failed", "mode", step.mode, "err", err)
			}
		}))
	}
	return func() {
		for _, t := range timers {
			t.Stop()
		}
	}
}
