package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nexus-sim/internal/admin"
	"nexus-sim/internal/broadcast"
	"nexus-sim/internal/clock"
	"nexus-sim/internal/config"
	"nexus-sim/internal/feed"
	"nexus-sim/internal/logging"
	"nexus-sim/internal/metrics"
	"nexus-sim/internal/narrative"
	"nexus-sim/internal/orchestrator"
	"nexus-sim/internal/scenario"
	"nexus-sim/internal/sim"
	"nexus-sim/internal/state"
	"nexus-sim/internal/telemetry"
	"nexus-sim/internal/voice"
)

var (
	serveFeedFile string
	serveSpeed    float64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the NEXUS backend",
	Long: "serve aggregates telemetry from the built-in simulator, a Kafka topic or a recorded log, " +
		"pushes live state to websocket subscribers and exposes the HTTP API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, logger)
		return serve(ctx, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFeedFile, "feed-file", "", "Replay a recorded event log instead of simulating")
	serveCmd.Flags().Float64Var(&serveSpeed, "speed", 1.0, "Playback speed multiplier for --feed-file (0 = as fast as possible)")
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := telemetry.DefaultRegistry()
	c := clock.Real()

	var (
		src       feed.Source
		simulator *sim.Simulator
	)
	switch {
	case serveFeedFile != "":
		src = feed.FileSource{Path: serveFeedFile, Speed: serveSpeed}
		logger.Info("replaying event log", "path", serveFeedFile, "speed", serveSpeed)
	case cfg.Kafka.Enabled():
		ks, err := feed.NewKafkaSource(cfg.Kafka)
		if err != nil {
			return err
		}
		src = ks
		logger.Info("consuming kafka feed", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	default:
		var arcs map[scenario.Mode]scenario.Arc
		if cfg.Simulation.ScenarioFile != "" {
			loaded, err := scenario.Load(cfg.Simulation.ScenarioFile, reg)
			if err != nil {
				return err
			}
			arcs = loaded
		}
		eng, err := scenario.NewEngine(reg, c, arcs, logger)
		if err != nil {
			return err
		}
		simulator = sim.NewSimulator(reg, eng, nil, cfg.Simulation.EventsPerSecond, c)
		logger.Info("simulating telemetry", "events_per_second", cfg.Simulation.EventsPerSecond)
	}

	sink, closeSink, err := newSink(ctx, cfg.Metrics, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	var narrator narrative.Narrator = narrative.NewStatic(nil)
	if cfg.Gemini.Project != "" {
		g, err := narrative.NewGemini(ctx, narrative.GeminiConfig{
			Project:  cfg.Gemini.Project,
			Location: cfg.Gemini.Location,
			Model:    cfg.Gemini.Model,
			Timeout:  cfg.Gemini.Timeout,
		}, narrator, logger)
		if err != nil {
			logger.Warn("gemini unavailable, using static analysis", "err", err)
		} else {
			narrator = g
		}
	}

	var synth voice.Synthesizer = voice.Fallback{}
	if cfg.ElevenLabs.APIKey != "" {
		el, err := voice.NewElevenLabs(cfg.ElevenLabs.APIKey, cfg.ElevenLabs.VoiceID, cfg.ElevenLabs.AudioDir, logger)
		if err != nil {
			logger.Warn("elevenlabs unavailable, alerts will be text only", "err", err)
		} else {
			synth = el
		}
	}

	opts := orchestrator.Options{
		Aggregator:        state.NewWithCapacity(reg, c, cfg.Simulation.HistoryCapacity),
		Hub:               broadcast.NewHub(c, logger),
		Simulator:         simulator,
		Feed:              src,
		Recorder:          metrics.NewRecorder(sink),
		Narrator:          narrator,
		Voice:             synth,
		Clock:             c,
		BroadcastInterval: cfg.Simulation.BroadcastInterval,
		Logger:            logger,
	}
	if cfg.Simulation.EventLog != "" {
		lw, err := feed.NewLogWriter(cfg.Simulation.EventLog)
		if err != nil {
			return err
		}
		defer lw.Close()
		opts.EventLog = lw
	}
	orc, err := orchestrator.New(opts)
	if err != nil {
		return err
	}

	srv := admin.NewServer(orc, admin.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		StaticDir:   cfg.Server.StaticDir,
		Logger:      logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
		cancel()
	}()

	if err := orc.Run(ctx); err != nil {
		return err
	}
	cancel()
	if err := <-errc; err != nil {
		return fmt.Errorf("admin server: %w", err)
	}
	logger.Info("nexus stopped")
	return nil
}
