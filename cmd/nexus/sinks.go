package main

import (
	"context"
	"log/slog"

	"nexus-sim/internal/config"
	"nexus-sim/internal/feed"
	"nexus-sim/internal/metrics"
	"nexus-sim/internal/sim"
	"nexus-sim/internal/telemetry"
)

// newSink builds the metric sink chain. The log sink is always present;
// DogStatsD and GreptimeDB are added when configured. The cleanup function
// flushes and closes them.
func newSink(ctx context.Context, cfg config.MetricsConfig, logger *slog.Logger) (metrics.Sink, func(), error) {
	sinks := metrics.MultiSink{metrics.LogSink{Logger: logger}}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.StatsdEnabled() {
		s, err := metrics.NewStatsdSink(cfg.StatsdAddr, logger)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
		closers = append(closers, func() { _ = s.Close() })
		logger.Info("statsd metrics enabled", "addr", cfg.StatsdAddr)
	}

	if cfg.GreptimeEndpoint != "" {
		g, err := metrics.NewGreptimeSink(cfg.GreptimeEndpoint, cfg.GreptimeDatabase, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		gctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			g.Run(gctx, cfg.FlushInterval)
		}()
		sinks = append(sinks, g)
		closers = append(closers, func() {
			cancel()
			<-done
		})
		logger.Info("greptime metrics enabled", "endpoint", cfg.GreptimeEndpoint, "database", cfg.GreptimeDatabase)
	}
	return sinks, cleanup, nil
}

// newWriters sets up the event output for the chaos and replay commands:
// Kafka when publish is set, otherwise JSON or colored STDOUT. A non-empty
// logFile adds an event log. It returns the writer and a cleanup function.
func newWriters(reg telemetry.Registry, kafkaCfg feed.KafkaConfig, publish, printJSON bool, logFile string, logger *slog.Logger) (sim.EventWriter, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	var base sim.EventWriter
	switch {
	case publish:
		p, err := feed.NewKafkaPublisher(kafkaCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, p.Close)
		base = p
	case printJSON:
		base = sim.NewJSONStdoutWriter()
	default:
		base = sim.NewColorStdoutWriter(reg)
	}
	if logFile == "" {
		return base, cleanup, nil
	}

	lw, err := feed.NewLogWriter(logFile)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, lw.Close)
	return sim.NewMultiWriter(base, lw), cleanup, nil
}
