// Package orchestrator wires ingestion, state, metrics and broadcasting into
// one running system.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nexus-sim/internal/broadcast"
	"nexus-sim/internal/clock"
	"nexus-sim/internal/feed"
	"nexus-sim/internal/logging"
	"nexus-sim/internal/metrics"
	"nexus-sim/internal/narrative"
	"nexus-sim/internal/scenario"
	"nexus-sim/internal/sim"
	"nexus-sim/internal/state"
	"nexus-sim/internal/telemetry"
	"nexus-sim/internal/voice"
)

// DefaultBroadcastInterval is how often subscribers receive a snapshot.
const DefaultBroadcastInterval = 2 * time.Second

var (
	// ErrUnknownService is returned for ids outside the registry.
	ErrUnknownService = errors.New("unknown service")
	// ErrNoSimulator is returned by SetMode when events come from a feed.
	ErrNoSimulator = errors.New("simulator not running")
)

// Options holds the collaborators. Aggregator and Hub are required, as is one
// of Simulator or Feed; everything else has a fallback.
type Options struct {
	Aggregator *state.Aggregator
	Hub        *broadcast.Hub
	Simulator  *sim.Simulator
	Feed       feed.Source
	Recorder   *metrics.Recorder
	Narrator   narrative.Narrator
	Voice      voice.Synthesizer
	// EventLog receives every accepted event.
	EventLog          sim.EventWriter
	Clock             clock.Clock
	BroadcastInterval time.Duration
	Logger            *slog.Logger
}

// Orchestrator owns the ingest path and the broadcast tick.
type Orchestrator struct {
	agg       *state.Aggregator
	hub       *broadcast.Hub
	simulator *sim.Simulator
	feed      feed.Source
	recorder  *metrics.Recorder
	narrator  narrative.Narrator
	voice     voice.Synthesizer
	eventLog  sim.EventWriter
	clock     clock.Clock
	interval  time.Duration
	logger    *slog.Logger

	welcomeOnce  sync.Once
	welcomeAudio string
}

// New validates opts and fills in fallbacks.
func New(opts Options) (*Orchestrator, error) {
	if opts.Aggregator == nil {
		return nil, errors.New("orchestrator: aggregator is required")
	}
	if opts.Hub == nil {
		return nil, errors.New("orchestrator: hub is required")
	}
	if opts.Simulator == nil && opts.Feed == nil {
		return nil, errors.New("orchestrator: a simulator or a feed is required")
	}
	o := &Orchestrator{
		agg:       opts.Aggregator,
		hub:       opts.Hub,
		simulator: opts.Simulator,
		feed:      opts.Feed,
		recorder:  opts.Recorder,
		narrator:  opts.Narrator,
		voice:     opts.Voice,
		eventLog:  opts.EventLog,
		clock:     opts.Clock,
		interval:  opts.BroadcastInterval,
		logger:    opts.Logger,
	}
	if o.recorder == nil {
		o.recorder = metrics.NewRecorder(nil)
	}
	if o.narrator == nil {
		o.narrator = narrative.NewStatic(nil)
	}
	if o.voice == nil {
		o.voice = voice.Fallback{}
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.interval <= 0 {
		o.interval = DefaultBroadcastInterval
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if ks, ok := o.feed.(*feed.KafkaSource); ok && ks.OnLag == nil {
		ks.OnLag = o.recorder.KafkaLag
	}
	return o, nil
}

// Aggregator returns the state store.
func (o *Orchestrator) Aggregator() *state.Aggregator { return o.agg }

// Hub returns the subscriber hub.
func (o *Orchestrator) Hub() *broadcast.Hub { return o.hub }

// Run starts the broadcast tick and the ingestion source and blocks until
// ctx is cancelled. Every subscriber is closed on return.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx = logging.NewContext(ctx, o.logger)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		o.broadcastLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		o.ingestLoop(ctx)
	}()

	wg.Wait()
	if o.simulator != nil {
		o.simulator.Engine().Stop()
	}
	o.hub.CloseAll()
	return nil
}

func (o *Orchestrator) ingestLoop(ctx context.Context) {
	if o.feed != nil {
		o.logger.Info("ingesting from feed")
		if err := o.feed.Run(ctx, o.Ingest); err != nil {
			o.logger.Error("feed stopped", "err", err)
		}
		return
	}
	o.logger.Info("feed not configured, running simulation mode")
	if err := o.simulator.Run(ctx, o.Ingest); err != nil {
		o.logger.Error("simulator stopped", "err", err)
	}
}

func (o *Orchestrator) broadcastLoop(ctx context.Context) {
	ticker := o.clock.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.BroadcastState()
		case <-ctx.Done():
			return
		}
	}
}

// BroadcastState sends the current snapshot to every subscriber. Nothing is
// computed when there are no subscribers.
func (o *Orchestrator) BroadcastState() int {
	n := o.hub.Count()
	if n == 0 {
		return 0
	}
	snap := o.agg.Snapshot()
	o.recorder.SystemIntegrity(snap.SystemIntegrity)
	o.recorder.WebsocketConnections(n)
	return o.hub.Broadcast(broadcast.StateUpdate{Snapshot: snap})
}

// Ingest validates ev, folds it into state and emits its metrics.
func (o *Orchestrator) Ingest(ctx context.Context, ev telemetry.Event) error {
	if err := ev.Validate(); err != nil {
		logging.FromContext(ctx).Warn("rejected telemetry event", "service_id", ev.ServiceID, "err", err)
		return err
	}
	if !o.agg.Apply(ev) {
		logging.FromContext(ctx).Debug("event for unregistered service", "service_id", ev.ServiceID)
	}

	o.recorder.ServiceMetrics(ev.ServiceID, string(ev.Status), ev.LatencyMS, ev.ErrorRate)
	o.recorder.Throughput(ev.ServiceID, ev.TrafficVolume)
	if ev.ServiceID == telemetry.InferenceService {
		if tokensIn, ok := ev.IntMetadata("tokens_in"); ok {
			tokensOut, _ := ev.IntMetadata("tokens_out")
			model, ok := ev.StringMetadata("model")
			if !ok {
				model = telemetry.InferenceModel
			}
			o.recorder.LLM(ev.ServiceID, model, tokensIn, tokensOut, ev.LatencyMS)
		}
	}

	if o.eventLog != nil {
		if err := o.eventLog.Write(ev); err != nil {
			logging.FromContext(ctx).Warn("event log write failed", "err", err)
		}
	}
	return nil
}

// Mode returns the simulator's scenario mode, or "" when a feed is used.
func (o *Orchestrator) Mode() scenario.Mode {
	if o.simulator == nil {
		return ""
	}
	return o.simulator.Engine().Mode()
}

// SetMode switches the simulator's scenario.
func (o *Orchestrator) SetMode(name string) (scenario.Mode, error) {
	mode, err := scenario.ParseMode(name)
	if err != nil {
		return "", err
	}
	if o.simulator == nil {
		return "", ErrNoSimulator
	}
	if err := o.simulator.Engine().SetMode(mode); err != nil {
		return "", err
	}
	o.logger.Info("scenario mode set", "mode", mode)
	return mode, nil
}

// WelcomeAudio renders the spoken greeting once and returns its clip URL.
func (o *Orchestrator) WelcomeAudio(ctx context.Context) string {
	o.welcomeOnce.Do(func() {
		o.welcomeAudio = o.voice.Render(ctx, voice.WelcomeText)
	})
	return o.welcomeAudio
}
