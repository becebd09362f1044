package sim

import (
	"context"
	"fmt"

	"nexus-sim/internal/logging"
	"nexus-sim/internal/telemetry"
)

// BatchHandler receives every event of one tick at once.
type BatchHandler func(context.Context, []telemetry.Event) error

// Run starts the generation loop and stops when the context is done.
func (s *Simulator) Run(ctx context.Context, handle Handler) error {
	return s.loop(ctx, func(ctx context.Context) error { return s.tick(ctx, handle) })
}

// RunBatch is Run with one handler call per tick.
func (s *Simulator) RunBatch(ctx context.Context, handle BatchHandler) error {
	return s.loop(ctx, func(ctx context.Context) error { return s.tickBatch(ctx, handle) })
}

func (s *Simulator) loop(ctx context.Context, tick func(context.Context) error) error {
	log := logging.FromContext(ctx)
	log.Info("starting simulator", "tick_interval", s.tickInterval, "mode", s.engine.Mode())
	ticker := s.clock.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := tick(ctx); err != nil {
				log.Error("simulator tick failed", "err", err)
			}
		case <-ctx.Done():
			log.Info("stopping simulator")
			return nil
		}
	}
}

// generate produces one event per service. A panic in generation is
// returned as an error.
func (s *Simulator) generate() (evs []telemetry.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panic: %v", r)
		}
	}()
	return s.gen.GenerateAll(s.registry), nil
}

// tick generates one event per service and hands each to handle. Handler
// errors are logged per event; a panic in generation fails the whole tick.
func (s *Simulator) tick(ctx context.Context, handle Handler) error {
	evs, err := s.generate()
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx)
	failed := 0
	for _, ev := range evs {
		if herr := handle(ctx, ev); herr != nil {
			failed++
			log.Warn("event handler failed", "service_id", ev.ServiceID, "err", herr)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d events failed", failed, len(evs))
	}
	return nil
}

func (s *Simulator) tickBatch(ctx context.Context, handle BatchHandler) error {
	evs, err := s.generate()
	if err != nil {
		return err
	}
	if err := handle(ctx, evs); err != nil {
		return fmt.Errorf("batch of %d events: %w", len(evs), err)
	}
	return nil
}
