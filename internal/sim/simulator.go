// Simulator generating synthetic service telemetry at a fixed rate
package sim

import (
	"context"
	"time"

	"nexus-sim/internal/clock"
	"nexus-sim/internal/scenario"
	"nexus-sim/internal/telemetry"
)

// DefaultEventsPerSecond is the tick rate when none is configured.
const DefaultEventsPerSecond = 10

// Handler receives every generated event. Returning an error fails the tick.
type Handler func(context.Context, telemetry.Event) error

// Simulator drives the scenario engine's assigned statuses through the
// telemetry generator on a fixed-rate ticker.
type Simulator struct {
	registry     telemetry.Registry
	engine       *scenario.Engine
	gen          *telemetry.Generator
	clock        clock.Clock
	tickInterval time.Duration
}

// NewSimulator creates a simulator emitting one event per registry service
// eventsPerSecond times a second. A nil generator reads statuses from engine
// with a time-seeded source.
func NewSimulator(reg telemetry.Registry, engine *scenario.Engine, gen *telemetry.Generator, eventsPerSecond float64, c clock.Clock) *Simulator {
	if c == nil {
		c = clock.Real()
	}
	if gen == nil {
		gen = telemetry.NewGenerator(engine, nil, c.Now)
	}
	if eventsPerSecond <= 0 {
		eventsPerSecond = DefaultEventsPerSecond
	}
	return &Simulator{
		registry:     reg,
		engine:       engine,
		gen:          gen,
		clock:        c,
		tickInterval: time.Duration(float64(time.Second) / eventsPerSecond),
	}
}

// Engine exposes the scenario engine so callers can change modes.
func (s *Simulator) Engine() *scenario.Engine { return s.engine }

// TickInterval is the delay between ticks.
func (s *Simulator) TickInterval() time.Duration { return s.tickInterval }
