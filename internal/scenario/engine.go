package scenario

import (
	"fmt"
	"log/slog"
	"sync"

	"nexus-sim/internal/clock"
	"nexus-sim/internal/telemetry"
)

// Engine owns the scenario mode and the status each service is assigned
// under it. Timed stages are scheduled on the clock and only apply while the
// mode that scheduled them is still current.
type Engine struct {
	mu         sync.Mutex
	clock      clock.Clock
	registry   telemetry.Registry
	arcs       map[Mode]Arc
	logger     *slog.Logger
	mode       Mode
	statuses   map[string]telemetry.Status
	generation uint64
	pending    *clock.Timer
}

// NewEngine creates an engine in steady state. Nil arcs means BuiltIn.
func NewEngine(reg telemetry.Registry, c clock.Clock, arcs map[Mode]Arc, logger *slog.Logger) (*Engine, error) {
	if c == nil {
		c = clock.Real()
	}
	if arcs == nil {
		arcs = BuiltIn()
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, m := range Modes {
		a, ok := arcs[m]
		if !ok {
			return nil, fmt.Errorf("no arc for mode %s", m)
		}
		if err := a.Validate(reg); err != nil {
			return nil, err
		}
	}
	e := &Engine{
		clock:    c,
		registry: reg,
		arcs:     arcs,
		logger:   logger,
		mode:     ModeSteadyState,
		statuses: make(map[string]telemetry.Status, len(reg)),
	}
	for _, s := range reg {
		e.statuses[s.ID] = telemetry.StatusHealthy
	}
	return e, nil
}

// Mode returns the current mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Status returns the assigned status of a service; unknown ids are healthy.
func (e *Engine) Status(id string) telemetry.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.statuses[id]; ok {
		return s
	}
	return telemetry.StatusHealthy
}

// Statuses returns a copy of every assigned status.
func (e *Engine) Statuses() map[string]telemetry.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]telemetry.Status, len(e.statuses))
	for k, v := range e.statuses {
		out[k] = v
	}
	return out
}

// SetMode enters mode, applying the first stage of its arc immediately and
// cancelling any stage still pending from a previous mode.
func (e *Engine) SetMode(mode Mode) error {
	arc, ok := e.arcs[mode]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.mode
	e.cancelLocked()
	e.mode = mode
	e.applyLocked(arc.Stages[0])
	e.logger.Info("scenario mode changed", "from", prev, "to", mode)
	e.scheduleLocked(arc, 1)
	return nil
}

// Stop cancels any pending stage.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.cancelLocked()
	e.mu.Unlock()
}

func (e *Engine) cancelLocked() {
	e.generation++
	e.pending.Stop()
	e.pending = nil
}

// scheduleLocked arms stage idx of arc, or finishes the arc when every stage
// has been applied.
func (e *Engine) scheduleLocked(arc Arc, idx int) {
	if idx >= len(arc.Stages) {
		if arc.Then != "" && arc.Then != e.mode {
			e.logger.Info("scenario arc complete", "from", e.mode, "to", arc.Then)
			e.mode = arc.Then
			e.generation++
		}
		return
	}
	gen := e.generation
	e.pending = e.clock.AfterFunc(arc.Stages[idx].After, func() {
		e.advance(arc, idx, gen)
	})
}

func (e *Engine) advance(arc Arc, idx int, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation || e.mode != arc.Mode {
		return
	}
	e.applyLocked(arc.Stages[idx])
	e.logger.Debug("scenario stage applied", "mode", arc.Mode, "stage", idx)
	e.scheduleLocked(arc, idx+1)
}

func (e *Engine) applyLocked(st Stage) {
	if st.ResetAll {
		for id := range e.statuses {
			e.statuses[id] = telemetry.StatusHealthy
		}
	}
	if st.DemoteCritical {
		for id, s := range e.statuses {
			if s == telemetry.StatusCritical {
				e.statuses[id] = telemetry.StatusWarning
			}
		}
	}
	for id, s := range st.Set {
		e.statuses[id] = s
	}
}
