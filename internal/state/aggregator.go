// Package state holds the authoritative, in-memory view of every monitored
// service derived from the telemetry stream.
package state

import (
	"math"
	"sync"
	"time"

	"nexus-sim/internal/clock"
	"nexus-sim/internal/telemetry"
)

// DefaultHistoryCapacity bounds the number of retained events.
const DefaultHistoryCapacity = 100

// Aggregator folds telemetry events into per-service state. All methods are
// safe for concurrent use.
type Aggregator struct {
	mu        sync.Mutex
	clock     clock.Clock
	registry  telemetry.Registry
	services  map[string]*telemetry.EntityState
	history   []telemetry.Event
	capacity  int
	incidents int
	started   time.Time
}

// New creates an Aggregator with every registry service at the healthy
// baseline. A nil clock means the real clock.
func New(reg telemetry.Registry, c clock.Clock) *Aggregator {
	return NewWithCapacity(reg, c, DefaultHistoryCapacity)
}

// NewWithCapacity is New with an explicit history bound.
func NewWithCapacity(reg telemetry.Registry, c clock.Clock, capacity int) *Aggregator {
	if c == nil {
		c = clock.Real()
	}
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	now := c.Now()
	a := &Aggregator{
		clock:    c,
		registry: reg,
		services: make(map[string]*telemetry.EntityState, len(reg)),
		history:  make([]telemetry.Event, 0, capacity),
		capacity: capacity,
		started:  now,
	}
	for _, s := range reg {
		a.services[s.ID] = &telemetry.EntityState{
			ServiceID:     s.ID,
			Status:        telemetry.StatusHealthy,
			LatencyMS:     telemetry.BaselineLatencyMS,
			ErrorRate:     telemetry.BaselineErrorRate,
			TrafficVolume: telemetry.BaselineTrafficVolume,
			LastUpdated:   now,
			Position:      s.Position,
		}
	}
	return a
}

// Apply records ev. A known service's state is replaced wholesale (last write
// wins, position kept); events for unknown services are only kept in history.
// It reports whether ev updated a service.
func (a *Aggregator) Apply(ev telemetry.Event) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.history) == a.capacity {
		copy(a.history, a.history[1:])
		a.history = a.history[:len(a.history)-1]
	}
	a.history = append(a.history, ev)

	st, ok := a.services[ev.ServiceID]
	if !ok {
		return false
	}
	st.Status = ev.Status
	st.LatencyMS = ev.LatencyMS
	st.ErrorRate = ev.ErrorRate
	st.TrafficVolume = ev.TrafficVolume
	st.LastUpdated = ev.Timestamp
	return true
}

// SetStatus forces a service's status. Healthy also resets the metrics to the
// baseline; other statuses keep the last observed metrics. Unknown ids are
// ignored and reported as false.
func (a *Aggregator) SetStatus(id string, status telemetry.Status) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.services[id]
	if !ok {
		return false
	}
	st.Status = status
	st.LastUpdated = a.clock.Now()
	if status == telemetry.StatusHealthy {
		st.LatencyMS = telemetry.BaselineLatencyMS
		st.ErrorRate = telemetry.BaselineErrorRate
		st.TrafficVolume = telemetry.BaselineTrafficVolume
	}
	return true
}

// Service returns the current state of one service.
func (a *Aggregator) Service(id string) (telemetry.EntityState, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.services[id]
	if !ok {
		return telemetry.EntityState{}, false
	}
	return *st, true
}

// Services returns every service state in registry order.
func (a *Aggregator) Services() []telemetry.EntityState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.servicesLocked()
}

func (a *Aggregator) servicesLocked() []telemetry.EntityState {
	out := make([]telemetry.EntityState, 0, len(a.registry))
	for _, s := range a.registry {
		out = append(out, *a.services[s.ID])
	}
	return out
}

// Snapshot returns a consistent aggregate of all services.
func (a *Aggregator) Snapshot() telemetry.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	services := a.servicesLocked()
	return telemetry.Snapshot{
		Timestamp:       now,
		SystemIntegrity: Integrity(services),
		Services:        services,
		ActiveIncidents: a.incidents,
		UptimeSeconds:   int64(now.Sub(a.started) / time.Second),
	}
}

// Integrity is the percentage of healthy services rounded to one decimal.
// An empty set scores 0.
func Integrity(services []telemetry.EntityState) float64 {
	if len(services) == 0 {
		return 0
	}
	healthy := 0
	for _, s := range services {
		if s.Status == telemetry.StatusHealthy {
			healthy++
		}
	}
	return math.Round(float64(healthy)/float64(len(services))*1000) / 10
}

// RecentEvents returns up to limit of the most recent events, oldest first.
// A limit <= 0 or larger than the history returns everything retained.
func (a *Aggregator) RecentEvents(limit int) []telemetry.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]telemetry.Event, limit)
	copy(out, a.history[n-limit:])
	return out
}

// IncrementIncidents raises the active incident count.
func (a *Aggregator) IncrementIncidents() {
	a.mu.Lock()
	a.incidents++
	a.mu.Unlock()
}

// DecrementIncidents lowers the active incident count, never below zero.
func (a *Aggregator) DecrementIncidents() {
	a.mu.Lock()
	if a.incidents > 0 {
		a.incidents--
	}
	a.mu.Unlock()
}

// ActiveIncidents returns the current incident count.
func (a *Aggregator) ActiveIncidents() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.incidents
}
