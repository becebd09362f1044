// Package feed moves telemetry events in and out of the process: a Kafka
// topic, or a recorded JSONL event log.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"nexus-sim/internal/telemetry"
)

// Handler receives each decoded event.
type Handler func(context.Context, telemetry.Event) error

// Source delivers events to a handler until ctx is cancelled or the source
// is exhausted.
type Source interface {
	Run(ctx context.Context, handle Handler) error
}

// Decode parses and validates one JSON-encoded event.
func Decode(data []byte) (telemetry.Event, error) {
	var ev telemetry.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return telemetry.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return telemetry.Event{}, err
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	return ev, nil
}

// Encode renders an event as JSON.
func Encode(ev telemetry.Event) ([]byte, error) {
	return json.Marshal(ev)
}
