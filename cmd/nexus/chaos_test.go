package main

import (
	"testing"
	"time"

	"nexus-sim/internal/clock"
	"nexus-sim/internal/logging"
	"nexus-sim/internal/scenario"
	"nexus-sim/internal/telemetry"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func testEvent(id string, status telemetry.Status) telemetry.Event {
	return telemetry.Event{
		Timestamp:     epoch,
		ServiceID:     id,
		Status:        status,
		LatencyMS:     900,
		ErrorRate:     0.05,
		TrafficVolume: 40,
		Message:       "Elevated latency detected",
		Metadata:      map[string]any{},
	}
}

func TestScheduleDemoWalksSequence(t *testing.T) {
	fc := clock.Fake(epoch)
	eng, err := scenario.NewEngine(telemetry.DefaultRegistry(), fc, nil, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	cancel := scheduleDemo(fc, eng, logging.Discard())
	defer cancel()

	steps := []struct {
		advance time.Duration
		want    scenario.Mode
	}{
		{4 * time.Second, scenario.ModeSteadyState},
		{time.Second, scenario.ModeLatencySpike},
		{10 * time.Second, scenario.ModeCascadingFailure},
		{15 * time.Second, scenario.ModeRecovery},
		{scenario.StageDelay, scenario.ModeSteadyState},
	}
	for i, s := range steps {
		fc.Advance(s.advance)
		if got := eng.Mode(); got != s.want {
			t.Fatalf("step %d: expected %s, got %s", i, s.want, got)
		}
	}
	if eng.Status("auth") != telemetry.StatusHealthy {
		t.Fatalf("expected healed services after recovery")
	}
}

func TestScheduleDemoCancel(t *testing.T) {
	fc := clock.Fake(epoch)
	eng, err := scenario.NewEngine(telemetry.DefaultRegistry(), fc, nil, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	cancel := scheduleDemo(fc, eng, logging.Discard())
	fc.Advance(5 * time.Second)
	cancel()
	fc.Advance(time.Minute)
	if eng.Mode() != scenario.ModeLatencySpike {
		t.Fatalf("expected demo to stop at spike, got %s", eng.Mode())
	}
}
