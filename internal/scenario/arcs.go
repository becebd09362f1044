package scenario

import (
	"time"

	"nexus-sim/internal/telemetry"
)

// StageDelay separates the timed steps of the built-in arcs.
const StageDelay = 2 * time.Second

// BuiltIn returns the default arc for every mode.
func BuiltIn() map[Mode]Arc {
	return map[Mode]Arc{
		ModeSteadyState: {
			Mode:        ModeSteadyState,
			Description: "All services operate normally.",
			Stages:      []Stage{{ResetAll: true}},
		},
		ModeLatencySpike: {
			Mode:        ModeLatencySpike,
			Description: "The inference service degrades on its own.",
			Stages: []Stage{
				{Set: map[string]telemetry.Status{telemetry.InferenceService: telemetry.StatusCritical}},
			},
		},
		ModeCascadingFailure: {
			Mode:        ModeCascadingFailure,
			Description: "Failure spreads from the inference service to payment, auth and database.",
			Stages: []Stage{
				{Set: map[string]telemetry.Status{
					telemetry.InferenceService: telemetry.StatusCritical,
					"payment":                  telemetry.StatusWarning,
				}},
				{After: StageDelay, Set: map[string]telemetry.Status{
					"payment": telemetry.StatusCritical,
					"auth":    telemetry.StatusWarning,
				}},
				{After: StageDelay, Set: map[string]telemetry.Status{
					"auth":     telemetry.StatusCritical,
					"database": telemetry.StatusWarning,
				}},
			},
		},
		ModeRecovery: {
			Mode:        ModeRecovery,
			Description: "Critical services step down to warning, then everything heals.",
			Stages: []Stage{
				{DemoteCritical: true},
				{After: StageDelay, ResetAll: true},
			},
			Then: ModeSteadyState,
		},
	}
}
