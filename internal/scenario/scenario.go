package scenario

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nexus-sim/internal/telemetry"
)

// Mode is the failure scenario currently driving synthetic telemetry.
type Mode string

// Scenario modes.
const (
	ModeSteadyState      Mode = "steady_state"
	ModeLatencySpike     Mode = "latency_spike"
	ModeCascadingFailure Mode = "cascading_failure"
	ModeRecovery         Mode = "recovery"
)

// Modes lists every valid mode.
var Modes = []Mode{ModeSteadyState, ModeLatencySpike, ModeCascadingFailure, ModeRecovery}

// ErrUnknownMode is returned for mode names outside Modes.
var ErrUnknownMode = errors.New("unknown scenario mode")

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Arc is the scripted behaviour of one mode: an ordered list of stages
// applied on entry and then on a timer, optionally handing over to another
// mode when the last stage has been applied.
type Arc struct {
	Mode        Mode    `yaml:"mode"`
	Description string  `yaml:"description,omitempty"`
	Stages      []Stage `yaml:"stages"`
	Then        Mode    `yaml:"then,omitempty"`
}

// Stage is one step of an arc. After is the delay since the previous stage;
// the first stage is applied immediately on entry.
type Stage struct {
	After          time.Duration               `yaml:"after,omitempty"`
	ResetAll       bool                        `yaml:"reset_all,omitempty"`
	DemoteCritical bool                        `yaml:"demote_critical,omitempty"`
	Set            map[string]telemetry.Status `yaml:"set,omitempty"`
}

// Validate checks an arc against the service registry.
func (a Arc) Validate(reg telemetry.Registry) error {
	if _, err := ParseMode(string(a.Mode)); err != nil {
		return err
	}
	if a.Then != "" {
		if _, err := ParseMode(string(a.Then)); err != nil {
			return fmt.Errorf("arc %s: then: %w", a.Mode, err)
		}
	}
	if len(a.Stages) == 0 {
		return fmt.Errorf("arc %s: no stages", a.Mode)
	}
	for i, st := range a.Stages {
		if i > 0 && st.After <= 0 {
			return fmt.Errorf("arc %s: stage %d needs a positive delay", a.Mode, i)
		}
		for id, status := range st.Set {
			if !reg.Has(id) {
				return fmt.Errorf("arc %s: stage %d: unknown service %q (known: %s)", a.Mode, i, id, strings.Join(reg.IDs(), ", "))
			}
			if _, err := telemetry.ParseStatus(string(status)); err != nil {
				return fmt.Errorf("arc %s: stage %d: %w", a.Mode, i, err)
			}
		}
	}
	return nil
}

type arcFile struct {
	Arcs []Arc `yaml:"arcs"`
}

// Load reads arc overrides from a YAML file and merges them over BuiltIn.
func Load(path string, reg telemetry.Registry) (map[Mode]Arc, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var f arcFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	arcs := BuiltIn()
	for _, a := range f.Arcs {
		if err := a.Validate(reg); err != nil {
			return nil, fmt.Errorf("parse scenario: %w", err)
		}
		arcs[a.Mode] = a
	}
	return arcs, nil
}
