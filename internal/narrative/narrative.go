// Package narrative turns incident facts into a one-line, in-universe root
// cause analysis. A static pool is used whenever the model is unavailable.
package narrative

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"nexus-sim/internal/telemetry"
)

// Request describes the incident to narrate.
type Request struct {
	ServiceID     string
	Status        telemetry.Status
	LatencyMS     int
	ErrorRate     float64
	ErrorMessages []string
}

// Narrator produces an analysis. It never fails; implementations fall back to
// canned text.
type Narrator interface {
	Analyze(ctx context.Context, req Request) string
}

// UnknownSubsystem is returned for services without a canned pool.
const UnknownSubsystem = "System anomaly detected in unknown subsystem"

var fallbackPool = map[string][]string{
	"gateway": {
		"Subspace routing fluctuations detected in primary conduit",
		"Gateway harmonics destabilizing under load pressure",
		"Entry point experiencing quantum entanglement delays",
	},
	"auth": {
		"Authentication matrix experiencing temporal drift",
		"Security handshake protocol in subspace interference",
		"Identity verification circuits overloaded",
	},
	"payment": {
		"Transaction buffer overflow in payment substrate",
		"Financial data streams encountering wormhole turbulence",
		"Credit processing nodes experiencing phase variance",
	},
	telemetry.InferenceService: {
		"Neural pathway congestion in cognitive subsystem",
		"Token overflow in synthetic thought processors",
		"Inference engine experiencing quantum decoherence",
	},
	"database": {
		"Data crystal lattice showing stress fractures",
		"Storage matrix approaching critical entropy",
		"Query pathways blocked by subspace interference",
	},
}

// Static picks a canned analysis for the service.
type Static struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewStatic creates a Static narrator. A nil r is seeded from the clock.
func NewStatic(r *rand.Rand) *Static {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Static{rand: r}
}

func (s *Static) Analyze(_ context.Context, req Request) string {
	pool, ok := fallbackPool[req.ServiceID]
	if !ok {
		return UnknownSubsystem
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return pool[s.rand.Intn(len(pool))]
}
