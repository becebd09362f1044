package telemetry

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// StatusSource supplies the scenario-assigned status of a service.
type StatusSource interface {
	Status(serviceID string) Status
}

type intRange struct{ min, max int }
type floatRange struct{ min, max float64 }

var (
	latencyRanges = map[Status]intRange{
		StatusHealthy:  {200, 800},
		StatusWarning:  {1000, 2000},
		StatusCritical: {3000, 6000},
	}
	errorRateRanges = map[Status]floatRange{
		StatusHealthy:  {0.01, 0.03},
		StatusWarning:  {0.05, 0.10},
		StatusCritical: {0.15, 0.80},
	}
	trafficRanges = map[Status]intRange{
		StatusHealthy:  {60, 100},
		StatusWarning:  {30, 60},
		StatusCritical: {5, 30},
	}
	messagePools = map[Status][]string{
		StatusHealthy: {
			"Operating within normal parameters",
			"All systems nominal",
			"Request processed successfully",
			"Connection stable",
		},
		StatusWarning: {
			"Elevated latency detected",
			"Increased error rate observed",
			"Resource utilization above threshold",
			"Retry attempts increasing",
		},
		StatusCritical: {
			"Service degradation severe",
			"Multiple timeouts detected",
			"Circuit breaker triggered",
			"Failover initiated",
		},
	}
	regions = []string{"us-east-1", "us-west-2", "eu-west-1"}
)

// Probability that a healthy service reports a transient warning.
const blipProbability = 0.05

// Model name reported by the inference service.
const InferenceModel = "gemini-2.0-flash"

// Generator produces synthetic telemetry events. It is not safe for
// concurrent use; the simulator calls it from a single goroutine.
type Generator struct {
	source StatusSource
	rand   *rand.Rand
	now    func() time.Time
}

// NewGenerator creates a generator reading statuses from source.
func NewGenerator(source StatusSource, r *rand.Rand, now func() time.Time) *Generator {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{source: source, rand: r, now: now}
}

// GenerateEvent returns one event for serviceID.
func (g *Generator) GenerateEvent(serviceID string) Event {
	status := g.source.Status(serviceID)
	if _, ok := latencyRanges[status]; !ok {
		status = StatusHealthy
	}
	if status == StatusHealthy && g.rand.Float64() < blipProbability {
		status = StatusWarning
	}

	lat := latencyRanges[status]
	errs := errorRateRanges[status]
	traffic := trafficRanges[status]
	pool := messagePools[status]

	metadata := map[string]any{
		"node_id": fmt.Sprintf("%s-node-%d", serviceID, g.intn(1, 3)),
		"region":  regions[g.rand.Intn(len(regions))],
		"version": "v2.1.0",
	}
	if serviceID == InferenceService {
		metadata["model"] = InferenceModel
		metadata["tokens_in"] = g.intn(100, 500)
		metadata["tokens_out"] = g.intn(50, 200)
	}

	return Event{
		Timestamp:     g.now().UTC(),
		ServiceID:     serviceID,
		Status:        status,
		LatencyMS:     g.intn(lat.min, lat.max),
		ErrorRate:     round(errs.min+g.rand.Float64()*(errs.max-errs.min), 4),
		TrafficVolume: g.intn(traffic.min, traffic.max),
		Message:       pool[g.rand.Intn(len(pool))],
		Metadata:      metadata,
	}
}

// GenerateAll returns one event per service in registry order.
func (g *Generator) GenerateAll(reg Registry) []Event {
	events := make([]Event, 0, len(reg))
	for _, s := range reg {
		events = append(events, g.GenerateEvent(s.ID))
	}
	return events
}

// intn returns a uniform integer in [min, max].
func (g *Generator) intn(min, max int) int {
	return min + g.rand.Intn(max-min+1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
