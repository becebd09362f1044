// Telemetry event model and derived service state shapes
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the health of a monitored service.
type Status string

// Service status constants.
const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Field bounds for inbound events.
const (
	MaxLatencyMS     = 10000
	MaxTrafficVolume = 100
)

// Healthy baseline applied when a service is forced back to healthy.
const (
	BaselineLatencyMS     = 500
	BaselineErrorRate     = 0.02
	BaselineTrafficVolume = 75
)

// ErrUnknownStatus is returned by ParseStatus.
var ErrUnknownStatus = errors.New("unknown status")

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusHealthy, StatusWarning, StatusCritical:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Event is one immutable telemetry fact about a service.
type Event struct {
	Timestamp     time.Time      `json:"timestamp"`
	ServiceID     string         `json:"service_id"`
	Status        Status         `json:"status"`
	LatencyMS     int            `json:"latency_ms"`
	ErrorRate     float64        `json:"error_rate"`
	TrafficVolume int            `json:"traffic_volume"`
	Message       string         `json:"message"`
	Metadata      map[string]any `json:"metadata"`
}

// ValidationError names the offending field of a rejected event.
type ValidationError struct {
	Field string
	Value any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid telemetry event: %s=%v", e.Field, e.Value)
}

// Validate checks the bounded-field constraints.
func (e Event) Validate() error {
	if e.ServiceID == "" {
		return &ValidationError{Field: "service_id", Value: e.ServiceID}
	}
	if _, err := ParseStatus(string(e.Status)); err != nil {
		return &ValidationError{Field: "status", Value: e.Status}
	}
	if e.LatencyMS < 0 || e.LatencyMS > MaxLatencyMS {
		return &ValidationError{Field: "latency_ms", Value: e.LatencyMS}
	}
	if e.ErrorRate < 0 || e.ErrorRate > 1 || e.ErrorRate != e.ErrorRate {
		return &ValidationError{Field: "error_rate", Value: e.ErrorRate}
	}
	if e.TrafficVolume < 0 || e.TrafficVolume > MaxTrafficVolume {
		return &ValidationError{Field: "traffic_volume", Value: e.TrafficVolume}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Value: e.Timestamp}
	}
	return nil
}

// IntMetadata reads an integer metadata value, accepting the float64 that
// encoding/json produces for numbers.
func (e Event) IntMetadata(key string) (int, bool) {
	switch v := e.Metadata[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// StringMetadata reads a string metadata value.
func (e Event) StringMetadata(key string) (string, bool) {
	v, ok := e.Metadata[key].(string)
	return v, ok
}

// Position is a fixed placement in 3D space, encoded as [x, y, z].
type Position struct {
	X, Y, Z float64
}

func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{p.X, p.Y, p.Z})
}

func (p *Position) UnmarshalJSON(b []byte) error {
	var v [3]float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	p.X, p.Y, p.Z = v[0], v[1], v[2]
	return nil
}

// EntityState is the current derived view of one service.
type EntityState struct {
	ServiceID     string    `json:"service_id"`
	Status        Status    `json:"status"`
	LatencyMS     int       `json:"latency_ms"`
	ErrorRate     float64   `json:"error_rate"`
	TrafficVolume int       `json:"traffic_volume"`
	LastUpdated   time.Time `json:"last_updated"`
	Position      Position  `json:"position"`
}

// Snapshot is a point-in-time aggregate of every service.
type Snapshot struct {
	Timestamp       time.Time     `json:"timestamp"`
	SystemIntegrity float64       `json:"system_integrity"`
	Services        []EntityState `json:"services"`
	ActiveIncidents int           `json:"active_incidents"`
	UptimeSeconds   int64         `json:"uptime_seconds"`
}
