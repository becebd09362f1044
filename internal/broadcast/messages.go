package broadcast

import (
	"errors"
	"fmt"
	"time"

	"nexus-sim/internal/telemetry"
)

// Message type discriminators sent in the "type" field.
const (
	TypeConnectionAck     = "connection_ack"
	TypeStateUpdate       = "state_update"
	TypeAlert             = "alert"
	TypeRemediationResult = "remediation_result"
)

// Message is one of the outbound message kinds defined in this package.
type Message interface {
	MessageType() string
	// prepare returns a copy with the type discriminator set and the
	// timestamp filled in if it is zero.
	prepare(now time.Time) Message
}

// ConnectionAck greets a newly registered subscriber.
type ConnectionAck struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	ClientID  string    `json:"client_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (ConnectionAck) MessageType() string { return TypeConnectionAck }

func (m ConnectionAck) prepare(now time.Time) Message {
	m.Type = TypeConnectionAck
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	return m
}

// StateUpdate carries a full snapshot; the snapshot fields are inlined.
type StateUpdate struct {
	Type string `json:"type"`
	telemetry.Snapshot
}

func (StateUpdate) MessageType() string { return TypeStateUpdate }

func (m StateUpdate) prepare(now time.Time) Message {
	m.Type = TypeStateUpdate
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	return m
}

// Severity ranks an alert, p1 being the most urgent.
type Severity string

// Alert severities.
const (
	SeverityP1 Severity = "p1"
	SeverityP2 Severity = "p2"
	SeverityP3 Severity = "p3"
)

// ErrUnknownSeverity is returned by ParseSeverity.
var ErrUnknownSeverity = errors.New("unknown severity")

// ParseSeverity validates a severity, accepting upper case.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityP1, SeverityP2, SeverityP3:
		return Severity(s), nil
	case "P1", "P2", "P3":
		return Severity("p" + s[1:]), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
}

// Alert announces an incident on one service.
type Alert struct {
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Severity   Severity  `json:"severity"`
	ServiceID  string    `json:"service_id"`
	Message    string    `json:"message"`
	Analysis   string    `json:"analysis"`
	AudioURL   string    `json:"audio_url,omitempty"`
	DatadogURL string    `json:"datadog_url,omitempty"`
}

func (Alert) MessageType() string { return TypeAlert }

func (m Alert) prepare(now time.Time) Message {
	m.Type = TypeAlert
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	return m
}

// RemediationResult reports the outcome of a remediation action.
type RemediationResult struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	ServiceID string    `json:"service_id"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
}

func (RemediationResult) MessageType() string { return TypeRemediationResult }

func (m RemediationResult) prepare(now time.Time) Message {
	m.Type = TypeRemediationResult
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	return m
}
