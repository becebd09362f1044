package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nexus-sim/internal/broadcast"
	"nexus-sim/internal/logging"
	"nexus-sim/internal/narrative"
	"nexus-sim/internal/telemetry"
	"nexus-sim/internal/voice"
)

// Action is a remediation an operator can apply to a service.
type Action string

// Remediation actions.
const (
	ActionResetContext Action = "reset_context"
	ActionScaleUp      Action = "scale_up"
	ActionFailover     Action = "failover"
	ActionRateLimit    Action = "rate_limit"
)

// Actions lists every remediation action.
var Actions = []Action{ActionResetContext, ActionScaleUp, ActionFailover, ActionRateLimit}

// ErrUnknownAction is returned by ParseAction.
var ErrUnknownAction = errors.New("unknown remediation action")

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// RemediationResponse describes an applied remediation.
type RemediationResponse struct {
	Success        bool             `json:"success"`
	ServiceID      string           `json:"service_id"`
	Action         Action           `json:"action"`
	PreviousStatus telemetry.Status `json:"previous_status"`
	NewStatus      telemetry.Status `json:"new_status"`
	Message        string           `json:"message"`
}

// Remediate forces a service back to healthy, resolves one active incident
// and tells every subscriber.
func (o *Orchestrator) Remediate(ctx context.Context, serviceID, action string) (RemediationResponse, error) {
	log := logging.FromContext(ctx)
	act, err := ParseAction(action)
	if err != nil {
		log.Warn("rejected remediation", "service_id", serviceID, "action", action, "err", err)
		return RemediationResponse{}, err
	}
	svc, ok := o.agg.Service(serviceID)
	if !ok {
		log.Warn("rejected remediation", "service_id", serviceID, "action", action)
		return RemediationResponse{}, fmt.Errorf("%w: %q", ErrUnknownService, serviceID)
	}

	o.agg.SetStatus(serviceID, telemetry.StatusHealthy)
	o.agg.DecrementIncidents()
	o.recorder.Remediation(serviceID, string(act), true)
	o.hub.Broadcast(broadcast.RemediationResult{
		Success:   true,
		ServiceID: serviceID,
		Action:    string(act),
		Message:   "Remediation applied: " + string(act),
	})
	log.Info("remediation applied", "service_id", serviceID, "action", act,
		"previous_status", svc.Status, "active_incidents", o.agg.ActiveIncidents())

	return RemediationResponse{
		Success:        true,
		ServiceID:      serviceID,
		Action:         act,
		PreviousStatus: svc.Status,
		NewStatus:      telemetry.StatusHealthy,
		Message:        "Remediation applied successfully",
	}, nil
}

// Webhook is an inbound monitor alert.
type Webhook struct {
	AlertID     string `json:"alert_id,omitempty"`
	AlertTitle  string `json:"alert_title"`
	AlertType   string `json:"alert_type"`
	EventType   string `json:"event_type"`
	Hostname    string `json:"hostname,omitempty"`
	OrgName     string `json:"org_name,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Tags        string `json:"tags,omitempty"`
	TextOnlyMsg string `json:"text_only_msg,omitempty"`
	AlertQuery  string `json:"alert_query,omitempty"`
	AlertScope  string `json:"alert_scope,omitempty"`
	AlertStatus string `json:"alert_status,omitempty"`
}

// UnknownServiceID is used when an alert scope names no service.
const UnknownServiceID = "unknown"

// MonitorURLPrefix links an alert back to its monitor.
const MonitorURLPrefix = "https://app.datadoghq.com/monitors/"

// ScopeServiceID extracts the service id from a scope like
// "env:prod,service_id:ai-brain".
func ScopeServiceID(scope string) string {
	for _, part := range strings.Split(scope, ",") {
		_, v, ok := strings.Cut(strings.TrimSpace(part), "service_id:")
		if ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return UnknownServiceID
}

// AlertResponse acknowledges a webhook.
type AlertResponse struct {
	Received  bool   `json:"received"`
	ServiceID string `json:"service_id"`
	Analysis  string `json:"analysis"`
}

// HandleAlert narrates an inbound alert, renders it to audio, opens an
// incident and broadcasts it.
func (o *Orchestrator) HandleAlert(ctx context.Context, w Webhook) AlertResponse {
	log := logging.FromContext(ctx)
	serviceID := ScopeServiceID(w.AlertScope)
	log.Info("received monitor alert", "title", w.AlertTitle, "service_id", serviceID)

	req := narrative.Request{
		ServiceID: serviceID,
		Status:    telemetry.StatusCritical,
		LatencyMS: 5000,
		ErrorRate: 0.5,
	}
	if svc, ok := o.agg.Service(serviceID); ok {
		req.Status = svc.Status
		req.LatencyMS = svc.LatencyMS
		req.ErrorRate = svc.ErrorRate
	}
	msg := w.TextOnlyMsg
	if msg == "" {
		msg = "Unknown error"
	}
	req.ErrorMessages = []string{msg}

	analysis := o.narrator.Analyze(ctx, req)
	audio := o.voice.Render(ctx, voice.AlertText(serviceID, analysis))

	severity := broadcast.SeverityP2
	if w.Priority != "" {
		if s, err := broadcast.ParseSeverity(w.Priority); err == nil {
			severity = s
		} else {
			log.Warn("unrecognised alert priority", "priority", w.Priority)
		}
	}
	var monitorURL string
	if w.AlertID != "" {
		monitorURL = MonitorURLPrefix + w.AlertID
	}

	o.agg.IncrementIncidents()
	log.Info("incident opened", "service_id", serviceID, "severity", severity, "active_incidents", o.agg.ActiveIncidents())
	o.recorder.Alert(serviceID, string(severity))
	o.hub.Broadcast(broadcast.Alert{
		Severity:   severity,
		ServiceID:  serviceID,
		Message:    w.AlertTitle,
		Analysis:   analysis,
		AudioURL:   audio,
		DatadogURL: monitorURL,
	})
	return AlertResponse{Received: true, ServiceID: serviceID, Analysis: analysis}
}
