package metrics

import "strconv"

// CostPerInputToken prices inference input tokens.
const CostPerInputToken = 0.00001

// Recorder emits the named NEXUS measurements to a Sink.
type Recorder struct {
	sink Sink
}

// NewRecorder wraps sink; nil means Discard.
func NewRecorder(sink Sink) *Recorder {
	if sink == nil {
		sink = Discard{}
	}
	return &Recorder{sink: sink}
}

// ServiceMetrics records latency and error rate (as a percentage).
func (r *Recorder) ServiceMetrics(serviceID, status string, latencyMS int, errorRate float64) {
	tags := map[string]string{"service_id": serviceID, "status": status}
	r.sink.Gauge("service.latency", float64(latencyMS), tags)
	r.sink.Gauge("service.error_rate", errorRate*100, tags)
}

// Throughput records a service's traffic volume.
func (r *Recorder) Throughput(serviceID string, trafficVolume int) {
	r.sink.Gauge("service.throughput", float64(trafficVolume), map[string]string{"service_id": serviceID})
}

// LLM records inference token usage, latency and cost.
func (r *Recorder) LLM(serviceID, model string, tokensIn, tokensOut, latencyMS int) {
	tags := map[string]string{"model": model, "service_id": serviceID}
	r.sink.Gauge("llm.tokens.input", float64(tokensIn), tags)
	r.sink.Gauge("llm.tokens.output", float64(tokensOut), tags)
	r.sink.Histogram("llm.latency", float64(latencyMS), tags)
	r.sink.Gauge("llm.cost", float64(tokensIn)*CostPerInputToken, tags)
}

// SystemIntegrity records the healthy percentage.
func (r *Recorder) SystemIntegrity(integrity float64) {
	r.sink.Gauge("system.integrity", integrity, nil)
}

// WebsocketConnections records the subscriber count.
func (r *Recorder) WebsocketConnections(n int) {
	r.sink.Gauge("websocket.connections", float64(n), nil)
}

// KafkaLag records consumer lag for a group.
func (r *Recorder) KafkaLag(lag int64, group string) {
	r.sink.Gauge("kafka.lag", float64(lag), map[string]string{"consumer_group": group})
}

// Remediation counts a remediation attempt.
func (r *Recorder) Remediation(serviceID, action string, success bool) {
	r.sink.Count("remediation.count", 1, map[string]string{
		"service_id": serviceID,
		"action":     action,
		"success":    strconv.FormatBool(success),
	})
}

// Alert counts an inbound alert.
func (r *Recorder) Alert(serviceID, severity string) {
	r.sink.Count("alert.count", 1, map[string]string{"service_id": serviceID, "severity": severity})
}
