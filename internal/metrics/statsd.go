package metrics

import (
	"fmt"
	"log/slog"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// DefaultStatsdAddr is the local DogStatsD agent.
const DefaultStatsdAddr = "localhost:8125"

// statsdClient is the subset of statsd.ClientInterface used by the sink.
type statsdClient interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Close() error
}

// StatsdSink forwards measurements to a DogStatsD agent.
type StatsdSink struct {
	client statsdClient
	logger *slog.Logger
}

// NewStatsdSink connects to the agent at addr.
func NewStatsdSink(addr string, logger *slog.Logger) (*StatsdSink, error) {
	if addr == "" {
		addr = DefaultStatsdAddr
	}
	client, err := statsd.New(addr, statsd.WithNamespace(Prefix+"."))
	if err != nil {
		return nil, fmt.Errorf("statsd client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsdSink{client: client, logger: logger}, nil
}

func (s *StatsdSink) Gauge(name string, value float64, tags map[string]string) {
	if err := s.client.Gauge(name, value, FormatTags(tags), 1); err != nil {
		s.logger.Warn("statsd gauge failed", "name", name, "err", err)
	}
}

func (s *StatsdSink) Count(name string, value int64, tags map[string]string) {
	if err := s.client.Count(name, value, FormatTags(tags), 1); err != nil {
		s.logger.Warn("statsd count failed", "name", name, "err", err)
	}
}

func (s *StatsdSink) Histogram(name string, value float64, tags map[string]string) {
	if err := s.client.Histogram(name, value, FormatTags(tags), 1); err != nil {
		s.logger.Warn("statsd histogram failed", "name", name, "err", err)
	}
}

// Close flushes and closes the client.
func (s *StatsdSink) Close() error {
	return s.client.Close()
}
