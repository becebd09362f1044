// Package metrics emits operational measurements to pluggable sinks.
// Emission is fire and forget: sinks log their own failures.
package metrics

import (
	"log/slog"
	"sort"
)

// Sink receives measurements.
type Sink interface {
	Gauge(name string, value float64, tags map[string]string)
	Count(name string, value int64, tags map[string]string)
	Histogram(name string, value float64, tags map[string]string)
}

// Prefix is prepended to every metric name by the external sinks.
const Prefix = "nexus"

// FormatTags renders tags as sorted "key:value" pairs.
func FormatTags(tags map[string]string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for k, v := range tags {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}

// LogSink writes measurements at debug level. It is the default sink when no
// backend is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s LogSink) Gauge(name string, value float64, tags map[string]string) {
	s.logger().Debug("metric", "kind", "gauge", "name", Prefix+"."+name, "value", value, "tags", FormatTags(tags))
}

func (s LogSink) Count(name string, value int64, tags map[string]string) {
	s.logger().Debug("metric", "kind", "count", "name", Prefix+"."+name, "value", value, "tags", FormatTags(tags))
}

func (s LogSink) Histogram(name string, value float64, tags map[string]string) {
	s.logger().Debug("metric", "kind", "histogram", "name", Prefix+"."+name, "value", value, "tags", FormatTags(tags))
}

// MultiSink fans measurements out to several sinks.
type MultiSink []Sink

func (m MultiSink) Gauge(name string, value float64, tags map[string]string) {
	for _, s := range m {
		s.Gauge(name, value, tags)
	}
}

func (m MultiSink) Count(name string, value int64, tags map[string]string) {
	for _, s := range m {
		s.Count(name, value, tags)
	}
}

func (m MultiSink) Histogram(name string, value float64, tags map[string]string) {
	for _, s := range m {
		s.Histogram(name, value, tags)
	}
}

// Discard drops every measurement.
type Discard struct{}

func (Discard) Gauge(string, float64, map[string]string)     {}
func (Discard) Count(string, int64, map[string]string)       {}
func (Discard) Histogram(string, float64, map[string]string) {}
