package metrics

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"nexus-sim/internal/logging"
)

type point struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type recordingSink struct{ points []point }

func (s *recordingSink) Gauge(name string, v float64, tags map[string]string) {
	s.points = append(s.points, point{"gauge", name, v, tags})
}
func (s *recordingSink) Count(name string, v int64, tags map[string]string) {
	s.points = append(s.points, point{"count", name, float64(v), tags})
}
func (s *recordingSink) Histogram(name string, v float64, tags map[string]string) {
	s.points = append(s.points, point{"histogram", name, v, tags})
}

func (s *recordingSink) find(name string) (point, bool) {
	for _, p := range s.points {
		if p.name == name {
			return p, true
		}
	}
	return point{}, false
}

func TestFormatTags(t *testing.T) {
	got := FormatTags(map[string]string{"status": "ok", "service_id": "auth"})
	want := []string{"service_id:auth", "status:ok"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if FormatTags(nil) != nil {
		t.Fatal("expected nil for empty tags")
	}
}

func TestRecorderServiceMetrics(t *testing.T) {
	s := &recordingSink{}
	r := NewRecorder(s)
	r.ServiceMetrics("payment", "warning", 1500, 0.07)
	p, ok := s.find("service.error_rate")
	if !ok || p.value < 6.99 || p.value > 7.01 {
		t.Fatalf("expected error rate as percentage, got %+v", p)
	}
	if p.tags["status"] != "warning" {
		t.Errorf("missing status tag: %v", p.tags)
	}
}

func TestRecorderLLM(t *testing.T) {
	s := &recordingSink{}
	NewRecorder(s).LLM("ai-brain", "gemini-2.0-flash", 300, 120, 4100)
	cost, ok := s.find("llm.cost")
	if !ok || cost.value != 300*CostPerInputToken {
		t.Fatalf("unexpected cost %+v", cost)
	}
	lat, ok := s.find("llm.latency")
	if !ok || lat.kind != "histogram" {
		t.Fatalf("latency should be a histogram: %+v", lat)
	}
}

func TestRecorderRemediation(t *testing.T) {
	s := &recordingSink{}
	NewRecorder(s).Remediation("auth", "failover", true)
	p, ok := s.find("remediation.count")
	if !ok || p.kind != "count" || p.tags["success"] != "true" {
		t.Fatalf("unexpected remediation point %+v", p)
	}
}

func TestMultiSinkAndLogSink(t *testing.T) {
	buf := &bytes.Buffer{}
	a := &recordingSink{}
	m := MultiSink{a, LogSink{Logger: logging.NewWithWriter(buf, "debug")}}
	m.Gauge("system.integrity", 80, nil)
	m.Count("remediation.count", 1, nil)
	m.Histogram("llm.latency", 10, nil)
	if len(a.points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(a.points))
	}
	if !strings.Contains(buf.String(), "name=nexus.system.integrity") {
		t.Fatalf("expected prefixed log line, got %q", buf.String())
	}
}

type fakeStatsd struct {
	calls []string
	err   error
}

func (f *fakeStatsd) Gauge(name string, value float64, tags []string, rate float64) error {
	f.calls = append(f.calls, "gauge:"+name+":"+strings.Join(tags, ","))
	return f.err
}
func (f *fakeStatsd) Count(name string, value int64, tags []string, rate float64) error {
	f.calls = append(f.calls, "count:"+name)
	return f.err
}
func (f *fakeStatsd) Histogram(name string, value float64, tags []string, rate float64) error {
	f.calls = append(f.calls, "histogram:"+name)
	return f.err
}
func (f *fakeStatsd) Close() error { return nil }

func TestStatsdSink(t *testing.T) {
	f := &fakeStatsd{}
	s := &StatsdSink{client: f, logger: logging.Discard()}
	s.Gauge("service.latency", 500, map[string]string{"service_id": "auth"})
	s.Count("remediation.count", 1, nil)
	s.Histogram("llm.latency", 2, nil)
	want := []string{"gauge:service.latency:service_id:auth", "count:remediation.count", "histogram:llm.latency"}
	if !reflect.DeepEqual(f.calls, want) {
		t.Fatalf("got %v, want %v", f.calls, want)
	}

	f.err = errors.New("agent down")
	s.Gauge("system.integrity", 1, nil)
}

type mockGreptimeClient struct {
	tables []*table.Table
	err    error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tables = append(m.tables, tables...)
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeSinkFlush(t *testing.T) {
	m := &mockGreptimeClient{}
	s := newGreptimeSink(m, logging.Discard())
	s.now = func() time.Time { return time.Unix(0, 0).UTC() }

	s.Gauge("service.latency", 4200, map[string]string{"service_id": "payment", "status": "critical"})
	s.Count("remediation.count", 1, nil)
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(m.tables) != 1 {
		t.Fatalf("expected one table write, got %d", len(m.tables))
	}
	rows := m.tables[0].GetRows()
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	if len(rows.Schema) != 6 {
		t.Fatalf("unexpected schema length %d", len(rows.Schema))
	}
	first := rows.Rows[0].Values
	if got := first[0].GetStringValue(); got != "nexus.service.latency" {
		t.Fatalf("metric = %s", got)
	}
	if got := first[2].GetStringValue(); got != "payment" {
		t.Fatalf("service_id = %s", got)
	}
	if got := first[3].GetF64Value(); got != 4200 {
		t.Fatalf("value = %v", got)
	}

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("empty flush: %v", err)
	}
	if len(m.tables) != 1 {
		t.Fatal("empty flush should not write")
	}
}

func TestGreptimeSinkFlushError(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("unavailable")}
	s := newGreptimeSink(m, logging.Discard())
	s.Gauge("system.integrity", 100, nil)
	if err := s.Flush(context.Background()); err == nil {
		t.Fatal("expected write error")
	}
}

func TestGreptimeSinkRunFlushesOnCancel(t *testing.T) {
	m := &mockGreptimeClient{}
	s := newGreptimeSink(m, logging.Discard())
	s.Gauge("websocket.connections", 3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	<-done
	if len(m.tables) != 1 {
		t.Fatalf("expected final flush, got %d writes", len(m.tables))
	}
}
