package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"nexus-sim/internal/logging"
	"nexus-sim/internal/telemetry"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleEvent(id string, offset time.Duration) telemetry.Event {
	return telemetry.Event{
		Timestamp:     epoch.Add(offset),
		ServiceID:     id,
		Status:        telemetry.StatusWarning,
		LatencyMS:     1500,
		ErrorRate:     0.07,
		TrafficVolume: 45,
		Message:       "Retry attempts increasing",
		Metadata:      map[string]any{"region": "eu-west-1"},
	}
}

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"timestamp":"2025-03-01T09:00:00.123456+00:00","service_id":"auth","status":"critical","latency_ms":4000,"error_rate":0.3,"traffic_volume":10,"message":"Failover initiated"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.ServiceID != "auth" || ev.Metadata == nil {
		t.Fatalf("unexpected event %+v", ev)
	}

	bad := []string{
		`not json`,
		`{"timestamp":"2025-03-01T09:00:00Z","service_id":"auth","status":"critical","latency_ms":20000,"error_rate":0.3,"traffic_volume":10}`,
		`{"timestamp":"2025-03-01T09:00:00Z","service_id":"auth","status":"exploded","latency_ms":1,"error_rate":0.3,"traffic_volume":10}`,
	}
	for _, b := range bad {
		if _, err := Decode([]byte(b)); err == nil {
			t.Errorf("expected error for %s", b)
		}
	}
}

func TestLogRoundTrip(t *testing.T) {
	for _, name := range []string{"events.jsonl", "events.jsonl.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			w, err := NewLogWriter(path)
			if err != nil {
				t.Fatal(err)
			}
			in := []telemetry.Event{sampleEvent("auth", 0), sampleEvent("payment", time.Second)}
			if err := w.WriteBatch(in); err != nil {
				t.Fatal(err)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}
			if strings.HasSuffix(name, ".zst") {
				raw, _ := os.ReadFile(path)
				if strings.Contains(string(raw), "payment") {
					t.Fatal("expected compressed output")
				}
			}

			var got []telemetry.Event
			err = FileSource{Path: path}.Run(context.Background(), func(_ context.Context, ev telemetry.Event) error {
				got = append(got, ev)
				return nil
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(got) != 2 || got[0].ServiceID != "auth" || got[1].ServiceID != "payment" {
				t.Fatalf("unexpected replay %+v", got)
			}
			if !got[1].Timestamp.Equal(in[1].Timestamp) {
				t.Errorf("timestamp changed: %v", got[1].Timestamp)
			}
		})
	}
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	data := `{"timestamp":"2025-03-01T09:00:00Z","service_id":"auth","status":"healthy","latency_ms":300,"error_rate":0.01,"traffic_volume":90,"message":"ok"}
{garbage

{"timestamp":"2025-03-01T09:00:01Z","service_id":"database","status":"healthy","latency_ms":300,"error_rate":0.01,"traffic_volume":90,"message":"ok"}
`
	var ids []string
	ctx := logging.NewContext(context.Background(), logging.Discard())
	err := Replay(ctx, strings.NewReader(data), 0, func(_ context.Context, ev telemetry.Event) error {
		ids = append(ids, ev.ServiceID)
		return errors.New("handler errors are logged only")
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if strings.Join(ids, ",") != "auth,database" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestReplayHonoursCancellation(t *testing.T) {
	data := `{"timestamp":"2025-03-01T09:00:00Z","service_id":"auth","status":"healthy","latency_ms":300,"error_rate":0.01,"traffic_volume":90,"message":"ok"}
{"timestamp":"2025-03-01T10:00:00Z","service_id":"auth","status":"healthy","latency_ms":300,"error_rate":0.01,"traffic_volume":90,"message":"ok"}
`
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := Replay(ctx, strings.NewReader(data), 1, func(context.Context, telemetry.Event) error {
		n++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one delivery before cancel, got %d", n)
	}
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Stats() kafka.ReaderStats { return kafka.ReaderStats{Lag: 7} }
func (f *fakeReader) Close() error            { f.closed = true; return nil }

func TestKafkaSourceRun(t *testing.T) {
	good, _ := Encode(sampleEvent("payment", 0))
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: []byte("{")},
		{Offset: 3, Value: good},
	}}
	var lags []int64
	src := &KafkaSource{reader: r, group: DefaultGroupID, OnLag: func(lag int64, group string) { lags = append(lags, lag) }}

	ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), logging.Discard()))
	delivered := 0
	err := src.Run(ctx, func(context.Context, telemetry.Event) error {
		delivered++
		if delivered == 2 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
	if len(r.committed) < 2 || r.committed[1] != 2 {
		t.Fatalf("malformed message should be committed, got %v", r.committed)
	}
	if !r.closed {
		t.Error("reader should be closed")
	}
	if len(lags) == 0 || lags[0] != 7 {
		t.Errorf("expected lag report, got %v", lags)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}
func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	fw := &fakeWriter{}
	p := &KafkaPublisher{writer: fw, timeout: time.Second, logger: logging.Discard()}
	if err := p.Write(sampleEvent("auth", 0)); err != nil {
		t.Fatal(err)
	}
	if len(fw.msgs) != 1 || string(fw.msgs[0].Key) != "auth" {
		t.Fatalf("unexpected messages %+v", fw.msgs)
	}
	ev, err := Decode(fw.msgs[0].Value)
	if err != nil || ev.ServiceID != "auth" {
		t.Fatalf("published value not decodable: %v", err)
	}

	fw.err = errors.New("broker down")
	if err := p.Write(sampleEvent("auth", 0)); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestKafkaConfigEnabled(t *testing.T) {
	cases := []struct {
		cfg  KafkaConfig
		want bool
	}{
		{KafkaConfig{}, false},
		{KafkaConfig{Brokers: []string{"b:9092"}}, false},
		{KafkaConfig{Brokers: []string{"b:9092"}, Username: "u"}, true},
	}
	for i, tc := range cases {
		if got := tc.cfg.Enabled(); got != tc.want {
			t.Errorf("case %d: Enabled()=%v, want %v", i, got, tc.want)
		}
	}
	mech, tlsCfg := KafkaConfig{Username: "u", Password: "p"}.mechanism()
	if mech == nil || tlsCfg == nil {
		t.Error("expected SASL and TLS with credentials")
	}
}
