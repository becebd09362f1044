package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

// Defaults for GreptimeSink.
const (
	DefaultGreptimeTable     = "nexus_metrics"
	DefaultGreptimeBatchSize = 500
	DefaultGreptimeInterval  = 5 * time.Second
)

// greptimeClient is the subset of the ingester client used by the sink.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

type measurement struct {
	name  string
	kind  string
	value float64
	tags  map[string]string
	ts    time.Time
}

// GreptimeSink buffers measurements and writes them to GreptimeDB, one row
// per measurement, on Flush. Run flushes periodically and whenever the
// buffer reaches the batch size.
type GreptimeSink struct {
	client    greptimeClient
	table     string
	batchSize int
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	buf     []measurement
	full    chan struct{}
	dropped int
}

// NewGreptimeSink connects to the GreptimeDB gRPC endpoint (host or
// host:port).
func NewGreptimeSink(endpoint, database string, logger *slog.Logger) (*GreptimeSink, error) {
	host, port := endpoint, 0
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptime endpoint %q: %w", endpoint, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host)
	if port > 0 {
		cfg = cfg.WithPort(port)
	}
	if database != "" {
		cfg = cfg.WithDatabase(database)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return newGreptimeSink(client, logger), nil
}

func newGreptimeSink(client greptimeClient, logger *slog.Logger) *GreptimeSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &GreptimeSink{
		client:    client,
		table:     DefaultGreptimeTable,
		batchSize: DefaultGreptimeBatchSize,
		logger:    logger,
		now:       time.Now,
		full:      make(chan struct{}, 1),
	}
}

func (s *GreptimeSink) add(kind, name string, value float64, tags map[string]string) {
	m := measurement{name: Prefix + "." + name, kind: kind, value: value, tags: tags, ts: s.now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) >= 4*s.batchSize {
		s.dropped++
		return
	}
	s.buf = append(s.buf, m)
	if len(s.buf) >= s.batchSize {
		select {
		case s.full <- struct{}{}:
		default:
		}
	}
}

func (s *GreptimeSink) Gauge(name string, value float64, tags map[string]string) {
	s.add("gauge", name, value, tags)
}

func (s *GreptimeSink) Count(name string, value int64, tags map[string]string) {
	s.add("count", name, float64(value), tags)
}

func (s *GreptimeSink) Histogram(name string, value float64, tags map[string]string) {
	s.add("histogram", name, value, tags)
}

// Flush writes every buffered measurement.
func (s *GreptimeSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	rows := s.buf
	s.buf = nil
	dropped := s.dropped
	s.dropped = 0
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Warn("greptime buffer overflow", "dropped", dropped)
	}
	if len(rows) == 0 {
		return nil
	}
	tbl, err := s.buildTable(rows)
	if err != nil {
		return err
	}
	if _, err := s.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptime write: %w", err)
	}
	s.logger.Debug("greptime flush", "rows", len(rows))
	return nil
}

func (s *GreptimeSink) buildTable(rows []measurement) (*table.Table, error) {
	tbl, err := table.New(s.table)
	if err != nil {
		return nil, err
	}
	for _, col := range []string{"metric", "kind", "service_id"} {
		if err := tbl.AddTagColumn(col, types.STRING); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddFieldColumn("value", types.FLOAT64); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("tags", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	for _, m := range rows {
		extra, _ := json.Marshal(m.tags)
		if m.tags == nil {
			extra = []byte("{}")
		}
		if err := tbl.AddRow(m.name, m.kind, m.tags["service_id"], m.value, string(extra), m.ts); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// Run flushes every interval until ctx is done, then flushes once more.
func (s *GreptimeSink) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultGreptimeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-s.full:
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Flush(flushCtx); err != nil {
				s.logger.Error("final greptime flush failed", "err", err)
			}
			cancel()
			return
		}
		if err := s.Flush(ctx); err != nil {
			s.logger.Error("greptime flush failed", "err", err)
		}
	}
}
