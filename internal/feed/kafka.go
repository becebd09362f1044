package feed

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"

	"nexus-sim/internal/logging"
	"nexus-sim/internal/telemetry"
)

// Kafka defaults.
const (
	DefaultTopic   = "nexus-telemetry"
	DefaultGroupID = "nexus-backend"
)

// KafkaConfig locates the telemetry topic. It is also the kafka section of
// the config file.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	GroupID  string   `yaml:"group_id"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// Enabled reports whether a consumer should be started: brokers and a SASL
// username must both be set.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Username != ""
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.GroupID == "" {
		c.GroupID = DefaultGroupID
	}
	return c
}

// mechanism returns SASL/PLAIN over TLS when credentials are set.
func (c KafkaConfig) mechanism() (sasl.Mechanism, *tls.Config) {
	if c.Username == "" || c.Password == "" {
		return nil, nil
	}
	return plain.Mechanism{Username: c.Username, Password: c.Password}, &tls.Config{MinVersion: tls.VersionTLS12}
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

// KafkaSource consumes JSON events from a topic as part of a consumer group.
// New groups start from the latest offset.
type KafkaSource struct {
	reader      messageReader
	group       string
	lagInterval time.Duration
	// OnLag, when set, receives the consumer lag every lagInterval.
	OnLag func(lag int64, group string)
}

// NewKafkaSource creates a consumer for cfg.
func NewKafkaSource(cfg KafkaConfig) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	cfg = cfg.withDefaults()
	mech, tlsCfg := cfg.mechanism()
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.LastOffset,
		MaxWait:     100 * time.Millisecond,
		Dialer: &kafka.Dialer{
			Timeout:       10 * time.Second,
			DualStack:     true,
			SASLMechanism: mech,
			TLS:           tlsCfg,
		},
	})
	return &KafkaSource{reader: r, group: cfg.GroupID, lagInterval: 10 * time.Second}, nil
}

// Run fetches messages until ctx is cancelled. Malformed messages are logged,
// committed and dropped.
func (s *KafkaSource) Run(ctx context.Context, handle Handler) error {
	log := logging.FromContext(ctx)
	defer s.reader.Close()
	log.Info("kafka consumer started", "group", s.group)

	lastLag := time.Now()
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("kafka consumer stopped")
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		ev, err := Decode(msg.Value)
		if err != nil {
			log.Warn("dropping malformed kafka message", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		} else if err := handle(ctx, ev); err != nil {
			log.Error("kafka event handler failed", "service_id", ev.ServiceID, "err", err)
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn("kafka commit failed", "offset", msg.Offset, "err", err)
		}
		if s.OnLag != nil && time.Since(lastLag) >= s.lagInterval {
			s.OnLag(s.reader.Stats().Lag, s.group)
			lastLag = time.Now()
		}
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher produces events to a topic keyed by service id.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger
}

// NewKafkaPublisher creates a producer for cfg.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	cfg = cfg.withDefaults()
	mech, tlsCfg := cfg.mechanism()
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		Transport: &kafka.Transport{
			SASL: mech,
			TLS:  tlsCfg,
		},
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{writer: w, timeout: 5 * time.Second, logger: logger}, nil
}

// Write publishes one event.
func (p *KafkaPublisher) Write(ev telemetry.Event) error {
	return p.WriteBatch([]telemetry.Event{ev})
}

// WriteBatch publishes several events in one request.
func (p *KafkaPublisher) WriteBatch(evs []telemetry.Event) error {
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		data, err := Encode(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(ev.ServiceID), Value: data})
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("kafka publish failed", "count", len(msgs), "err", err)
		return err
	}
	return nil
}

// Close flushes pending messages and closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
