// YAML config loader with environment overlay and CUE validation
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"nexus-sim/internal/feed"
)

// ServerConfig controls the HTTP and websocket surface.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	StaticDir   string   `yaml:"static_dir"`
}

// SimulationConfig controls event generation and the broadcast cadence.
type SimulationConfig struct {
	EventsPerSecond   float64       `yaml:"events_per_second"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	HistoryCapacity   int           `yaml:"history_capacity"`
	ScenarioFile      string        `yaml:"scenario_file"`
	EventLog          string        `yaml:"event_log"`
}

// MetricsConfig selects the metric sinks. Empty addresses disable a sink.
type MetricsConfig struct {
	DatadogAPIKey    string        `yaml:"datadog_api_key"`
	StatsdAddr       string        `yaml:"statsd_addr"`
	GreptimeEndpoint string        `yaml:"greptime_endpoint"`
	GreptimeDatabase string        `yaml:"greptime_database"`
	FlushInterval    time.Duration `yaml:"flush_interval"`
}

// StatsdEnabled reports whether a DogStatsD sink should be created.
func (m MetricsConfig) StatsdEnabled() bool {
	return m.DatadogAPIKey != "" || m.StatsdAddr != ""
}

// GeminiConfig configures incident narration.
type GeminiConfig struct {
	Project  string        `yaml:"project"`
	Location string        `yaml:"location"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ElevenLabsConfig configures alert audio.
type ElevenLabsConfig struct {
	APIKey   string `yaml:"api_key"`
	VoiceID  string `yaml:"voice_id"`
	AudioDir string `yaml:"audio_dir"`
}

// Config is the root configuration of the NEXUS backend.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Server     ServerConfig     `yaml:"server"`
	Simulation SimulationConfig `yaml:"simulation"`
	Kafka      feed.KafkaConfig `yaml:"kafka"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			StaticDir:   "static",
		},
		Simulation: SimulationConfig{
			EventsPerSecond:   10,
			BroadcastInterval: 2 * time.Second,
			HistoryCapacity:   100,
		},
		Kafka: feed.KafkaConfig{
			Brokers: []string{},
			Topic:   feed.DefaultTopic,
			GroupID: feed.DefaultGroupID,
		},
		Metrics: MetricsConfig{
			GreptimeDatabase: "public",
			FlushInterval:    5 * time.Second,
		},
		Gemini: GeminiConfig{
			Location: "us-central1",
			Model:    "gemini-2.0-flash",
			Timeout:  10 * time.Second,
		},
		ElevenLabs: ElevenLabsConfig{
			VoiceID:  "21m00Tcm4TlvDq8ikWAM",
			AudioDir: "static/audio",
		},
	}
}

// Load reads path over the defaults, applies the environment and validates
// the result. A missing file leaves the defaults in place. An empty
// schemaPath uses the embedded schema.
func Load(path, schemaPath string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("cannot read config: %w", err)
		default:
			if err := decode(data, cfg); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	ApplyEnv(cfg, viper.New())

	schema := Schema
	if schemaPath != "" {
		b, err := os.ReadFile(schemaPath)
		if err != nil {
			return nil, fmt.Errorf("cannot read CUE schema: %w", err)
		}
		schema = b
	}
	if err := Validate(cfg, schema); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	return nil
}

// ApplyEnv overlays the recognised environment variables onto cfg.
func ApplyEnv(cfg *Config, v *viper.Viper) {
	v.AutomaticEnv()

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = strings.TrimSpace(v.GetString(key))
		}
	}
	list := func(key string, dst *[]string) {
		if v.IsSet(key) {
			*dst = splitList(v.GetString(key))
		}
	}

	str("LOG_LEVEL", &cfg.LogLevel)
	if v.IsSet("PORT") {
		cfg.Server.Port = v.GetInt("PORT")
	}
	list("CORS_ORIGINS", &cfg.Server.CORSOrigins)

	if v.IsSet("EVENTS_PER_SECOND") {
		cfg.Simulation.EventsPerSecond = v.GetFloat64("EVENTS_PER_SECOND")
	}
	if v.IsSet("BROADCAST_INTERVAL") {
		cfg.Simulation.BroadcastInterval = v.GetDuration("BROADCAST_INTERVAL")
	}

	list("KAFKA_BOOTSTRAP_SERVERS", &cfg.Kafka.Brokers)
	str("KAFKA_SASL_USERNAME", &cfg.Kafka.Username)
	str("KAFKA_SASL_PASSWORD", &cfg.Kafka.Password)
	str("KAFKA_TOPIC", &cfg.Kafka.Topic)

	str("DD_API_KEY", &cfg.Metrics.DatadogAPIKey)
	str("DD_STATSD_ADDR", &cfg.Metrics.StatsdAddr)
	str("GREPTIMEDB_ENDPOINT", &cfg.Metrics.GreptimeEndpoint)
	str("GREPTIMEDB_DATABASE", &cfg.Metrics.GreptimeDatabase)

	str("GOOGLE_PROJECT_ID", &cfg.Gemini.Project)
	str("GOOGLE_LOCATION", &cfg.Gemini.Location)

	str("ELEVENLABS_API_KEY", &cfg.ElevenLabs.APIKey)
	str("ELEVENLABS_VOICE_ID", &cfg.ElevenLabs.VoiceID)
}

func splitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
