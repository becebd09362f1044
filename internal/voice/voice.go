// Package voice renders alert text to speech and returns the URL path of the
// audio clip to play.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Synthesizer produces a playable clip. It never fails; implementations fall
// back to a pre-recorded clip.
type Synthesizer interface {
	Render(ctx context.Context, text string) string
}

// URLPrefix is where audio clips are served.
const URLPrefix = "/static/audio/"

// AlertText formats the spoken text for a service incident.
func AlertText(serviceID, analysis string) string {
	return fmt.Sprintf("Alert: %s service. %s", serviceID, analysis)
}

// WelcomeText is the spoken greeting.
const WelcomeText = "Welcome, Engineer. Colony status operational."

// FallbackClip picks a pre-recorded clip by keyword.
func FallbackClip(text string) string {
	t := strings.ToLower(text)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(t, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("cascading", "critical"):
		return URLPrefix + "alert_cascading.mp3"
	case has("latency", "warning"):
		return URLPrefix + "alert_latency.mp3"
	case has("repair", "success", "fixed"):
		return URLPrefix + "repair_success.mp3"
	case has("healthy", "optimal"):
		return URLPrefix + "system_healthy.mp3"
	case has("welcome"):
		return URLPrefix + "welcome.mp3"
	}
	return URLPrefix + "alert_latency.mp3"
}

// Fallback always returns a pre-recorded clip.
type Fallback struct{}

func (Fallback) Render(_ context.Context, text string) string { return FallbackClip(text) }

// ElevenLabs defaults.
const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	DefaultModelID = "eleven_monolingual_v1"
)

// ElevenLabs calls the ElevenLabs text-to-speech API and stores the returned
// mp3 in AudioDir.
type ElevenLabs struct {
	APIKey   string
	VoiceID  string
	BaseURL  string
	AudioDir string
	Client   *http.Client
	Logger   *slog.Logger
}

// NewElevenLabs creates a synthesizer writing clips under audioDir.
func NewElevenLabs(apiKey, voiceID, audioDir string, logger *slog.Logger) (*ElevenLabs, error) {
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("audio dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevenLabs{
		APIKey:   apiKey,
		VoiceID:  voiceID,
		BaseURL:  DefaultBaseURL,
		AudioDir: audioDir,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Logger:   logger,
	}, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

func (e *ElevenLabs) Render(ctx context.Context, text string) string {
	url, err := e.render(ctx, text)
	if err != nil {
		e.Logger.Error("elevenlabs synthesis failed", "err", err)
		return FallbackClip(text)
	}
	return url
}

func (e *ElevenLabs) render(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: DefaultModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.75,
			SimilarityBoost: 0.75,
			Style:           0.5,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(e.BaseURL, "/")+"/v1/text-to-speech/"+e.VoiceID, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	name := "alert_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8] + ".mp3"
	f, err := os.Create(filepath.Join(e.AudioDir, name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	e.Logger.Info("generated voice alert", "file", name)
	return URLPrefix + name, nil
}
