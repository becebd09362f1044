package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used for narration.
const DefaultModel = "gemini-2.0-flash"

const systemPrompt = `You are NEXUS, a Starfleet-class observability AI.
You analyze system failures and provide concise, technical explanations
using sci-fi terminology. Keep responses under 20 words.

Examples:
- "Subspace interference in neural pathways causing token overflow"
- "Quantum decoherence detected in authentication matrix"
- "Cascading resonance failure across data substrates"
- "Temporal anomaly disrupting payment transaction streams"
- "Warp field instability in database connection pool"`

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiNarrator asks a Gemini model for the analysis and falls back to the
// static pool on any error.
type GeminiNarrator struct {
	models   contentGenerator
	model    string
	timeout  time.Duration
	fallback Narrator
	logger   *slog.Logger
}

// GeminiConfig configures NewGemini.
type GeminiConfig struct {
	Project  string
	Location string
	Model    string
	Timeout  time.Duration
}

// NewGemini creates a narrator backed by Vertex AI.
func NewGemini(ctx context.Context, cfg GeminiConfig, fallback Narrator, logger *slog.Logger) (*GeminiNarrator, error) {
	if cfg.Project == "" {
		return nil, errors.New("gemini: project is required")
	}
	if cfg.Location == "" {
		cfg.Location = "us-central1"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return newGemini(client.Models, cfg, fallback, logger), nil
}

func newGemini(models contentGenerator, cfg GeminiConfig, fallback Narrator, logger *slog.Logger) *GeminiNarrator {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if fallback == nil {
		fallback = NewStatic(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiNarrator{models: models, model: cfg.Model, timeout: cfg.Timeout, fallback: fallback, logger: logger}
}

// Prompt renders the user prompt for req.
func Prompt(req Request) string {
	msgs := req.ErrorMessages
	if len(msgs) == 0 {
		msgs = []string{"Connection timeout"}
	}
	return fmt.Sprintf("Service: %s\nStatus: %s\nLatency: %dms\nError Rate: %.1f%%\nRecent Errors: %s\n\nProvide a brief, sci-fi explanation of the root cause.",
		req.ServiceID, req.Status, req.LatencyMS, req.ErrorRate*100, strings.Join(msgs, ", "))
}

func (g *GeminiNarrator) Analyze(ctx context.Context, req Request) string {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(Prompt(req)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		MaxOutputTokens:   50,
		Temperature:       genai.Ptr[float32](0.7),
	})
	if err != nil {
		g.logger.Error("gemini request failed", "service_id", req.ServiceID, "err", err)
		return g.fallback.Analyze(ctx, req)
	}
	text := responseText(resp)
	if text == "" {
		g.logger.Warn("gemini returned no text", "service_id", req.ServiceID)
		return g.fallback.Analyze(ctx, req)
	}
	g.logger.Info("gemini analysis", "service_id", req.ServiceID, "analysis", text)
	return text
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
