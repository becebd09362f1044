package narrative

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"google.golang.org/genai"

	"nexus-sim/internal/logging"
	"nexus-sim/internal/telemetry"
)

func TestStaticPool(t *testing.T) {
	s := NewStatic(rand.New(rand.NewSource(1)))
	for id, pool := range fallbackPool {
		got := s.Analyze(context.Background(), Request{ServiceID: id})
		found := false
		for _, p := range pool {
			if p == got {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: %q not from pool", id, got)
		}
	}
	if got := s.Analyze(context.Background(), Request{ServiceID: "mainframe"}); got != UnknownSubsystem {
		t.Errorf("unexpected fallback %q", got)
	}
}

func TestPrompt(t *testing.T) {
	p := Prompt(Request{ServiceID: "payment", Status: telemetry.StatusCritical, LatencyMS: 4200, ErrorRate: 0.253})
	for _, want := range []string{"Service: payment", "Status: critical", "Latency: 4200ms", "Error Rate: 25.3%", "Recent Errors: Connection timeout"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}

type fakeModels struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	return f.resp, f.err
}

type fixedNarrator string

func (f fixedNarrator) Analyze(context.Context, Request) string { return string(f) }

func TestGeminiNarrator(t *testing.T) {
	f := &fakeModels{resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: "  Warp core breach in payment lattice \n"}}},
	}}}}
	g := newGemini(f, GeminiConfig{}, fixedNarrator("fallback"), logging.Discard())
	got := g.Analyze(context.Background(), Request{ServiceID: "payment"})
	if got != "Warp core breach in payment lattice" {
		t.Fatalf("unexpected analysis %q", got)
	}
	if f.model != DefaultModel {
		t.Errorf("unexpected model %s", f.model)
	}
	if f.config.MaxOutputTokens != 50 || f.config.SystemInstruction == nil {
		t.Errorf("unexpected config %+v", f.config)
	}
}

func TestGeminiNarratorFallsBack(t *testing.T) {
	cases := map[string]*fakeModels{
		"error": {err: errors.New("quota exceeded")},
		"empty": {resp: &genai.GenerateContentResponse{}},
	}
	for name, f := range cases {
		g := newGemini(f, GeminiConfig{}, fixedNarrator("fallback"), logging.Discard())
		if got := g.Analyze(context.Background(), Request{ServiceID: "auth"}); got != "fallback" {
			t.Errorf("%s: expected fallback, got %q", name, got)
		}
	}
}

func TestNewGeminiRequiresProject(t *testing.T) {
	if _, err := NewGemini(context.Background(), GeminiConfig{}, nil, nil); err == nil {
		t.Fatal("expected error without project")
	}
}
