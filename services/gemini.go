package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/krshsl/mensetsu/backend/models"
	"github.com/krshsl/mensetsu/backend/normalizer"

	"google.golang.org/genai"
)

const DefaultModelName = "gemini-2.5-flash"

// TextGenerator produces model text for the session flows.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	// GenerateStructured returns the first JSON object in the model output,
	// tolerating code fences and surrounding commentary.
	GenerateStructured(ctx context.Context, prompt string) (map[string]any, error)
}

// GeminiService calls Gemini with whichever key the rotator currently points
// at. One client is kept per key.
type GeminiService struct {
	rotator *KeyRotator
	model   string
	timeout time.Duration
	metrics *Metrics

	clientsMutex sync.Mutex
	clients      map[string]*genai.Client
}

func NewGeminiService(rotator *KeyRotator, model string, timeout time.Duration, metrics *Metrics) *GeminiService {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiService{
		rotator: rotator,
		model:   model,
		timeout: timeout,
		metrics: metrics,
		clients: make(map[string]*genai.Client),
	}
}

// Model returns the configured model name.
func (g *GeminiService) Model() string {
	return g.model
}

func (g *GeminiService) client(ctx context.Context) (*genai.Client, error) {
	key, ok := g.rotator.Current()
	if !ok {
		return nil, fmt.Errorf("no gemini api key configured: %w", models.ErrConfiguration)
	}

	g.clientsMutex.Lock()
	defer g.clientsMutex.Unlock()

	if client, exists := g.clients[key]; exists {
		return client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	g.clients[key] = client
	slog.Info("Created genai client", "key_index", g.rotator.Index(), "model", g.model)
	return client, nil
}

func (g *GeminiService) generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	client, err := g.client(ctx)
	if err != nil {
		return "", err
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	g.metrics.ObserveUpstream("gemini", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w: %w", models.ErrUpstream, err)
	}
	return strings.TrimSpace(result.Text()), nil
}

// GenerateText returns the trimmed text of a single-prompt completion.
func (g *GeminiService) GenerateText(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, prompt, nil)
}

// GenerateStructured asks for JSON output and extracts the object from the
// reply.
func (g *GeminiService) GenerateStructured(ctx context.Context, prompt string) (map[string]any, error) {
	text, err := g.generate(ctx, prompt, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, err
	}
	data := normalizer.ExtractJSONObject(text)
	if data == nil {
		preview := text
		if len(preview) > 200 {
			preview = preview[:200]
		}
		slog.Warn("Failed to parse structured response", "response", preview)
		return nil, fmt.Errorf("model returned no JSON object: %w", models.ErrUpstream)
	}
	return data, nil
}
