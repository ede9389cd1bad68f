package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/HendryAvila/sage/internal/config"
)

// ErrNotConfigured is returned when no reasoning credentials are available.
var ErrNotConfigured = errors.New("reasoning: service not configured")

// Request is what the kernel sends to a reasoning service.
type Request struct {
	SystemInstructions string
	Prompt             string
}

// Service is an external reasoning backend returning free text.
type Service interface {
	// Ready reports whether the service can be called.
	Ready() bool
	Complete(ctx context.Context, req Request) (string, error)
}

// GenAIService calls a Gemini model through google.golang.org/genai.
type GenAIService struct {
	client *genai.Client
	model  string
}

// NewGenAIService creates a service for cfg.Model. A missing API key is
// reported as ErrNotConfigured so callers can run in fallback mode.
func NewGenAIService(ctx context.Context, cfg config.Reasoning) (*GenAIService, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("reasoning: create genai client: %w", err)
	}
	return &GenAIService{client: client, model: cfg.Model}, nil
}

func (s *GenAIService) Ready() bool { return s != nil && s.client != nil }

func (s *GenAIService) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.2),
	}
	if req.SystemInstructions != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstructions, genai.RoleUser)
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("reasoning: generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("reasoning: empty completion")
	}
	return text, nil
}
