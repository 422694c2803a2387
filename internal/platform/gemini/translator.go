// Package gemini implements the translate.Processor contract against
// Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/config"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/translate"
)

// promptSlot is replaced by the unit content in the prompt template.
const promptSlot = "{{slot}}"

// Translator sends text units to the Gemini API. It performs exactly
// one API call per Process invocation: the dispatch engine owns all
// retry and backoff policy.
type Translator struct {
	logger *slog.Logger
	cfg    config.LLMConfig
	client *genai.Client
	model  string
}

// New creates a Translator from LLM configuration.
func New(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Translator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	if !strings.Contains(cfg.PromptTemplate, promptSlot) {
		return nil, fmt.Errorf("%w: prompt template must contain %s", ErrInvalidConfig, promptSlot)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return &Translator{
		logger: logger,
		cfg:    cfg,
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Process translates one unit of text. Vendor errors propagate with
// their original message so the engine's classifier can recognize
// rate-limit signatures. A response blocked by safety filters is a
// permanent failure: retrying the same content cannot succeed.
func (t *Translator) Process(ctx context.Context, content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("%w: empty unit content", translate.ErrPermanent)
	}

	prompt := strings.ReplaceAll(t.cfg.PromptTemplate, promptSlot, content)
	t.logger.DebugContext(ctx, "calling Gemini API",
		"model", t.model,
		"prompt_length", len(prompt))

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(t.cfg.Temperature)),
		TopP:        genai.Ptr(float32(t.cfg.TopP)),
	}

	resp, err := t.client.Models.GenerateContent(ctx, t.model, genai.Text(prompt), genConfig)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", translate.ErrEmptyResult
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", translate.ErrPermanent)
	}
	if candidate.Content == nil {
		return "", translate.ErrEmptyResult
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", translate.ErrEmptyResult
	}

	t.logger.DebugContext(ctx, "Gemini API call succeeded",
		"response_length", text.Len())
	return text.String(), nil
}
