package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient talks to Google's Generative Language API.
type GeminiClient struct {
	apiKey string
	model  string
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	return &GeminiClient{
		apiKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
	}
}

func (c *GeminiClient) Name() string  { return "gemini" }
func (c *GeminiClient) Model() string { return c.model }

func (c *GeminiClient) Complete(ctx context.Context, system, user string, opts Options) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoCredential
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(c.model)
	temp := float32(opts.Temperature)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}
	if opts.MaxTokens > 0 {
		maxTok := int32(opts.MaxTokens)
		m.GenerationConfig.MaxOutputTokens = &maxTok
	}
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	// transient 5xx happen often enough to warrant a short retry
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, genai.Text(user))
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := firstText(resp)
		if txt == "" {
			return "", fmt.Errorf("gemini: empty response")
		}
		return strings.TrimSpace(txt), nil
	}
	return "", lastErr
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok && strings.TrimSpace(string(t)) != "" {
				return string(t)
			}
		}
	}
	return ""
}
