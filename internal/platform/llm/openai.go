package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIClient talks to the OpenAI chat-completions API.
type OpenAIClient struct {
	apiKey   string
	model    string
	endpoint string
	httpc    *http.Client
}

func NewOpenAIClient(apiKey, model string, timeout time.Duration) *OpenAIClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		apiKey:   apiKey,
		model:    model,
		endpoint: openAIEndpoint,
		httpc:    &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIClient) Name() string  { return "openai" }
func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) Complete(ctx context.Context, system, user string, opts Options) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoCredential
	}

	body := map[string]any{
		"model": c.model,
		"messages": []any{
			map[string]any{"role": "system", "content": system},
			map[string]any{"role": "user", "content": user},
		},
		"temperature":     opts.Temperature,
		"response_format": map[string]any{"type": "json_object"},
	}
	if opts.MaxTokens > 0 {
		body["max_tokens"] = opts.MaxTokens
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	if len(raw.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	return strings.TrimSpace(raw.Choices[0].Message.Content), nil
}
