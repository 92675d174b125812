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

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/ports"
)

// OutlineClient implements ports.OutlineClient backed by OpenAI-compatible
// chat completions.
type OutlineClient struct {
	endpoint    string
	model       string
	apiKey      string
	brand       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

var _ ports.OutlineClient = (*OutlineClient)(nil)

// NewOutlineClient builds a client from configuration.
func NewOutlineClient(cfg config.OpenAIConfig) *OutlineClient {
	return &OutlineClient{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		brand:       cfg.Brand,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Outline asks for a 5-6 part outline. HTTP 429 is returned as
// ports.ErrRateLimited so the caller can back off.
func (c *OutlineClient) Outline(ctx context.Context, r ports.OutlineRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("outline client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("outline client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []message{
			{Role: "system", Content: c.systemPrompt(r.Author)},
			{Role: "user", Content: fmt.Sprintf("Title: %s\nCategory: %s", r.Title, r.Category)},
		},
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal outline payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request outline: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ports.ErrRateLimited
	}
	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode outline: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("outline response without choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *OutlineClient) systemPrompt(author string) string {
	intro := "You are a contributor to YardBonita."
	if author = strings.TrimSpace(author); author != "" {
		intro = fmt.Sprintf("You are %s, writing for YardBonita.", author)
	}
	brand := strings.TrimSpace(c.brand)
	if brand != "" {
		intro += " " + brand
	}
	return intro + " Generate a 5-6 part article outline based on the title and category provided. Focus on clarity and structure. Skip intro/conclusion."
}
