package imagegen

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

// maxImageBytes caps a single downloaded image.
const maxImageBytes = 32 << 20

// Client drives Replicate model predictions.
type Client struct {
	endpoint    string
	token       string
	model       string
	aspectRatio string
	http        *http.Client
}

var _ ports.ImageClient = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg config.ReplicateConfig) *Client {
	ratio := cfg.AspectRatio
	if ratio == "" {
		ratio = "16:9"
	}
	return &Client{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		token:       cfg.APIToken,
		model:       cfg.Model,
		aspectRatio: ratio,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// Start creates a prediction and returns its polling URL as the handle.
func (c *Client) Start(ctx context.Context, prompt string) (string, error) {
	if c.token == "" || c.model == "" {
		return "", fmt.Errorf("image client misconfigured")
	}

	payload := map[string]any{
		"input": map[string]any{
			"prompt":       prompt,
			"aspect_ratio": c.aspectRatio,
		},
	}

	var p prediction
	if err := c.post(ctx, "/models/"+c.model+"/predictions", payload, &p); err != nil {
		return "", err
	}
	if !strings.HasPrefix(p.URLs.Get, "http") {
		return "", fmt.Errorf("invalid prediction url %q", p.URLs.Get)
	}
	return p.URLs.Get, nil
}

// Poll reads the prediction state once.
func (c *Client) Poll(ctx context.Context, handle string) (ports.ImageJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, handle, nil)
	if err != nil {
		return ports.ImageJob{}, fmt.Errorf("new request: %w", err)
	}
	c.authorize(req)

	var p prediction
	if err := c.do(req, http.StatusOK, &p); err != nil {
		return ports.ImageJob{}, err
	}

	job := ports.ImageJob{Handle: handle, Status: ports.ImagePending}
	switch p.Status {
	case "succeeded":
		job.Status = ports.ImageSucceeded
		job.OutputURL = firstOutput(p.Output)
	case "failed", "canceled":
		job.Status = ports.ImageFailed
		job.Error = p.Status
		if p.Error != nil {
			job.Error = fmt.Sprint(p.Error)
		}
	}
	return job, nil
}

// Download fetches the generated image bytes.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return data, nil
}

// firstOutput accepts a single URL or a list of URLs.
func firstOutput(raw json.RawMessage) string {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return one
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.do(req, http.StatusCreated, v)
}

func (c *Client) do(req *http.Request, want int, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != want {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
