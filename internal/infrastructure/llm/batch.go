package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// BatchClient implements ports.BatchClient over the Anthropic message
// batches API.
type BatchClient struct {
	endpoint    string
	apiKey      string
	version     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

var _ ports.BatchClient = (*BatchClient)(nil)

// NewBatchClient builds a client from configuration.
func NewBatchClient(cfg config.AnthropicConfig) *BatchClient {
	version := cfg.Version
	if version == "" {
		version = "2023-06-01"
	}
	return &BatchClient{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:      cfg.APIKey,
		version:     version,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type batchParams struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
}

type batchItem struct {
	CustomID string      `json:"custom_id"`
	Params   batchParams `json:"params"`
}

type batchEnvelope struct {
	ID               string `json:"id"`
	ProcessingStatus string `json:"processing_status"`
	ResultsURL       string `json:"results_url"`
	RequestCounts    struct {
		Processing int `json:"processing"`
		Succeeded  int `json:"succeeded"`
		Errored    int `json:"errored"`
		Canceled   int `json:"canceled"`
		Expired    int `json:"expired"`
	} `json:"request_counts"`
}

// Submit creates one batch holding every request.
func (c *BatchClient) Submit(ctx context.Context, reqs []ports.BatchRequest) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("batch client misconfigured")
	}

	items := make([]batchItem, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, batchItem{
			CustomID: r.CorrelationID,
			Params: batchParams{
				Model:       c.model,
				MaxTokens:   c.maxTokens,
				Temperature: c.temperature,
				System:      r.System,
				Messages:    []message{{Role: "user", Content: string(r.User)}},
			},
		})
	}

	body, err := json.Marshal(map[string]any{"requests": items})
	if err != nil {
		return "", fmt.Errorf("marshal batch payload: %w", err)
	}

	var env batchEnvelope
	if err := c.do(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body), &env); err != nil {
		return "", fmt.Errorf("create batch: %w", err)
	}
	if env.ID == "" {
		return "", fmt.Errorf("create batch: response without id")
	}
	return env.ID, nil
}

// Status reports the provider processing state. An ended batch whose every
// request expired or was canceled is reported as such.
func (c *BatchClient) Status(ctx context.Context, batchID string) (ports.BatchState, error) {
	var env batchEnvelope
	if err := c.do(ctx, http.MethodGet, c.endpoint+"/"+batchID, nil, &env); err != nil {
		return ports.BatchState{}, fmt.Errorf("batch status: %w", err)
	}

	state := ports.BatchState{Status: domain.BatchPending, ResultsURL: env.ResultsURL}
	switch env.ProcessingStatus {
	case "ended":
		counts := env.RequestCounts
		switch {
		case counts.Succeeded+counts.Errored > 0:
			state.Status = domain.BatchEnded
		case counts.Expired > 0:
			state.Status = domain.BatchExpired
		case counts.Canceled > 0:
			state.Status = domain.BatchCanceled
		default:
			state.Status = domain.BatchEnded
		}
	case "expired":
		state.Status = domain.BatchExpired
	case "canceled":
		state.Status = domain.BatchCanceled
	}
	return state, nil
}

type resultLine struct {
	CustomID string `json:"custom_id"`
	Result   struct {
		Type    string `json:"type"`
		Message struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"result"`
}

// Results downloads the JSONL result file and maps every line to its
// correlation identifier.
func (c *BatchClient) Results(ctx context.Context, resultsURL string) ([]ports.BatchResult, error) {
	if resultsURL == "" {
		return nil, fmt.Errorf("batch results: empty results url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("results error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out []ports.BatchResult
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line resultLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, fmt.Errorf("decode result line: %w", err)
		}
		if line.CustomID == "" {
			continue
		}
		out = append(out, toBatchResult(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return out, nil
}

func toBatchResult(line resultLine) ports.BatchResult {
	res := ports.BatchResult{CorrelationID: line.CustomID}
	switch line.Result.Type {
	case "succeeded", "":
		if len(line.Result.Message.Content) > 0 {
			res.RawText = line.Result.Message.Content[0].Text
		}
	case "errored":
		res.Err = strings.TrimSpace(line.Result.Error.Type + ": " + line.Result.Error.Message)
	default:
		res.Err = line.Result.Type
	}
	return res
}

func (c *BatchClient) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.version)
	req.Header.Set("Content-Type", "application/json")
}

func (c *BatchClient) do(ctx context.Context, method, url string, body io.Reader, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("anthropic error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
