package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

func TestBatchClientSubmit(t *testing.T) {
	t.Parallel()

	var got struct {
		Requests []batchItem `json:"requests"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/messages/batches" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "key" || r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("missing headers: %v", r.Header)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"id":"msgbatch_1","processing_status":"in_progress"}`)
	}))
	defer srv.Close()

	c := NewBatchClient(config.AnthropicConfig{Endpoint: srv.URL + "/v1/messages/batches", APIKey: "key", Model: "claude", MaxTokens: 4096, Temperature: 0.5})
	id, err := c.Submit(context.Background(), []ports.BatchRequest{
		{CorrelationID: "r1", System: "sys", User: []byte(`{"title":"A"}`)},
		{CorrelationID: "r2", System: "sys", User: []byte(`{"title":"B"}`)},
	})
	if err != nil || id != "msgbatch_1" {
		t.Fatalf("Submit = %q, %v", id, err)
	}
	if len(got.Requests) != 2 || got.Requests[0].CustomID != "r1" {
		t.Fatalf("requests = %+v", got.Requests)
	}
	p := got.Requests[1].Params
	if p.Model != "claude" || p.MaxTokens != 4096 || p.Temperature != 0.5 || p.System != "sys" || p.Messages[0].Content != `{"title":"B"}` {
		t.Fatalf("params = %+v", p)
	}
}

func TestBatchClientSubmitError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewBatchClient(config.AnthropicConfig{Endpoint: srv.URL, APIKey: "key", Model: "claude"})
	if _, err := c.Submit(context.Background(), []ports.BatchRequest{{CorrelationID: "r1"}}); err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected 503 error, got %v", err)
	}
}

func TestBatchClientStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		body string
		want domain.BatchStatus
	}{
		{`{"processing_status":"in_progress"}`, domain.BatchPending},
		{`{"processing_status":"canceling"}`, domain.BatchPending},
		{`{"processing_status":"ended","results_url":"u","request_counts":{"succeeded":2,"errored":1}}`, domain.BatchEnded},
		{`{"processing_status":"ended","request_counts":{"expired":3}}`, domain.BatchExpired},
		{`{"processing_status":"ended","request_counts":{"canceled":3}}`, domain.BatchCanceled},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/batches/b1" {
					t.Errorf("path = %s", r.URL.Path)
				}
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			c := NewBatchClient(config.AnthropicConfig{Endpoint: srv.URL + "/batches/", APIKey: "key", Model: "m"})
			state, err := c.Status(context.Background(), "b1")
			if err != nil || state.Status != tc.want {
				t.Fatalf("Status = %+v, %v; want %s", state, err, tc.want)
			}
		})
	}
}

func TestBatchClientResults(t *testing.T) {
	t.Parallel()

	lines := strings.Join([]string{
		`{"custom_id":"r1","result":{"type":"succeeded","message":{"content":[{"type":"text","text":"==TIER==\nTier 1"}]}}}`,
		``,
		`{"custom_id":"r2","result":{"type":"errored","error":{"type":"invalid_request","message":"too long"}}}`,
		`{"custom_id":"r3","result":{"type":"expired"}}`,
		`{"result":{"type":"succeeded"}}`,
	}, "\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, lines)
	}))
	defer srv.Close()

	c := NewBatchClient(config.AnthropicConfig{Endpoint: srv.URL, APIKey: "key", Model: "m"})
	results, err := c.Results(context.Background(), srv.URL+"/results")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].RawText != "==TIER==\nTier 1" || results[0].Err != "" {
		t.Fatalf("r1 = %+v", results[0])
	}
	if results[1].Err != "invalid_request: too long" || results[2].Err != "expired" {
		t.Fatalf("errors = %+v", results[1:])
	}
}

func TestOutlineClient(t *testing.T) {
	t.Parallel()

	var payload struct {
		Model       string    `json:"model"`
		Messages    []message `json:"messages"`
		Temperature float64   `json:"temperature"`
		MaxTokens   int       `json:"max_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  1. Soil\n2. Seed  "}}]}`)
	}))
	defer srv.Close()

	c := NewOutlineClient(config.OpenAIConfig{Endpoint: srv.URL, APIKey: "sk", Model: "gpt-3.5-turbo", MaxTokens: 500, Temperature: 0.7})
	outline, err := c.Outline(context.Background(), ports.OutlineRequest{Title: "Overseeding", Category: "lawn-care", Author: "Tina Delgado"})
	if err != nil || outline != "1. Soil\n2. Seed" {
		t.Fatalf("Outline = %q, %v", outline, err)
	}
	if payload.Model != "gpt-3.5-turbo" || payload.MaxTokens != 500 || payload.Temperature != 0.7 {
		t.Fatalf("payload = %+v", payload)
	}
	if !strings.HasPrefix(payload.Messages[0].Content, "You are Tina Delgado, writing for YardBonita.") {
		t.Fatalf("system = %q", payload.Messages[0].Content)
	}
	if payload.Messages[1].Content != "Title: Overseeding\nCategory: lawn-care" {
		t.Fatalf("user = %q", payload.Messages[1].Content)
	}
}

func TestOutlineClientRateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOutlineClient(config.OpenAIConfig{Endpoint: srv.URL, APIKey: "sk", Model: "m"})
	if _, err := c.Outline(context.Background(), ports.OutlineRequest{Title: "t"}); !errors.Is(err, ports.ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}
