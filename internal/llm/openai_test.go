package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/verity/internal/model"
)

func TestOpenAIProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Fatalf("Expected 2 messages, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != openai.ChatMessageRoleSystem || req.Messages[0].Content != "sys" {
			t.Errorf("Expected system message 'sys', got %+v", req.Messages[0])
		}
		if req.Messages[1].Role != openai.ChatMessageRoleUser || req.Messages[1].Content != "usr" {
			t.Errorf("Expected user message 'usr', got %+v", req.Messages[1])
		}
		if req.MaxTokens != 50 {
			t.Errorf("Expected max_tokens 50, got %d", req.MaxTokens)
		}

		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Message: openai.ChatCompletionMessage{
						Role:    "assistant",
						Content: "  Yes  \n",
					},
					FinishReason: "stop",
				},
			},
			Usage: openai.Usage{TotalTokens: 42},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Generate(context.Background(), Request{System: "sys", User: "usr", MaxTokens: 50})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Text != "Yes" {
		t.Errorf("Expected trimmed text 'Yes', got %q", resp.Text)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("Expected 42 tokens, got %d", resp.TokensUsed)
	}
	if resp.Model != "gpt-4o-mini" {
		t.Errorf("Expected model gpt-4o-mini, got %s", resp.Model)
	}
}

func TestOpenAIProvider_Generate_ZeroTemperatureIsSent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		temp, ok := raw["temperature"]
		if !ok {
			t.Errorf("Expected temperature to be sent for a deterministic request")
		} else if v, _ := temp.(float64); v > 0.001 {
			t.Errorf("Expected near-zero temperature, got %v", v)
		}

		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "No"}}},
		})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if _, err := provider.Generate(context.Background(), Request{User: "q", Temperature: 0}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
}

func TestOpenAIProvider_Generate_IgnoresLocalSampling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if v, _ := raw["temperature"].(float64); v < 0.29 || v > 0.31 {
			t.Errorf("Expected remote temperature 0.3, got %v", raw["temperature"])
		}
		if _, ok := raw["top_p"]; ok {
			t.Errorf("Expected no top_p, got %v", raw["top_p"])
		}

		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "1. Is it?"}}},
		})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	req := Request{
		User:        "q",
		Temperature: 0.3,
		Local:       &LocalSampling{Temperature: 0.7, TopP: 0.9, RepeatPenalty: 1.1},
	}
	if _, err := provider.Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
}

func TestOpenAIProvider_Generate_APIError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "Internal server error", "type": "server_error"}}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.Generate(context.Background(), Request{User: "q"})
	if err == nil {
		t.Fatal("Expected error from API, got nil")
	}
	if !strings.Contains(err.Error(), "OpenAI API error") {
		t.Errorf("Expected 'OpenAI API error', got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected exactly one request (no retries), got %d", calls)
	}
}

func TestOpenAIProvider_Generate_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{ID: "chatcmpl-123"})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.Generate(context.Background(), Request{User: "q"})
	if err == nil || !strings.Contains(err.Error(), "no response from OpenAI") {
		t.Errorf("Expected 'no response from OpenAI', got %v", err)
	}
}

func TestOpenAIProvider_Generate_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := provider.Generate(ctx, Request{User: "q"}); err == nil {
		t.Fatal("Expected error for cancelled context, got nil")
	}
}

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}); err == nil {
		t.Fatal("Expected error for missing API key")
	}
}

func TestNewRemote(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{"openai", "openai", false},
		{"OpenAI", "openai", false},
		{"anthropic", "anthropic", false},
		{"claude", "anthropic", false},
		{"", "", true},
		{"ollama", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			gen, err := NewRemote(Config{Provider: tt.provider, APIKey: "k"})
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for provider %q", tt.provider)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gen.Name() != tt.wantName {
				t.Errorf("expected %s, got %s", tt.wantName, gen.Name())
			}
		})
	}
}

func TestConfigFromModel_CarriesProxy(t *testing.T) {
	config := ConfigFromModel(model.LLMConfig{
		Provider:   "openai",
		HTTPProxy:  "http://proxy:3128",
		HTTPSProxy: "http://proxy:3128",
		NoProxy:    "localhost,127.0.0.1",
	})
	if config.HTTPProxy != "http://proxy:3128" || config.HTTPSProxy != "http://proxy:3128" {
		t.Errorf("proxy not carried over: %+v", config)
	}
	if config.NoProxy != "localhost,127.0.0.1" {
		t.Errorf("expected no_proxy list, got %q", config.NoProxy)
	}
}
