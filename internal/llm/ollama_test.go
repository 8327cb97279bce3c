package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaEngine_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("Expected path /api/tags, got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"mistral:7b-instruct-v0.3"},{"model":"llama3:latest"}]}`))
	}))
	defer server.Close()

	engine := NewOllamaEngine(server.URL, 5*time.Second, "", "", "")
	models, err := engine.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 || models[0] != "mistral:7b-instruct-v0.3" || models[1] != "llama3:latest" {
		t.Errorf("unexpected models: %v", models)
	}
}

func TestOllamaEngine_ListModels_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	engine := NewOllamaEngine(url, time.Second, "", "", "")
	if _, err := engine.ListModels(context.Background()); err == nil {
		t.Fatal("Expected error for unreachable server")
	}
}

func TestOllamaEngine_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.Raw {
			t.Error("Expected raw=true for a pre-templated prompt")
		}
		if req.Stream {
			t.Error("Expected stream=false")
		}
		if req.Options.NumPredict != 300 {
			t.Errorf("Expected num_predict 300, got %d", req.Options.NumPredict)
		}
		if req.Options.RepeatPenalty != 1.1 {
			t.Errorf("Expected repeat_penalty 1.1, got %v", req.Options.RepeatPenalty)
		}

		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Model:           req.Model,
			Response:        " 1. Is it?\n",
			Done:            true,
			PromptEvalCount: 20,
			EvalCount:       5,
		})
	}))
	defer server.Close()

	engine := NewOllamaEngine(server.URL, 5*time.Second, "", "", "")
	out, err := engine.Complete(context.Background(), CompletionRequest{
		Model:         "mistral",
		Prompt:        "<s>[INST] q [/INST]",
		Temperature:   0.3,
		TopP:          0.9,
		RepeatPenalty: 1.1,
		MaxTokens:     300,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out.Text != "1. Is it?" {
		t.Errorf("Expected trimmed text, got %q", out.Text)
	}
	if out.TokensUsed != 25 {
		t.Errorf("Expected 25 tokens, got %d", out.TokensUsed)
	}
}

func TestOllamaEngine_Complete_EstimatesTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "Yes", Done: true})
	}))
	defer server.Close()

	engine := NewOllamaEngine(server.URL, 5*time.Second, "", "", "")
	out, err := engine.Complete(context.Background(), CompletionRequest{Model: "m", Prompt: strings.Repeat("x", 397)})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out.TokensUsed != 100 {
		t.Errorf("Expected estimated 100 tokens, got %d", out.TokensUsed)
	}
}

func TestOllamaEngine_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'missing' not found"}`))
	}))
	defer server.Close()

	engine := NewOllamaEngine(server.URL, 5*time.Second, "", "", "")
	_, err := engine.Complete(context.Background(), CompletionRequest{Model: "missing", Prompt: "p"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected 'not found' in error, got %v", err)
	}
}

func TestOllamaEngine_Complete_RequiresModel(t *testing.T) {
	engine := NewOllamaEngine("", 0, "", "", "")
	if _, err := engine.Complete(context.Background(), CompletionRequest{Prompt: "p"}); err == nil {
		t.Fatal("Expected error for missing model")
	}
}
