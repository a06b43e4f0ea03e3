package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewOllamaClient(t *testing.T) {
	models := map[Tier]string{
		Tier1: "llama3.2",
		Tier2: "llama3.1",
	}

	client := NewOllamaClient("http://localhost:11434", models, time.Minute)

	if client.BaseURL() != "http://localhost:11434" {
		t.Errorf("BaseURL() = %s, want http://localhost:11434", client.BaseURL())
	}
	if client.httpClient.Timeout != time.Minute {
		t.Errorf("Timeout = %v, want 1m", client.httpClient.Timeout)
	}
	if client.Name() != ProviderOllama {
		t.Errorf("Name() = %s, want ollama", client.Name())
	}
}

func TestNewOllamaClient_DefaultTimeout(t *testing.T) {
	client := NewOllamaClient("http://localhost:11434", nil, 0)
	if client.httpClient.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", client.httpClient.Timeout)
	}
}

func TestOllamaClient_Available(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, nil, time.Second)
	if !client.Available() {
		t.Error("Available() should return true for working server")
	}
}

func TestOllamaClient_Available_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, nil, time.Second)
	if client.Available() {
		t.Error("Available() should return false for server error")
	}
}

func TestOllamaClient_Available_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewOllamaClient(url, nil, time.Second)
	if client.Available() {
		t.Error("Available() should return false for unreachable server")
	}
}

func TestOllamaClient_Complete(t *testing.T) {
	var received ollamaRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		json.NewEncoder(w).Encode(ollamaResponse{
			Model:           "llama3.2",
			Message:         Message{Role: "assistant", Content: `{"is_same": true}`},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 10,
			EvalCount:       5,
		})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, map[Tier]string{Tier1: "llama3.2"}, time.Second)

	resp, err := client.Complete(context.Background(), &Request{
		Tier:     Tier1,
		System:   "You compare test cases",
		Messages: UserMessage("Are these the same?"),
		Format:   SimilaritySchema,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if received.Model != "llama3.2" {
		t.Errorf("model = %s, want llama3.2", received.Model)
	}
	if received.Stream {
		t.Error("stream should be false")
	}
	if len(received.Messages) != 2 || received.Messages[0].Role != "system" {
		t.Errorf("messages = %+v, want system message first", received.Messages)
	}
	if string(received.Format) != string(SimilaritySchema) {
		t.Errorf("format = %s, want similarity schema", received.Format)
	}
	if received.Options != nil {
		t.Errorf("options = %+v, want nil", received.Options)
	}

	if resp.Content != `{"is_same": true}` {
		t.Errorf("Content = %s", resp.Content)
	}
	if resp.Provider != ProviderOllama {
		t.Errorf("Provider = %s, want ollama", resp.Provider)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 5 {
		t.Errorf("tokens = %d/%d, want 10/5", resp.InputTokens, resp.OutputTokens)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %s, want stop", resp.FinishReason)
	}
}

func TestOllamaClient_Complete_ExplicitModel(t *testing.T) {
	var received ollamaRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(ollamaResponse{Model: received.Model, Message: Message{Content: "ok"}})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, map[Tier]string{Tier1: "llama3.2"}, time.Second)

	resp, err := client.Complete(context.Background(), &Request{Tier: Tier1, Model: "codegemma", Messages: UserMessage("hi")})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if received.Model != "codegemma" {
		t.Errorf("model = %s, want codegemma", received.Model)
	}
	if resp.Model != "codegemma" {
		t.Errorf("resp.Model = %s, want codegemma", resp.Model)
	}
}

func TestOllamaClient_Complete_NoModelForTier(t *testing.T) {
	client := NewOllamaClient("http://localhost:11434", map[Tier]string{}, time.Second)

	_, err := client.Complete(context.Background(), &Request{Tier: Tier2})
	if err == nil {
		t.Error("Complete() should return error when no model configured")
	}
}

func TestOllamaClient_Complete_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("model loading"))
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, map[Tier]string{Tier1: "llama3.2"}, time.Second)

	_, err := client.Complete(context.Background(), &Request{Tier: Tier1})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", statusErr.StatusCode)
	}
	if statusErr.Body != "model loading" {
		t.Errorf("Body = %q, want 'model loading'", statusErr.Body)
	}
}

func TestOllamaClient_Complete_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		json.NewEncoder(w).Encode(ollamaResponse{})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, map[Tier]string{Tier1: "llama3.2"}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, &Request{Tier: Tier1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestOllamaClient_Complete_WithOptions(t *testing.T) {
	var received ollamaRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(ollamaResponse{Message: Message{Content: "ok"}})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, map[Tier]string{Tier1: "llama3.2"}, time.Second)

	_, err := client.Complete(context.Background(), &Request{
		Tier:        Tier1,
		Temperature: 0.2,
		MaxTokens:   256,
		Stop:        []string{"```"},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if received.Options == nil {
		t.Fatal("Options should not be nil")
	}
	if received.Options.Temperature != 0.2 {
		t.Errorf("Temperature = %f, want 0.2", received.Options.Temperature)
	}
	if received.Options.NumPredict != 256 {
		t.Errorf("NumPredict = %d, want 256", received.Options.NumPredict)
	}
	if len(received.Options.Stop) != 1 {
		t.Errorf("len(Stop) = %d, want 1", len(received.Options.Stop))
	}
}

func TestOllamaClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"llama3.1"},{"name":"deepseek-coder"},{"name":"mathstral"}]}`))
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, nil, time.Second)

	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error: %v", err)
	}

	want := []string{"llama3.1", "deepseek-coder", "mathstral"}
	if len(models) != len(want) {
		t.Fatalf("len(models) = %d, want %d", len(models), len(want))
	}
	for i := range want {
		if models[i] != want[i] {
			t.Errorf("models[%d] = %s, want %s", i, models[i], want[i])
		}
	}
}

func TestOllamaClient_ListModels_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, nil, time.Second)

	if _, err := client.ListModels(context.Background()); err == nil {
		t.Error("ListModels() should return error on server error")
	}
}
