package oracle

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Ollama talks to a local Ollama server.
type Ollama struct {
	endpoint   string
	model      string
	embedModel string
	client     *http.Client
}

// NewOllama creates an Ollama backend. An empty endpoint means localhost.
func NewOllama(endpoint, model, embedModel string, timeout time.Duration) *Ollama {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &Ollama{
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		embedModel: embedModel,
		client:     newHTTPClient(timeout),
	}
}

// Name returns the backend name.
func (o *Ollama) Name() string {
	return fmt.Sprintf("ollama:%s", o.model)
}

// Chat uses Ollama's structured output via the format field.
func (o *Ollama) Chat(ctx context.Context, prompt string, schema Schema) (map[string]any, error) {
	req := ollamaChatRequest{
		Model:    o.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Format:   schema,
		Options:  map[string]any{"temperature": 0.1, "num_predict": 500},
	}
	var resp ollamaChatResponse
	if err := postJSON(ctx, o.client, o.endpoint+"/api/chat", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	return parseObject(resp.Message.Content)
}

// Embed calls /api/embed.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	req := ollamaEmbedRequest{Model: o.embedModel, Input: text}
	var resp ollamaEmbedResponse
	if err := postJSON(ctx, o.client, o.endpoint+"/api/embed", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embed: no embeddings returned")
	}
	return resp.Embeddings[0], nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   Schema         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}
