package oracle

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAI talks to any OpenAI-compatible API (OpenAI, Azure, Groq, LM Studio, ...).
type OpenAI struct {
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	client     *http.Client
}

// NewOpenAI creates an OpenAI-compatible backend.
func NewOpenAI(baseURL, apiKey, model, embedModel string, timeout time.Duration) *OpenAI {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAI{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		embedModel: embedModel,
		client:     newHTTPClient(timeout),
	}
}

// Name returns the backend name.
func (o *OpenAI) Name() string {
	return fmt.Sprintf("openai:%s", o.model)
}

func (o *OpenAI) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + o.apiKey}
}

// Chat embeds the schema in the prompt since not every compatible API honours response_format.
func (o *OpenAI) Chat(ctx context.Context, prompt string, schema Schema) (map[string]any, error) {
	req := openAIChatRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt + schemaInstruction(schema)}},
		Temperature: 0.1,
		MaxTokens:   500,
	}
	var resp openAIChatResponse
	if err := postJSON(ctx, o.client, o.baseURL+"/chat/completions", o.headers(), req, &resp); err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat: no choices returned")
	}
	return parseObject(resp.Choices[0].Message.Content)
}

// Embed calls /embeddings.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openAIEmbedRequest{Model: o.embedModel, Input: text}
	var resp openAIEmbedResponse
	if err := postJSON(ctx, o.client, o.baseURL+"/embeddings", o.headers(), req, &resp); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

type openAIChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type openAIEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}
