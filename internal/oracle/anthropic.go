package oracle

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Anthropic talks to the Anthropic Messages API. It has no embedding endpoint.
type Anthropic struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewAnthropic creates an Anthropic backend.
func NewAnthropic(baseURL, apiKey, model string, timeout time.Duration) *Anthropic {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &Anthropic{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  newHTTPClient(timeout),
	}
}

// Name returns the backend name.
func (a *Anthropic) Name() string {
	return fmt.Sprintf("anthropic:%s", a.model)
}

// Chat sends a single user message carrying the schema instruction.
func (a *Anthropic) Chat(ctx context.Context, prompt string, schema Schema) (map[string]any, error) {
	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   500,
		Messages:    []chatMessage{{Role: "user", Content: prompt + schemaInstruction(schema)}},
		Temperature: 0.1,
	}
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": "2023-06-01",
	}
	var resp anthropicResponse
	if err := postJSON(ctx, a.client, a.baseURL+"/messages", headers, req, &resp); err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return parseObject(sb.String())
}

// Embed is not offered by Anthropic.
func (a *Anthropic) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrUnsupported
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}
