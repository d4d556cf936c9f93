package oracle

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini uses Google's GenAI SDK for structured chat and embeddings.
type Gemini struct {
	client     *genai.Client
	model      string
	embedModel string
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, apiKey, model, embedModel string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if embedModel == "" {
		embedModel = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create GenAI client: %w", err)
	}

	return &Gemini{client: client, model: model, embedModel: embedModel}, nil
}

// Name returns the backend name.
func (g *Gemini) Name() string {
	return fmt.Sprintf("gemini:%s", g.model)
}

// Chat requests a JSON response and spells out the schema in the prompt.
func (g *Gemini) Chat(ctx context.Context, prompt string, schema Schema) (map[string]any, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		MaxOutputTokens:  500,
		ResponseMIMEType: "application/json",
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt+schemaInstruction(schema)), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini chat: %w", err)
	}
	return parseObject(result.Text())
}

// Embed requests a semantic-similarity embedding.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("gemini embed: no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}
