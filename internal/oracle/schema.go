package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Schemas use []any for enums and required lists so they convert cleanly to structpb.

// TierSchema constrains tier classification answers.
var TierSchema = Schema{
	"type": "object",
	"properties": map[string]any{
		"tier":       map[string]any{"type": "string", "enum": []any{"CASUAL", "STANDARD", "CONSEQUENTIAL"}},
		"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"reasoning":  map[string]any{"type": "string"},
	},
	"required": []any{"tier", "confidence", "reasoning"},
}

// FieldSchema constrains field assessment answers.
var FieldSchema = Schema{
	"type": "object",
	"properties": map[string]any{
		"status":     map[string]any{"type": "string", "enum": []any{"SATISFIED", "AMBIGUOUS", "MISSING"}},
		"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"extracted":  map[string]any{"type": "string"},
		"reasoning":  map[string]any{"type": "string"},
	},
	"required": []any{"status", "confidence", "extracted"},
}

// ScreenSchema constrains dimension applicability answers.
var ScreenSchema = Schema{
	"type": "object",
	"properties": map[string]any{
		"applicable": map[string]any{"type": "boolean"},
		"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"reasoning":  map[string]any{"type": "string"},
	},
	"required": []any{"applicable", "confidence"},
}

// SuggestionSchema constrains elicitation suggestions.
var SuggestionSchema = Schema{
	"type": "object",
	"properties": map[string]any{
		"suggestion": map[string]any{"type": "string"},
		"example":    map[string]any{"type": "string"},
	},
	"required": []any{"suggestion"},
}

// schemaInstruction is appended to prompts for backends without native schema support.
func schemaInstruction(schema Schema) string {
	data, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return "\n\nRespond ONLY with valid JSON matching this schema, no other text:\n" + string(data)
}

// parseObject decodes a model reply into a JSON object, tolerating markdown fences.
func parseObject(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if i := strings.Index(content, "\n"); i >= 0 {
			content = content[i+1:]
		} else {
			content = ""
		}
		if j := strings.LastIndex(content, "```"); j >= 0 {
			content = content[:j]
		}
		content = strings.TrimSpace(content)
	}
	if content == "" {
		return nil, fmt.Errorf("empty model response")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return out, nil
}
