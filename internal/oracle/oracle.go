// Package oracle is the optional scoring backend used for tier classification,
// dimension screening, field assessment and suggestions.
//
// Every call through Client degrades to nil on failure. Callers always keep a
// heuristic path that needs no oracle at all.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/draft-protocol/draftd/internal/config"
)

// ErrUnsupported is returned by backends that lack a capability.
var ErrUnsupported = errors.New("operation not supported by backend")

// Schema is a JSON schema describing the object a Chat call must return.
type Schema map[string]any

// Backend is one oracle variant.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// Chat sends prompt and returns the JSON object the model produced.
	Chat(ctx context.Context, prompt string, schema Schema) (map[string]any, error)
	// Embed returns a vector embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client guards a Backend. A nil *Client is valid and has no capabilities.
type Client struct {
	backend  Backend
	canChat  bool
	canEmbed bool
	timeout  time.Duration
	logger   *slog.Logger
	closer   func() error
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	Chat    bool
	Embed   bool
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewClient wraps backend. Capabilities not enabled in opts are never called.
func NewClient(backend Backend, opts ClientOptions) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	c := &Client{
		backend:  backend,
		canChat:  backend != nil && opts.Chat,
		canEmbed: backend != nil && opts.Embed,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
	if cl, ok := backend.(interface{ Close() error }); ok {
		c.closer = cl.Close
	}
	return c
}

// New builds the client selected by cfg. Provider "none" yields a client with no capabilities.
func New(cfg config.OracleConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := ClientOptions{
		Chat:    cfg.Model != "",
		Embed:   cfg.EmbedModel != "",
		Timeout: cfg.Timeout,
		Logger:  logger,
	}

	var backend Backend
	switch cfg.ResolveProvider() {
	case config.ProviderNone:
		return NewClient(nil, opts), nil
	case config.ProviderOllama:
		backend = NewOllama(cfg.APIBase, cfg.Model, cfg.EmbedModel, cfg.Timeout)
	case config.ProviderOpenAI:
		backend = NewOpenAI(cfg.APIBase, cfg.APIKey, cfg.Model, cfg.EmbedModel, cfg.Timeout)
	case config.ProviderAnthropic:
		backend = NewAnthropic(cfg.APIBase, cfg.APIKey, cfg.Model, cfg.Timeout)
		opts.Embed = false
	case config.ProviderGemini:
		g, err := NewGemini(context.Background(), cfg.APIKey, cfg.Model, cfg.EmbedModel)
		if err != nil {
			return nil, err
		}
		backend = g
	case config.ProviderGRPC:
		g, err := NewGRPC(cfg.GRPCAddr, cfg.Model, cfg.EmbedModel, logger)
		if err != nil {
			return nil, err
		}
		backend = g
		// The remote service picks its own models when none are configured.
		opts.Chat, opts.Embed = true, true
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}

	logger.Info("Oracle configured", "provider", backend.Name(), "chat", opts.Chat, "embed", opts.Embed)
	return NewClient(backend, opts), nil
}

// CanChat reports whether structured chat calls may be attempted.
func (c *Client) CanChat() bool {
	return c != nil && c.canChat
}

// CanEmbed reports whether embedding calls may be attempted.
func (c *Client) CanEmbed() bool {
	return c != nil && c.canEmbed
}

// Name returns the backend name, or "none".
func (c *Client) Name() string {
	if c == nil || c.backend == nil {
		return "none"
	}
	return c.backend.Name()
}

// Chat runs a structured call bounded by timeout (capped by the client timeout).
// It returns nil on any failure.
func (c *Client) Chat(ctx context.Context, prompt string, schema Schema, timeout time.Duration) map[string]any {
	if !c.CanChat() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.bound(timeout))
	defer cancel()

	out, err := c.backend.Chat(ctx, prompt, schema)
	if err != nil {
		c.logger.Warn("Oracle chat failed, falling back", "provider", c.backend.Name(), "error", err)
		return nil
	}
	return out
}

// Embed returns an embedding for text, or nil on any failure.
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	if !c.CanEmbed() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	vec, err := c.backend.Embed(ctx, text)
	if err != nil {
		c.logger.Warn("Oracle embed failed, falling back", "provider", c.backend.Name(), "error", err)
		return nil
	}
	return vec
}

// Close releases backend resources.
func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) bound(timeout time.Duration) time.Duration {
	if timeout <= 0 || timeout > c.timeout {
		return c.timeout
	}
	return timeout
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths or zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
