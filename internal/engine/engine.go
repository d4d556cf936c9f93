// Package engine implements the DRAFT intake governance state machine: tier
// classification, dimension mapping, elicitation, confirmation, assumptions
// and the confirmation gate.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/oracle"
	"github.com/draft-protocol/draftd/internal/store"
	"golang.org/x/sync/singleflight"
)

// Oracle is the scoring backend the engine consults. Implementations must
// return nil instead of failing.
type Oracle interface {
	CanChat() bool
	CanEmbed() bool
	Chat(ctx context.Context, prompt string, schema oracle.Schema, timeout time.Duration) map[string]any
	Embed(ctx context.Context, text string) []float32
}

// Per-call oracle timeouts.
const (
	tierTimeout       = 20 * time.Second
	fieldTimeout      = 20 * time.Second
	screenTimeout     = 15 * time.Second
	suggestionTimeout = 15 * time.Second
)

// Prompt input limits, in runes.
const (
	tierPromptLimit       = 500
	screenPromptLimit     = 800
	fieldPromptLimit      = 1200
	suggestionPromptLimit = 300
	contextEmbedLimit     = 2000
	auditDetailLimit      = 200
)

// Options configures an Engine.
type Options struct {
	// ExtraConsequential and ExtraStandard extend the built-in trigger lists.
	ExtraConsequential []string
	ExtraStandard      []string
	Logger             *slog.Logger
}

// Engine runs governance operations against a Repository.
type Engine struct {
	repo   store.Repository
	oracle Oracle
	logger *slog.Logger

	consequential []string
	standard      []string

	embedGroup      singleflight.Group
	embedMu         sync.RWMutex
	fieldEmbeddings map[string][]float32
}

// New creates an Engine. A nil oracle means pure heuristic mode.
func New(repo store.Repository, o Oracle, opts Options) *Engine {
	if o == nil {
		o = noOracle{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:            repo,
		oracle:          o,
		logger:          logger,
		consequential:   appendTriggers(consequentialTriggers, opts.ExtraConsequential),
		standard:        appendTriggers(standardTriggers, opts.ExtraStandard),
		fieldEmbeddings: make(map[string][]float32),
	}
}

// load fetches a session for reading. Closed sessions are returned.
func (e *Engine) load(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := e.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, notFound("session %s not found", id)
	}
	return sess, nil
}

// loadOpen fetches a session that is about to be mutated.
func (e *Engine) loadOpen(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Closed() {
		return nil, closed(id)
	}
	return sess, nil
}

// apply writes a session update and its audit entry. Loads happen before the
// write, so a session closed in between surfaces as ErrClosed.
func (e *Engine) apply(ctx context.Context, id string, upd store.SessionUpdate, rec store.AuditRecord) error {
	err := e.repo.ApplyWithAudit(ctx, id, upd, rec)
	if errors.Is(err, store.ErrSessionNotWritable) {
		return closed(id)
	}
	return err
}

func (e *Engine) audit(ctx context.Context, id, tool, action, detail string) {
	if err := e.repo.AppendAudit(ctx, id, store.AuditRecord{Tool: tool, Action: action, Detail: detail}); err != nil {
		e.logger.Error("Failed to write audit entry", "session_id", id, "tool", tool, "action", action, "error", err)
	}
}

// ActiveSessionID returns the id of the most recent open session, or "".
func (e *Engine) ActiveSessionID(ctx context.Context) (string, error) {
	sess, err := e.repo.GetActiveSession(ctx)
	if err != nil {
		return "", fmt.Errorf("get active session: %w", err)
	}
	if sess == nil {
		return "", nil
	}
	return sess.ID, nil
}

// Capabilities reports which oracle capabilities are configured.
func (e *Engine) Capabilities() (chat, embed bool) {
	return e.oracle.CanChat(), e.oracle.CanEmbed()
}

type noOracle struct{}

func (noOracle) CanChat() bool  { return false }
func (noOracle) CanEmbed() bool { return false }
func (noOracle) Chat(context.Context, string, oracle.Schema, time.Duration) map[string]any {
	return nil
}
func (noOracle) Embed(context.Context, string) []float32 { return nil }

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func ptr[T any](v T) *T {
	return &v
}

// number reads a JSON number from an oracle reply.
func number(m map[string]any, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return fallback
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
