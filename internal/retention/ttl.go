// Package retention closes governance sessions that have sat idle past a TTL.
// Closing is logical; sessions and their audit trail are never deleted.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/engine"
)

// DefaultInterval is how often the worker sweeps.
const DefaultInterval = 5 * time.Minute

// Expirer is the engine surface the worker needs.
type Expirer interface {
	IdleSessions(ctx context.Context, ttl time.Duration) ([]*domain.Session, error)
	ExpireSession(ctx context.Context, id string, idle time.Duration) error
}

// CloseCallback is called after the worker closes a session.
type CloseCallback func(sessionID string)

// Worker periodically closes idle sessions.
type Worker struct {
	eng      Expirer
	ttl      time.Duration
	interval time.Duration
	onClose  CloseCallback
	logger   *slog.Logger
	now      func() time.Time
}

// NewWorker creates a worker. A zero interval uses DefaultInterval, or ttl when that is shorter.
func NewWorker(eng Expirer, ttl, interval time.Duration, onClose CloseCallback, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
		if ttl > 0 && ttl < interval {
			interval = ttl
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{eng: eng, ttl: ttl, interval: interval, onClose: onClose, logger: logger, now: time.Now}
}

// Start runs the sweep loop in a goroutine until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		w.logger.Info("Retention worker started", "interval", w.interval, "ttl", w.ttl)

		for {
			select {
			case <-ticker.C:
				w.Sweep(ctx)
			case <-ctx.Done():
				w.logger.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep closes every session idle past the TTL and returns how many it closed.
func (w *Worker) Sweep(ctx context.Context) int {
	idle, err := w.eng.IdleSessions(ctx, w.ttl)
	if err != nil {
		w.logger.Error("Retention worker failed to list idle sessions", "error", err)
		return 0
	}
	if len(idle) == 0 {
		return 0
	}

	w.logger.Info("Retention worker found idle sessions", "count", len(idle))

	closed := 0
	for _, sess := range idle {
		err := w.eng.ExpireSession(ctx, sess.ID, w.now().Sub(sess.UpdatedAt))
		switch {
		case err == nil:
			closed++
			if w.onClose != nil {
				w.onClose(sess.ID)
			}
		case errors.Is(err, engine.ErrClosed):
			// Closed by a client between listing and expiry.
		default:
			w.logger.Warn("Retention worker failed to close session", "error", err, "session_id", sess.ID)
		}
	}

	w.logger.Info("Retention sweep completed", "closed", closed)
	return closed
}
