// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/draft-protocol/draftd/internal/domain"
)

// ErrInvalidTier is returned when a session would be stored with a tier outside the fixed enum.
var ErrInvalidTier = errors.New("invalid tier")

// SessionUpdate is a partial update. Nil fields are left unchanged.
type SessionUpdate struct {
	Tier           *domain.Tier
	Dimensions     domain.DimensionMap
	Assumptions    *[]domain.Assumption
	GatePassed     *bool
	GateOverridden *bool
	ReviewDone     *bool
	ReviewNotes    *string
}

// AuditRecord is an audit entry to be appended.
type AuditRecord struct {
	Tool   string
	Action string
	Detail string
}

// Repository defines the interface for persisting governance sessions and their audit trail.
type Repository interface {
	// CreateSession stores a new open session and returns its generated ID.
	CreateSession(ctx context.Context, tier domain.Tier, intent string) (string, error)

	// GetSession retrieves a session by ID. Returns nil, nil when absent.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// GetActiveSession returns the most recently created open session, or nil.
	GetActiveSession(ctx context.Context) (*domain.Session, error)

	// UpdateSession applies a partial update and bumps updated_at.
	UpdateSession(ctx context.Context, id string, upd SessionUpdate) error

	// ApplyWithAudit applies a partial update and appends an audit entry in one transaction.
	ApplyWithAudit(ctx context.Context, id string, upd SessionUpdate, rec AuditRecord) error

	// CloseSession marks the session closed. It is never deleted.
	CloseSession(ctx context.Context, id string) error

	// AppendAudit writes an audit trail entry.
	AppendAudit(ctx context.Context, id string, rec AuditRecord) error

	// ListAudit returns a session's audit trail in write order.
	ListAudit(ctx context.Context, id string) ([]domain.AuditEntry, error)

	// ListIdleSessions returns open sessions not updated within ttl.
	ListIdleSessions(ctx context.Context, ttl time.Duration) ([]*domain.Session, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
