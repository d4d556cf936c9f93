package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrSessionNotWritable is returned when an update targets a missing or closed session.
var ErrSessionNotWritable = errors.New("session not found or closed")

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
	// writeMu serializes writers to avoid SQLITE_BUSY under WAL.
	writeMu sync.Mutex
	now     func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if inMemory {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		tier TEXT NOT NULL DEFAULT 'CASUAL' CHECK (tier IN ('CASUAL', 'STANDARD', 'CONSEQUENTIAL')),
		intent TEXT,
		dimensions TEXT NOT NULL DEFAULT '{}',
		assumptions TEXT NOT NULL DEFAULT '[]',
		gate_passed INTEGER NOT NULL DEFAULT 0,
		gate_overridden INTEGER NOT NULL DEFAULT 0,
		review_done INTEGER NOT NULL DEFAULT 0,
		review_notes TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		closed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions(created_at) WHERE closed_at IS NULL;

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT REFERENCES sessions(id),
		tool_name TEXT NOT NULL,
		action TEXT NOT NULL,
		detail TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log(session_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession stores a new open session.
func (s *SQLiteStore) CreateSession(ctx context.Context, tier domain.Tier, intent string) (string, error) {
	if !tier.Valid() {
		return "", fmt.Errorf("%w %q: must be one of CASUAL, CONSEQUENTIAL, STANDARD", ErrInvalidTier, tier)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	now := s.now().UnixNano()

	err := s.write(ctx, "create session", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (id, tier, intent, dimensions, assumptions, created_at, updated_at)
			VALUES (?, ?, ?, '{}', '[]', ?, ?)`,
			id, string(tier), intent, now, now,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

const sessionColumns = `id, tier, intent, dimensions, assumptions, gate_passed, gate_overridden,
	review_done, review_notes, created_at, updated_at, closed_at`

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

// GetActiveSession returns the most recently created open session.
func (s *SQLiteStore) GetActiveSession(ctx context.Context) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+`
		FROM sessions WHERE closed_at IS NULL
		ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan active session: %w", err)
	}
	return sess, nil
}

// UpdateSession applies a partial update to an open session.
func (s *SQLiteStore) UpdateSession(ctx context.Context, id string, upd SessionUpdate) error {
	return s.ApplyWithAudit(ctx, id, upd, AuditRecord{})
}

// ApplyWithAudit applies upd and, when rec has a tool name, appends rec in the same transaction.
func (s *SQLiteStore) ApplyWithAudit(ctx context.Context, id string, upd SessionUpdate, rec AuditRecord) error {
	sets, args, err := buildUpdate(upd)
	if err != nil {
		return err
	}
	now := s.now().UnixNano()
	sets = append(sets, "updated_at = ?")
	args = append(args, now, id)

	query := `UPDATE sessions SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND closed_at IS NULL`

	return s.write(ctx, "update session", func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			result, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("update session: %w", err)
			}
			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("get rows affected: %w", err)
			}
			if rows == 0 {
				return fmt.Errorf("update session %s: %w", id, ErrSessionNotWritable)
			}
			if rec.Tool == "" {
				return nil
			}
			return insertAudit(ctx, tx, id, rec, now)
		})
	})
}

// CloseSession marks an open session closed.
func (s *SQLiteStore) CloseSession(ctx context.Context, id string) error {
	now := s.now().UnixNano()
	return s.write(ctx, "close session", func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET closed_at = ?, updated_at = ? WHERE id = ? AND closed_at IS NULL`,
			now, now, id)
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			slog.Warn("CloseSession affected 0 rows", "session_id", id)
			return fmt.Errorf("close session %s: %w", id, ErrSessionNotWritable)
		}
		return nil
	})
}

// AppendAudit writes an audit trail entry.
func (s *SQLiteStore) AppendAudit(ctx context.Context, id string, rec AuditRecord) error {
	now := s.now().UnixNano()
	return s.write(ctx, "append audit", func() error {
		return insertAudit(ctx, s.db, id, rec, now)
	})
}

// ListAudit returns the audit trail of a session in write order.
func (s *SQLiteStore) ListAudit(ctx context.Context, id string) ([]domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, tool_name, action, detail, created_at
		FROM audit_log WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close audit rows", "error", closeErr)
		}
	}()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detail sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Tool, &e.Action, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Detail = detail.String
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}

// ListIdleSessions returns open sessions whose last update is older than ttl.
func (s *SQLiteStore) ListIdleSessions(ctx context.Context, ttl time.Duration) ([]*domain.Session, error) {
	threshold := s.now().Add(-ttl).UnixNano()
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+`
		FROM sessions WHERE closed_at IS NULL AND updated_at < ? ORDER BY updated_at`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query idle sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close idle session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idle session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var tier string
	var intent, reviewNotes sql.NullString
	var dimsJSON, assumptionsJSON string
	var createdAt, updatedAt int64
	var closedAt sql.NullInt64

	if err := row.Scan(
		&sess.ID, &tier, &intent, &dimsJSON, &assumptionsJSON,
		&sess.GatePassed, &sess.GateOverridden, &sess.ReviewDone, &reviewNotes,
		&createdAt, &updatedAt, &closedAt,
	); err != nil {
		return nil, err
	}

	sess.Tier = domain.Tier(tier)
	sess.Intent = intent.String
	sess.ReviewNotes = reviewNotes.String
	sess.CreatedAt = time.Unix(0, createdAt).UTC()
	sess.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if closedAt.Valid {
		ts := time.Unix(0, closedAt.Int64).UTC()
		sess.ClosedAt = &ts
	}

	if err := json.Unmarshal([]byte(dimsJSON), &sess.Dimensions); err != nil {
		return nil, fmt.Errorf("decode dimensions: %w", err)
	}
	if sess.Dimensions == nil {
		sess.Dimensions = domain.DimensionMap{}
	}
	if err := json.Unmarshal([]byte(assumptionsJSON), &sess.Assumptions); err != nil {
		return nil, fmt.Errorf("decode assumptions: %w", err)
	}
	if sess.Assumptions == nil {
		sess.Assumptions = []domain.Assumption{}
	}
	return &sess, nil
}

func buildUpdate(upd SessionUpdate) ([]string, []any, error) {
	var sets []string
	var args []any

	if upd.Tier != nil {
		if !upd.Tier.Valid() {
			return nil, nil, fmt.Errorf("%w %q: must be one of CASUAL, CONSEQUENTIAL, STANDARD", ErrInvalidTier, *upd.Tier)
		}
		sets = append(sets, "tier = ?")
		args = append(args, string(*upd.Tier))
	}
	if upd.Dimensions != nil {
		data, err := json.Marshal(upd.Dimensions)
		if err != nil {
			return nil, nil, fmt.Errorf("encode dimensions: %w", err)
		}
		sets = append(sets, "dimensions = ?")
		args = append(args, string(data))
	}
	if upd.Assumptions != nil {
		list := *upd.Assumptions
		if list == nil {
			list = []domain.Assumption{}
		}
		data, err := json.Marshal(list)
		if err != nil {
			return nil, nil, fmt.Errorf("encode assumptions: %w", err)
		}
		sets = append(sets, "assumptions = ?")
		args = append(args, string(data))
	}
	if upd.GatePassed != nil {
		sets = append(sets, "gate_passed = ?")
		args = append(args, *upd.GatePassed)
	}
	if upd.GateOverridden != nil {
		sets = append(sets, "gate_overridden = ?")
		args = append(args, *upd.GateOverridden)
	}
	if upd.ReviewDone != nil {
		sets = append(sets, "review_done = ?")
		args = append(args, *upd.ReviewDone)
	}
	if upd.ReviewNotes != nil {
		sets = append(sets, "review_notes = ?")
		args = append(args, *upd.ReviewNotes)
	}
	return sets, args, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, db execer, id string, rec AuditRecord, at int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_log (session_id, tool_name, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, rec.Tool, rec.Action, rec.Detail, at,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) write(ctx context.Context, op string, fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return shared.RetryOnConflict(ctx, s.retry, op, fn)
}

var _ Repository = (*SQLiteStore)(nil)
