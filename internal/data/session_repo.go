package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/sessionauth/internal/data/pgxutil"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
	apperrors "github.com/target/sessionauth/internal/errors"
	"github.com/target/sessionauth/internal/ports"
)

const sessionColumns = `id, user_id, expires_at, created_at`

var (
	_ ports.SessionStore  = (*SessionRepo)(nil)
	_ ports.SessionPurger = (*SessionRepo)(nil)
)

// SessionRepo stores database-strategy sessions in Postgres.
type SessionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewSessionRepo creates a new SessionRepo with real time provider.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewSessionRepoWithTimeProvider creates a new SessionRepo with a custom time provider (useful for tests).
func NewSessionRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *SessionRepo {
	return &SessionRepo{DB: db, timeProvider: tp}
}

// Save inserts the session, or updates its expiry when the token already exists.
func (r *SessionRepo) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.timeProvider.Now()
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, `
			INSERT INTO sessions (id, user_id, expires_at, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
			sess.ID, sess.UserID, sess.ExpiresAt.UTC(), createdAt.UTC(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("save session: %w", apperrors.MapDBError(err))
	}
	return nil
}

// Get retrieves a session by token. Expiry is checked by the caller.
func (r *SessionRepo) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	var out domainauth.Session
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var qErr error
		out, qErr = pgxutil.CollectOne[domainauth.Session](ctx, conn,
			`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
		return qErr
	})
	if err != nil {
		return domainauth.Session{}, notFoundOr(err, ports.ErrSessionNotFound, "get session")
	}
	return out, nil
}

// Delete removes a session; unknown tokens are ignored.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := r.exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired deletes up to batchSize sessions that expired before the cutoff.
func (r *SessionRepo) DeleteExpired(ctx context.Context, before time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	n, err := r.exec(ctx, `
		DELETE FROM sessions
		WHERE id IN (
			SELECT id FROM sessions
			WHERE expires_at < $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, before.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}

// DeleteByUser revokes every session belonging to userID.
func (r *SessionRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	n, err := r.exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return n, nil
}

// ListByUser returns the sessions of userID, newest first.
func (r *SessionRepo) ListByUser(ctx context.Context, userID string) ([]domainauth.Session, error) {
	var out []domainauth.Session
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var qErr error
		out, qErr = pgxutil.CollectAll[domainauth.Session](ctx, conn,
			`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
		return qErr
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

func (r *SessionRepo) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, execErr := conn.Exec(ctx, query, args...)
		if execErr != nil {
			return execErr
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return affected, nil
}
