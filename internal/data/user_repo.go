package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/sessionauth/internal/data/pgxutil"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
	apperrors "github.com/target/sessionauth/internal/errors"
	"github.com/target/sessionauth/internal/ports"
)

const userColumns = `id, name, email, email_verified, image, role, created_at, updated_at`

const accountColumns = `id, user_id, type, provider, provider_account_id, access_token, refresh_token,
	token_type, scope, id_token, expires_at, created_at`

var _ ports.UserStore = (*UserRepo)(nil)

// UserRepo persists users and their linked provider accounts in Postgres.
type UserRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewUserRepo creates a new UserRepo with real time provider.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewUserRepoWithTimeProvider creates a new UserRepo with a custom time provider (useful for tests).
func NewUserRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *UserRepo {
	return &UserRepo{DB: db, timeProvider: tp}
}

// CreateWithAccount inserts the user and links the provider account in one transaction.
// The role is written here and nowhere else.
func (r *UserRepo) CreateWithAccount(
	ctx context.Context,
	nu ports.NewUser,
	acct domainauth.Account,
) (domainauth.User, error) {
	if strings.TrimSpace(acct.Provider) == "" || strings.TrimSpace(acct.ProviderAccountID) == "" {
		return domainauth.User{}, apperrors.Validationf("provider and provider account id are required")
	}
	role := nu.Role
	if role == "" {
		role = domainauth.RoleUser
	}
	if _, err := domainauth.ParseRole(string(role)); err != nil {
		return domainauth.User{}, apperrors.ValidationField("role", err.Error())
	}

	now := r.timeProvider.Now().UTC()
	var out domainauth.User
	err := pgxutil.WithPgxTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var txErr error
		out, txErr = pgxutil.CollectOne[domainauth.User](ctx, tx, `
			INSERT INTO users (id, name, email, image, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			RETURNING `+userColumns,
			uuid.NewString(), nu.Name, nu.Email, nu.Image, role, now,
		)
		if txErr != nil {
			return txErr
		}

		_, txErr = tx.Exec(ctx, `
			INSERT INTO accounts (id, user_id, type, provider, provider_account_id, access_token,
				refresh_token, token_type, scope, id_token, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			uuid.NewString(), out.ID, acct.Type, acct.Provider, acct.ProviderAccountID,
			acct.AccessToken, acct.RefreshToken, acct.TokenType, acct.Scope, acct.IDToken,
			acct.ExpiresAt, now,
		)
		return txErr
	})
	if err != nil {
		return domainauth.User{}, fmt.Errorf("create user with account: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (domainauth.User, error) {
	if uuid.Validate(id) != nil {
		return domainauth.User{}, ports.ErrUserNotFound
	}
	return r.getOne(ctx, "get user by id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (domainauth.User, error) {
	return r.getOne(ctx, "get user by email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetByAccount retrieves the user linked to a provider account.
func (r *UserRepo) GetByAccount(ctx context.Context, provider, providerAccountID string) (domainauth.User, error) {
	return r.getOne(ctx, "get user by account", `
		SELECT u.id, u.name, u.email, u.email_verified, u.image, u.role, u.created_at, u.updated_at
		FROM users u
		JOIN accounts a ON a.user_id = u.id
		WHERE a.provider = $1 AND a.provider_account_id = $2`,
		provider, providerAccountID,
	)
}

func (r *UserRepo) getOne(ctx context.Context, op, query string, args ...any) (domainauth.User, error) {
	var out domainauth.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var qErr error
		out, qErr = pgxutil.CollectOne[domainauth.User](ctx, conn, query, args...)
		return qErr
	})
	if err != nil {
		return domainauth.User{}, notFoundOr(err, ports.ErrUserNotFound, op)
	}
	return out, nil
}

// List retrieves users ordered by creation time with pagination.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]domainauth.User, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var out []domainauth.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var qErr error
		out, qErr = pgxutil.CollectAll[domainauth.User](ctx, conn,
			`SELECT `+userColumns+` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
		return qErr
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// ListAccounts returns the provider accounts linked to userID.
func (r *UserRepo) ListAccounts(ctx context.Context, userID string) ([]domainauth.Account, error) {
	var out []domainauth.Account
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var qErr error
		out, qErr = pgxutil.CollectAll[domainauth.Account](ctx, conn,
			`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at`, userID)
		return qErr
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", apperrors.MapDBError(err))
	}
	return out, nil
}
