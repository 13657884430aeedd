package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
	"github.com/target/sessionauth/internal/ports"
)

func TestMockAuthProvider_Begin_Defaults(t *testing.T) {
	provider := NewMockAuthProvider()
	ctx := context.Background()

	input := ports.BeginInput{RedirectURL: "http://localhost:8080/callback"}
	authURL, state, nonce, err := provider.Begin(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", authURL)
	assert.Equal(t, "state-1", state)
	assert.Equal(t, "nonce-1", nonce)

	_, state2, nonce2, err := provider.Begin(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "state-2", state2)
	assert.Equal(t, "nonce-2", nonce2)
}

func TestMockAuthProvider_Exchange_Default(t *testing.T) {
	provider := NewMockAuthProvider()
	ident, err := provider.Exchange(context.Background(), ports.ExchangeInput{Code: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "mock", ident.Provider)
	assert.Equal(t, "mock-user-1", ident.Profile.ID)
	assert.Equal(t, "mock-access-abc", ident.Token.AccessToken)
	assert.True(t, ident.Token.Expiry.After(time.Now()))
}

func TestMemorySessionStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ports.ErrSessionNotFound)

	sess := domainauth.Session{ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	require.ErrorIs(t, err, ports.ErrSessionNotFound)

	require.Error(t, store.Save(ctx, domainauth.Session{}))
}

func TestMemorySessionStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	now := time.Now()
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "old", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "new", ExpiresAt: now.Add(time.Hour)}))

	n, err := store.DeleteExpired(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryUserStore_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryUserStore()
	email := "a@example.com"

	u, err := store.CreateWithAccount(ctx, ports.NewUser{Email: &email, Role: domainauth.RoleUser},
		domainauth.Account{Provider: "github", ProviderAccountID: "42", Type: domainauth.AccountTypeOAuth})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)

	byAcct, err := store.GetByAccount(ctx, "github", "42")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byAcct.ID)

	byEmail, err := store.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = store.GetByAccount(ctx, "github", "43")
	require.ErrorIs(t, err, ports.ErrUserNotFound)

	_, err = store.CreateWithAccount(ctx, ports.NewUser{Email: &email},
		domainauth.Account{Provider: "github", ProviderAccountID: "99"})
	require.Error(t, err)
}

func TestAdminEmailMapper(t *testing.T) {
	m := AdminEmailMapper{AdminEmail: "admin@example.com"}
	admin := "admin@example.com"
	other := "other@example.com"
	assert.Equal(t, domainauth.RoleAdmin, m.Map(&admin))
	assert.Equal(t, domainauth.RoleUser, m.Map(&other))
	assert.Equal(t, domainauth.RoleUser, m.Map(nil))
}
