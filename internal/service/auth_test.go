package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
	apperrors "github.com/target/sessionauth/internal/errors"
	"github.com/target/sessionauth/internal/mocks"
	authmocks "github.com/target/sessionauth/internal/mocks/auth"
	"github.com/target/sessionauth/internal/observability/statsd"
	"github.com/target/sessionauth/internal/ports"
	"go.uber.org/mock/gomock"
)

type authFixture struct {
	svc      *AuthService
	provider *authmocks.MockAuthProvider
	users    *authmocks.MemoryUserStore
	sessions *authmocks.MemorySessionStore
	metrics  *statsd.Recorder
	now      time.Time
}

func (f *authFixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newAuthFixture(t *testing.T, mutate ...func(*AuthServiceOptions)) *authFixture {
	t.Helper()
	f := &authFixture{
		provider: authmocks.NewMockAuthProvider(),
		users:    authmocks.NewMemoryUserStore(),
		sessions: authmocks.NewMemorySessionStore(),
		metrics:  &statsd.Recorder{},
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.users.Now = func() time.Time { return f.now }
	opts := AuthServiceOptions{
		Provider: f.provider,
		Users:    f.users,
		Sessions: f.sessions,
		Now:      func() time.Time { return f.now },
		Metrics:  f.metrics,
	}
	for _, m := range mutate {
		m(&opts)
	}
	svc, err := NewAuthService(opts)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func identityWith(id string, email *string, role domainauth.Role) domainauth.Identity {
	name := "Octo Cat"
	return domainauth.Identity{
		Provider: "github",
		Type:     domainauth.AccountTypeOAuth,
		Profile: domainauth.Profile{
			ID:    id,
			Name:  &name,
			Email: email,
			Image: strPtr("https://avatars.example.com/1"),
			Role:  role,
		},
		Token: domainauth.Token{AccessToken: "gho_x"},
	}
}

func strPtr(s string) *string { return &s }

func login(t *testing.T, f *authFixture) *CompleteLoginResult {
	t.Helper()
	res, err := f.svc.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	require.NoError(t, err)
	return res
}

func TestNewAuthService_Validation(t *testing.T) {
	_, err := NewAuthService(AuthServiceOptions{})
	require.Error(t, err)
	_, err = NewAuthService(AuthServiceOptions{Provider: authmocks.NewMockAuthProvider()})
	require.Error(t, err)
	_, err = NewAuthService(AuthServiceOptions{
		Provider: authmocks.NewMockAuthProvider(),
		Users:    authmocks.NewMemoryUserStore(),
	})
	require.Error(t, err)
}

func TestNewAuthService_Defaults(t *testing.T) {
	f := newAuthFixture(t)
	assert.Equal(t, DefaultSessionMaxAge, f.svc.MaxAge())
	assert.Equal(t, DefaultSessionUpdateAge, f.svc.updateAge)
	assert.Equal(t, "mock", f.svc.ProviderID())

	f = newAuthFixture(t, func(o *AuthServiceOptions) {
		o.MaxAge = time.Hour
		o.UpdateAge = 3 * time.Hour
	})
	assert.Equal(t, time.Hour, f.svc.updateAge)
}

func TestAuthService_BeginLogin(t *testing.T) {
	f := newAuthFixture(t)

	res, err := f.svc.BeginLogin(context.Background(), BeginLoginInput{RedirectURL: "http://localhost:8080/auth/callback"})
	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", res.AuthURL)
	assert.Equal(t, "state-1", res.State)
	assert.Equal(t, "nonce-1", res.Nonce)

	_, err = f.svc.BeginLogin(context.Background(), BeginLoginInput{})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestAuthService_BeginLogin_ProviderError(t *testing.T) {
	f := newAuthFixture(t)
	f.provider.BeginFunc = func(context.Context, ports.BeginInput) (string, string, string, error) {
		return "", "", "", errors.New("idp unavailable")
	}

	_, err := f.svc.BeginLogin(context.Background(), BeginLoginInput{RedirectURL: "http://x/cb"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idp unavailable")
}

func TestAuthService_CompleteLogin_InputValidation(t *testing.T) {
	f := newAuthFixture(t)
	cases := map[string]CompleteLoginInput{
		"code":  {State: "s", Nonce: "n"},
		"state": {Code: "c", Nonce: "n"},
		"nonce": {Code: "c", State: "s"},
	}
	for field, in := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := f.svc.CompleteLogin(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, field, apperrors.GetField(err))
		})
	}
}

func TestAuthService_CompleteLogin_CreatesUserAccountAndSession(t *testing.T) {
	f := newAuthFixture(t)
	f.provider.DefaultUser = identityWith("583231", strPtr("octo@example.com"), domainauth.RoleAdmin)

	res := login(t, f)

	assert.True(t, res.IsNewUser)
	assert.Equal(t, domainauth.RoleAdmin, res.User.Role)
	assert.Equal(t, "octo@example.com", *res.User.Email)
	assert.Equal(t, "Octo Cat", *res.User.Name)
	assert.Equal(t, res.User.ID, res.Session.UserID)
	assert.NotEmpty(t, res.Session.ID)
	assert.True(t, res.Session.ExpiresAt.Equal(f.now.Add(DefaultSessionMaxAge)))

	accounts := f.users.Accounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "github", accounts[0].Provider)
	assert.Equal(t, "583231", accounts[0].ProviderAccountID)
	assert.Equal(t, res.User.ID, accounts[0].UserID)

	stored, err := f.sessions.Get(context.Background(), res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Session, stored)

	logins := f.metrics.Named("auth.login")
	require.Len(t, logins, 1)
	assert.Equal(t, "success", logins[0].Tags["result"])
	assert.Equal(t, "true", logins[0].Tags["new_user"])
}

func TestAuthService_CompleteLogin_ReturningAccountKeepsStoredRole(t *testing.T) {
	f := newAuthFixture(t)
	email := strPtr("boss@example.com")

	// First login happens before the address was configured as admin.
	f.provider.DefaultUser = identityWith("1", email, domainauth.RoleUser)
	first := login(t, f)

	// Later the same address maps to ADMIN; the stored role must win.
	f.provider.DefaultUser = identityWith("1", email, domainauth.RoleAdmin)
	second := login(t, f)

	assert.False(t, second.IsNewUser)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, domainauth.RoleUser, second.User.Role)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)
	assert.Len(t, f.users.Users(), 1)
}

func TestAuthService_CompleteLogin_EmailOwnedByOtherUser(t *testing.T) {
	f := newAuthFixture(t)
	email := strPtr("shared@example.com")

	f.provider.DefaultUser = identityWith("1", email, domainauth.RoleUser)
	login(t, f)

	other := identityWith("oidc-sub", email, domainauth.RoleUser)
	other.Provider = "oidc"
	f.provider.DefaultUser = other

	_, err := f.svc.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	require.ErrorIs(t, err, domainauth.ErrAccountNotLinked)
	assert.Len(t, f.users.Users(), 1)
	assert.Equal(t, 1, f.sessions.Len())

	logins := f.metrics.Named("auth.login")
	assert.Equal(t, "account_not_linked", logins[len(logins)-1].Tags["error_class"])
}

func TestAuthService_CompleteLogin_NoEmailAlwaysCreates(t *testing.T) {
	f := newAuthFixture(t)
	f.provider.DefaultUser = identityWith("1", nil, "")
	res := login(t, f)
	assert.Equal(t, domainauth.RoleUser, res.User.Role)
	assert.Nil(t, res.User.Email)

	f.provider.DefaultUser = identityWith("2", nil, domainauth.RoleUser)
	login(t, f)
	assert.Len(t, f.users.Users(), 2)
}

func TestAuthService_CompleteLogin_ProviderFailures(t *testing.T) {
	f := newAuthFixture(t)

	f.provider.ExchangeFunc = func(context.Context, ports.ExchangeInput) (domainauth.Identity, error) {
		return domainauth.Identity{}, domainauth.ErrMalformedProfile
	}
	_, err := f.svc.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	require.ErrorIs(t, err, domainauth.ErrMalformedProfile)

	f.provider.ExchangeFunc = func(context.Context, ports.ExchangeInput) (domainauth.Identity, error) {
		return domainauth.Identity{Provider: "github"}, nil
	}
	_, err = f.svc.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	require.ErrorIs(t, err, domainauth.ErrMalformedProfile)

	assert.Equal(t, 0, f.sessions.Len())
	assert.Empty(t, f.users.Users())
}

func TestAuthService_CompleteLogin_StoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockAuthProvider(ctrl)
	users := mocks.NewMockUserStore(ctrl)
	sessions := mocks.NewMockSessionStore(ctrl)

	provider.EXPECT().ID().Return("github").AnyTimes()
	svc, err := NewAuthService(AuthServiceOptions{Provider: provider, Users: users, Sessions: sessions})
	require.NoError(t, err)

	ident := identityWith("9", strPtr("a@example.com"), domainauth.RoleUser)
	provider.EXPECT().Exchange(gomock.Any(), ports.ExchangeInput{Code: "c", State: "s", Nonce: "n"}).Return(ident, nil).Times(2)

	// account lookup fails with something other than not-found
	users.EXPECT().GetByAccount(gomock.Any(), "github", "9").Return(domainauth.User{}, errors.New("conn reset"))
	_, err = svc.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup account")

	// session save fails after the user is found
	user := domainauth.User{ID: "u-9", Role: domainauth.RoleUser}
	users.EXPECT().GetByAccount(gomock.Any(), "github", "9").Return(user, nil)
	sessions.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	_, err = svc.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save session")
}

func TestAuthService_CompleteLogin_CreateUsesProfileAndAccount(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockAuthProvider(ctrl)
	users := mocks.NewMockUserStore(ctrl)
	sessions := mocks.NewMockSessionStore(ctrl)
	provider.EXPECT().ID().Return("github").AnyTimes()

	svc, err := NewAuthService(AuthServiceOptions{Provider: provider, Users: users, Sessions: sessions})
	require.NoError(t, err)

	ident := identityWith("42", strPtr("new@example.com"), domainauth.RoleAdmin)
	provider.EXPECT().Exchange(gomock.Any(), gomock.Any()).Return(ident, nil)
	users.EXPECT().GetByAccount(gomock.Any(), "github", "42").Return(domainauth.User{}, ports.ErrUserNotFound)
	users.EXPECT().GetByEmail(gomock.Any(), "new@example.com").Return(domainauth.User{}, ports.ErrUserNotFound)
	users.EXPECT().
		CreateWithAccount(gomock.Any(), ports.NewUser{
			Name:  ident.Profile.Name,
			Email: ident.Profile.Email,
			Image: ident.Profile.Image,
			Role:  domainauth.RoleAdmin,
		}, ident.Account()).
		Return(domainauth.User{ID: "u-42", Role: domainauth.RoleAdmin}, nil)
	sessions.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, s domainauth.Session) error {
		assert.Equal(t, "u-42", s.UserID)
		return nil
	})

	res, err := svc.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
}

func TestAuthService_GetSession_EnrichedView(t *testing.T) {
	f := newAuthFixture(t)
	f.provider.DefaultUser = identityWith("7", strPtr("octo@example.com"), domainauth.RoleAdmin)
	res := login(t, f)

	view, err := f.svc.GetSession(context.Background(), res.Session.ID)
	require.NoError(t, err)

	assert.Equal(t, res.User.ID, view.User.ID)
	assert.Equal(t, domainauth.RoleAdmin, view.User.Role)
	assert.Equal(t, "Octo Cat", *view.User.Name)
	assert.Equal(t, "octo@example.com", *view.User.Email)
	assert.Equal(t, "https://avatars.example.com/1", *view.User.Image)
	assert.True(t, view.Expires.Equal(res.Session.ExpiresAt))
	assert.True(t, view.IsAdmin())
}

func TestAuthService_GetSession_CustomCallback(t *testing.T) {
	f := newAuthFixture(t, func(o *AuthServiceOptions) {
		o.Callback = func(base domainauth.ClientSession, _ domainauth.User) domainauth.ClientSession {
			return base
		}
	})
	res := login(t, f)

	view, err := f.svc.GetSession(context.Background(), res.Session.ID)
	require.NoError(t, err)
	assert.Empty(t, view.User.ID)
	assert.Empty(t, view.User.Role)
}

func TestAuthService_GetSession_UnknownAndEmpty(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.GetSession(context.Background(), "")
	require.ErrorIs(t, err, ports.ErrSessionNotFound)

	_, err = f.svc.GetSession(context.Background(), "nope")
	require.ErrorIs(t, err, ports.ErrSessionNotFound)
	assert.Equal(t, int64(2), f.metrics.Total("auth.session_lookup"))
}

func TestAuthService_GetSession_ExpiredIsDeleted(t *testing.T) {
	f := newAuthFixture(t)
	res := login(t, f)

	f.advance(DefaultSessionMaxAge)
	_, err := f.svc.GetSession(context.Background(), res.Session.ID)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 0, f.sessions.Len())

	_, err = f.svc.GetSession(context.Background(), res.Session.ID)
	require.ErrorIs(t, err, ports.ErrSessionNotFound)
}

func TestAuthService_GetSession_SlidingExpiry(t *testing.T) {
	f := newAuthFixture(t)
	res := login(t, f)
	original := res.Session.ExpiresAt

	// Within update age: expiry untouched.
	f.advance(23 * time.Hour)
	view, err := f.svc.GetSession(context.Background(), res.Session.ID)
	require.NoError(t, err)
	assert.True(t, view.Expires.Equal(original))

	// Past update age: expiry moves to now + max age and is persisted.
	f.advance(2 * time.Hour)
	view, err = f.svc.GetSession(context.Background(), res.Session.ID)
	require.NoError(t, err)
	want := f.now.Add(DefaultSessionMaxAge)
	assert.True(t, view.Expires.Equal(want))

	stored, err := f.sessions.Get(context.Background(), res.Session.ID)
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.Equal(want))

	lookups := f.metrics.Named("auth.session_lookup")
	require.Len(t, lookups, 2)
	assert.Equal(t, "false", lookups[0].Tags["extended"])
	assert.Equal(t, "true", lookups[1].Tags["extended"])
}

func TestAuthService_GetSession_OrphanedSession(t *testing.T) {
	f := newAuthFixture(t)
	require.NoError(t, f.sessions.Save(context.Background(), domainauth.Session{
		ID: "orphan", UserID: "gone", ExpiresAt: f.now.Add(time.Hour),
	}))

	_, err := f.svc.GetSession(context.Background(), "orphan")
	require.ErrorIs(t, err, ports.ErrSessionNotFound)
	assert.Equal(t, 0, f.sessions.Len())
}

// blockingStore holds Get until released so concurrent lookups overlap.
type blockingStore struct {
	*authmocks.MemorySessionStore
	gets    atomic.Int32
	release chan struct{}
}

func (b *blockingStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	b.gets.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
		return domainauth.Session{}, ctx.Err()
	}
	return b.MemorySessionStore.Get(ctx, id)
}

func TestAuthService_GetSession_CollapsesConcurrentLookups(t *testing.T) {
	store := &blockingStore{MemorySessionStore: authmocks.NewMemorySessionStore(), release: make(chan struct{})}
	f := newAuthFixture(t, func(o *AuthServiceOptions) { o.Sessions = store })
	res := login(t, f)

	const callers = 8
	var wg sync.WaitGroup
	views := make([]*domainauth.ClientSession, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			views[i], errs[i] = f.svc.GetSession(context.Background(), res.Session.ID)
		}(i)
	}

	require.Eventually(t, func() bool { return store.gets.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, res.User.ID, views[i].User.ID)
	}
	assert.Less(t, int(store.gets.Load()), callers)

	// callers get independent copies
	views[0].User.Role = "MUTATED"
	assert.NotEqual(t, views[0].User.Role, views[1].User.Role)
}

func TestAuthService_GetSession_CanceledCallerDoesNotFailOthers(t *testing.T) {
	store := &blockingStore{MemorySessionStore: authmocks.NewMemorySessionStore(), release: make(chan struct{})}
	f := newAuthFixture(t, func(o *AuthServiceOptions) { o.Sessions = store })
	res := login(t, f)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.GetSession(firstCtx, res.Session.ID)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return store.gets.Load() >= 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		view *domainauth.ClientSession
		err  error
	}
	second := make(chan result, 1)
	go func() {
		view, err := f.svc.GetSession(context.Background(), res.Session.ID)
		second <- result{view, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller did not return")
	}

	close(store.release)
	select {
	case got := <-second:
		require.NoError(t, got.err)
		assert.Equal(t, res.User.ID, got.view.User.ID)
	case <-time.After(time.Second):
		t.Fatal("waiting caller did not return")
	}
}

func TestAuthService_GetSession_OrphanedSessionDeleteFailureIsLogged(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockAuthProvider(ctrl)
	sessions := mocks.NewMockSessionStore(ctrl)
	provider.EXPECT().ID().Return("github").AnyTimes()

	var buf bytes.Buffer
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewAuthService(AuthServiceOptions{
		Provider: provider,
		Users:    authmocks.NewMemoryUserStore(),
		Sessions: sessions,
		Now:      func() time.Time { return now },
		Logger:   slog.New(slog.NewJSONHandler(&buf, nil)),
	})
	require.NoError(t, err)

	sessions.EXPECT().Get(gomock.Any(), "orphan").
		Return(domainauth.Session{ID: "orphan", UserID: "gone", ExpiresAt: now.Add(time.Hour)}, nil)
	sessions.EXPECT().Delete(gomock.Any(), "orphan").Return(errors.New("store down"))

	_, err = svc.GetSession(context.Background(), "orphan")
	require.ErrorIs(t, err, ports.ErrSessionNotFound)
	assert.Contains(t, buf.String(), "failed to delete orphaned session")
	assert.Contains(t, buf.String(), "store down")
}

func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture(t)
	res := login(t, f)

	require.NoError(t, f.svc.Logout(context.Background(), res.Session.ID))
	assert.Equal(t, 0, f.sessions.Len())
	require.NoError(t, f.svc.Logout(context.Background(), res.Session.ID))
	require.NoError(t, f.svc.Logout(context.Background(), ""))
}

func TestAuthService_Logout_StoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockAuthProvider(ctrl)
	sessions := mocks.NewMockSessionStore(ctrl)
	provider.EXPECT().ID().Return("github").AnyTimes()
	svc, err := NewAuthService(AuthServiceOptions{Provider: provider, Users: authmocks.NewMemoryUserStore(), Sessions: sessions})
	require.NoError(t, err)

	sessions.EXPECT().Delete(gomock.Any(), "tok").Return(errors.New("boom"))
	require.Error(t, svc.Logout(context.Background(), "tok"))
}

func TestAuthService_RevokeUserSessions(t *testing.T) {
	f := newAuthFixture(t)
	first := login(t, f)
	login(t, f)

	n, err := f.svc.RevokeUserSessions(context.Background(), first.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 0, f.sessions.Len())

	_, err = f.svc.RevokeUserSessions(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestAuthService_RevokeUserSessions_Unsupported(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newAuthFixture(t, func(o *AuthServiceOptions) { o.Sessions = mocks.NewMockSessionStore(ctrl) })

	_, err := f.svc.RevokeUserSessions(context.Background(), "u1")
	require.ErrorIs(t, err, ErrRevokeUnsupported)
}

func TestAuthService_ListUsers(t *testing.T) {
	f := newAuthFixture(t)
	for _, id := range []string{"1", "2", "3"} {
		f.provider.DefaultUser = identityWith(id, nil, domainauth.RoleUser)
		login(t, f)
		f.advance(time.Second)
	}

	page, err := f.svc.ListUsers(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	all, err := f.svc.ListUsers(context.Background(), 0, -5)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ctrl := gomock.NewController(t)
	f = newAuthFixture(t, func(o *AuthServiceOptions) { o.Users = mocks.NewMockUserStore(ctrl) })
	_, err = f.svc.ListUsers(context.Background(), 10, 0)
	require.ErrorIs(t, err, ErrListUnsupported)
}
