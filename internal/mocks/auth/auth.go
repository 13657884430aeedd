package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
	"github.com/target/sessionauth/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider  = (*MockAuthProvider)(nil)
	_ ports.SessionStore  = (*MemorySessionStore)(nil)
	_ ports.SessionPurger = (*MemorySessionStore)(nil)
	_ ports.UserStore     = (*MemoryUserStore)(nil)
	_ ports.UserLister    = (*MemoryUserStore)(nil)
	_ ports.RoleMapper    = (*AdminEmailMapper)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	// Deterministic values for predictable testing
	ProviderID  string
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		ProviderID:  "mock",
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: DefaultIdentity(),
	}
}

// DefaultIdentity returns the identity produced by a MockAuthProvider without overrides.
func DefaultIdentity() domainauth.Identity {
	name := "Mock User"
	email := "mock.user@example.com"
	return domainauth.Identity{
		Provider: "mock",
		Type:     domainauth.AccountTypeOAuth,
		Profile: domainauth.Profile{
			ID:    "mock-user-1",
			Name:  &name,
			Email: &email,
			Role:  domainauth.RoleUser,
		},
	}
}

func (m *MockAuthProvider) ID() string {
	if m.ProviderID == "" {
		return "mock"
	}
	return m.ProviderID
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}

	return authURL, fmt.Sprintf("%s-%d", statePrefix, n), fmt.Sprintf("%s-%d", noncePrefix, n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}

	ident := m.DefaultUser
	if ident.Profile.ID == "" {
		ident = DefaultIdentity()
	}
	if ident.Provider == "" {
		ident.Provider = m.ID()
	}
	ident.Token.AccessToken = "mock-access-" + in.Code
	ident.Token.Expiry = time.Now().Add(time.Hour)
	return ident, nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session)}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// DeleteExpired removes up to batchSize sessions expiring before the cutoff.
func (m *MemorySessionStore) DeleteExpired(_ context.Context, before time.Time, batchSize int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if batchSize > 0 && n >= int64(batchSize) {
			break
		}
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemorySessionStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// MemoryUserStore keeps users and linked accounts in memory.
type MemoryUserStore struct {
	mu       sync.Mutex
	users    map[string]domainauth.User
	accounts map[string]domainauth.Account // keyed by provider + "/" + providerAccountID
	Now      func() time.Time
}

// NewMemoryUserStore creates an empty MemoryUserStore.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:    make(map[string]domainauth.User),
		accounts: make(map[string]domainauth.Account),
		Now:      time.Now,
	}
}

func accountKey(provider, providerAccountID string) string {
	return provider + "/" + providerAccountID
}

func (m *MemoryUserStore) CreateWithAccount(
	_ context.Context,
	nu ports.NewUser,
	acct domainauth.Account,
) (domainauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if nu.Email != nil {
		for _, u := range m.users {
			if u.Email != nil && *u.Email == *nu.Email {
				return domainauth.User{}, fmt.Errorf("duplicate email %q", *nu.Email)
			}
		}
	}
	key := accountKey(acct.Provider, acct.ProviderAccountID)
	if _, ok := m.accounts[key]; ok {
		return domainauth.User{}, fmt.Errorf("duplicate account %q", key)
	}

	now := m.Now()
	u := domainauth.User{
		ID:        uuid.NewString(),
		Name:      nu.Name,
		Email:     nu.Email,
		Image:     nu.Image,
		Role:      nu.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	acct.ID = uuid.NewString()
	acct.UserID = u.ID
	acct.CreatedAt = now
	m.users[u.ID] = u
	m.accounts[key] = acct
	return u, nil
}

// Put inserts or replaces a user directly.
func (m *MemoryUserStore) Put(u domainauth.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryUserStore) GetByID(_ context.Context, id string) (domainauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domainauth.User{}, ports.ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryUserStore) GetByEmail(_ context.Context, email string) (domainauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email != nil && *u.Email == email {
			return u, nil
		}
	}
	return domainauth.User{}, ports.ErrUserNotFound
}

func (m *MemoryUserStore) GetByAccount(_ context.Context, provider, providerAccountID string) (domainauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[accountKey(provider, providerAccountID)]
	if !ok {
		return domainauth.User{}, ports.ErrUserNotFound
	}
	u, ok := m.users[acct.UserID]
	if !ok {
		return domainauth.User{}, ports.ErrUserNotFound
	}
	return u, nil
}

// Users returns all users ordered by creation time then id.
func (m *MemoryUserStore) Users() []domainauth.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domainauth.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// List pages through Users.
func (m *MemoryUserStore) List(_ context.Context, limit, offset int) ([]domainauth.User, error) {
	all := m.Users()
	if offset >= len(all) {
		return []domainauth.User{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Accounts returns all linked accounts.
func (m *MemoryUserStore) Accounts() []domainauth.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domainauth.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out
}

// AdminEmailMapper grants ADMIN to a single configured email.
type AdminEmailMapper struct {
	AdminEmail string
}

func (m AdminEmailMapper) Map(email *string) domainauth.Role {
	return domainauth.DeriveRole(email, m.AdminEmail)
}
