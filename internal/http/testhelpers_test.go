package httpx

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/sessionauth/internal/domain/auth"
	"github.com/target/sessionauth/internal/ports"
	"github.com/target/sessionauth/internal/service"
)

// fakeAuthService is a test double for AuthServiceInterface.
type fakeAuthService struct {
	beginLoginFunc    func(ctx context.Context, in service.BeginLoginInput) (*service.BeginLoginResult, error)
	completeLoginFunc func(ctx context.Context, in service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	getSessionFunc    func(ctx context.Context, token string) (*domainauth.ClientSession, error)
	logoutFunc        func(ctx context.Context, token string) error
	listUsersFunc     func(ctx context.Context, limit, offset int) ([]domainauth.User, error)

	loggedOut []string
}

func (f *fakeAuthService) BeginLogin(ctx context.Context, in service.BeginLoginInput) (*service.BeginLoginResult, error) {
	if f.beginLoginFunc != nil {
		return f.beginLoginFunc(ctx, in)
	}
	return &service.BeginLoginResult{
		AuthURL: "https://github.com/login/oauth/authorize?state=test-state",
		State:   "test-state",
		Nonce:   "test-nonce",
	}, nil
}

func (f *fakeAuthService) CompleteLogin(ctx context.Context, in service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
	if f.completeLoginFunc != nil {
		return f.completeLoginFunc(ctx, in)
	}
	return &service.CompleteLoginResult{
		Session: domainauth.Session{ID: "test-session-id", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)},
		User:    domainauth.User{ID: "u1", Role: domainauth.RoleUser},
	}, nil
}

func (f *fakeAuthService) GetSession(ctx context.Context, token string) (*domainauth.ClientSession, error) {
	if f.getSessionFunc != nil {
		return f.getSessionFunc(ctx, token)
	}
	switch token {
	case "user-token":
		return testSession("u1", domainauth.RoleUser), nil
	case "admin-token":
		return testSession("a1", domainauth.RoleAdmin), nil
	case "expired-token":
		return nil, service.ErrSessionExpired
	case "broken-token":
		return nil, errors.New("redis: connection refused")
	default:
		return nil, ports.ErrSessionNotFound
	}
}

func (f *fakeAuthService) Logout(ctx context.Context, token string) error {
	f.loggedOut = append(f.loggedOut, token)
	if f.logoutFunc != nil {
		return f.logoutFunc(ctx, token)
	}
	return nil
}

func (f *fakeAuthService) ListUsers(ctx context.Context, limit, offset int) ([]domainauth.User, error) {
	if f.listUsersFunc != nil {
		return f.listUsersFunc(ctx, limit, offset)
	}
	return nil, nil
}

var testSessionExpiry = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

func testSession(id string, role domainauth.Role) *domainauth.ClientSession {
	name := "Octo Cat"
	email := id + "@example.com"
	return &domainauth.ClientSession{
		User:    domainauth.SessionUser{ID: id, Name: &name, Email: &email, Role: role},
		Expires: testSessionExpiry,
	}
}

func newAccessor(svc SessionResolver) *SessionAccessor {
	return &SessionAccessor{Svc: svc, Cookies: CookieConfig{Name: "session_id"}}
}
