package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
	"github.com/target/sessionauth/internal/service"
)

func newAuthHandlers(svc *fakeAuthService) *AuthHandlers {
	cookies := CookieConfig{Name: "session_id"}
	return &AuthHandlers{
		Svc:      svc,
		Sessions: &SessionAccessor{Svc: svc, Cookies: cookies},
		Cookies:  cookies,
	}
}

func callbackRequest(query string, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?"+query, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestLogin_SetsFlowCookiesAndRedirects(t *testing.T) {
	var gotRedirect string
	svc := &fakeAuthService{
		beginLoginFunc: func(_ context.Context, in service.BeginLoginInput) (*service.BeginLoginResult, error) {
			gotRedirect = in.RedirectURL
			return &service.BeginLoginResult{AuthURL: "https://idp/authorize", State: "st", Nonce: "no"}, nil
		},
	}
	h := newAuthHandlers(svc)

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login?redirect_uri=/dashboard%3Ftab%3D1", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp/authorize", rec.Header().Get("Location"))
	assert.Equal(t, "/dashboard?tab=1", gotRedirect)
	assert.Equal(t, "st", findCookie(t, rec, "oauth_state").Value)
	assert.Equal(t, "no", findCookie(t, rec, "oauth_nonce").Value)
	assert.Equal(t, "/dashboard?tab=1", findCookie(t, rec, "post_login_redirect").Value)
	assert.Equal(t, 600, findCookie(t, rec, "oauth_state").MaxAge)
}

func TestLogin_RejectsOpenRedirect(t *testing.T) {
	h := newAuthHandlers(&fakeAuthService{})
	for _, target := range []string{"https://evil.example.com", "//evil.example.com", `/\evil`, "relative"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
		q := req.URL.Query()
		q.Set("redirect_uri", target)
		req.URL.RawQuery = q.Encode()

		h.Login(rec, req)
		assert.Equal(t, "/", findCookie(t, rec, "post_login_redirect").Value, target)
	}
}

func TestLogin_ServiceError(t *testing.T) {
	h := newAuthHandlers(&fakeAuthService{
		beginLoginFunc: func(context.Context, service.BeginLoginInput) (*service.BeginLoginResult, error) {
			return nil, errors.New("discovery failed")
		},
	})
	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "login_failed")
	assert.NotContains(t, rec.Body.String(), "discovery failed")
}

func TestCallback_Success(t *testing.T) {
	var got service.CompleteLoginInput
	svc := &fakeAuthService{
		completeLoginFunc: func(_ context.Context, in service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
			got = in
			return &service.CompleteLoginResult{
				Session: domainauth.Session{ID: "new-token", UserID: "u1", ExpiresAt: testSessionExpiry},
			}, nil
		},
	}
	h := newAuthHandlers(svc)

	rec := httptest.NewRecorder()
	h.Callback(rec, callbackRequest("code=abc&state=st",
		&http.Cookie{Name: "oauth_state", Value: "st"},
		&http.Cookie{Name: "oauth_nonce", Value: "no"},
		&http.Cookie{Name: "post_login_redirect", Value: "/api/me"},
	))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/me", rec.Header().Get("Location"))
	assert.Equal(t, service.CompleteLoginInput{Code: "abc", State: "st", Nonce: "no"}, got)

	sessionCookie := findCookie(t, rec, "session_id")
	require.NotNil(t, sessionCookie)
	assert.Equal(t, "new-token", sessionCookie.Value)
	assert.True(t, sessionCookie.HttpOnly)
	assert.Equal(t, -1, findCookie(t, rec, "oauth_state").MaxAge)
	assert.Equal(t, -1, findCookie(t, rec, "oauth_nonce").MaxAge)
	assert.Equal(t, -1, findCookie(t, rec, "post_login_redirect").MaxAge)
}

func TestCallback_Validation(t *testing.T) {
	state := &http.Cookie{Name: "oauth_state", Value: "st"}
	nonce := &http.Cookie{Name: "oauth_nonce", Value: "no"}

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
		wantErr  string
	}{
		{"idp error", callbackRequest("error=access_denied"), http.StatusUnauthorized, "access_denied"},
		{"missing code", callbackRequest("state=st", state, nonce), http.StatusBadRequest, "missing_code"},
		{"missing state", callbackRequest("code=abc", state, nonce), http.StatusBadRequest, "missing_state"},
		{"no state cookie", callbackRequest("code=abc&state=st", nonce), http.StatusBadRequest, "invalid_state"},
		{"state mismatch", callbackRequest("code=abc&state=other", state, nonce), http.StatusBadRequest, "invalid_state"},
		{"no nonce cookie", callbackRequest("code=abc&state=st", state), http.StatusBadRequest, "missing_nonce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAuthService{
				completeLoginFunc: func(context.Context, service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
					t.Fatal("CompleteLogin must not be called")
					return nil, nil
				},
			}
			rec := httptest.NewRecorder()
			newAuthHandlers(svc).Callback(rec, tt.req)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantErr, body["error"])
		})
	}
}

func TestCallback_LoginErrors(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantErr  string
	}{
		{domainauth.ErrAccountNotLinked, http.StatusConflict, "account_not_linked"},
		{domainauth.ErrMalformedProfile, http.StatusBadGateway, "malformed_profile"},
		{errors.New("token endpoint 500"), http.StatusInternalServerError, "login_completion_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.wantErr, func(t *testing.T) {
			svc := &fakeAuthService{
				completeLoginFunc: func(context.Context, service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
					return nil, tt.err
				},
			}
			rec := httptest.NewRecorder()
			newAuthHandlers(svc).Callback(rec, callbackRequest("code=abc&state=st",
				&http.Cookie{Name: "oauth_state", Value: "st"},
				&http.Cookie{Name: "oauth_nonce", Value: "no"},
			))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantErr)
			assert.Nil(t, findCookie(t, rec, "session_id"))
			assert.Equal(t, -1, findCookie(t, rec, "oauth_state").MaxAge)
		})
	}
}

func TestLogout(t *testing.T) {
	svc := &fakeAuthService{}
	h := newAuthHandlers(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader("redirect_uri=/bye"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "user-token"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/bye", rec.Header().Get("Location"))
	assert.Equal(t, []string{"user-token"}, svc.loggedOut)
	assert.Equal(t, -1, findCookie(t, rec, "session_id").MaxAge)
}

func TestLogout_JSONAndFailureTolerant(t *testing.T) {
	svc := &fakeAuthService{logoutFunc: func(context.Context, string) error { return errors.New("boom") }}
	h := newAuthHandlers(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout?redirect_uri=https://evil", nil)
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "user-token"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","redirect_to":"/"}`, rec.Body.String())
}

func TestSessionEndpoint(t *testing.T) {
	h := newAuthHandlers(&fakeAuthService{})

	rec := httptest.NewRecorder()
	h.Session(rec, httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "admin-token"})
	rec = httptest.NewRecorder()
	h.Session(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"user": {"id":"a1","name":"Octo Cat","email":"a1@example.com","image":null,"role":"ADMIN"},
		"expires":"2030-01-01T00:00:00Z"
	}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "broken-token"})
	rec = httptest.NewRecorder()
	h.Session(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	h := newAuthHandlers(&fakeAuthService{})

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/auth/status", nil))
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "user-token"})
	rec = httptest.NewRecorder()
	h.Status(rec, req)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Authenticated)
	assert.False(t, body.IsAdmin)
	assert.Equal(t, "u1", body.User.ID)
}

func TestSafeRedirectPath(t *testing.T) {
	cases := map[string]string{
		"":                     "/",
		"/":                    "/",
		"/a/b?c=d":             "/a/b?c=d",
		"https://evil.example": "/",
		"//evil.example":       "/",
		`/\evil.example`:       "/",
		"javascript:alert(1)":  "/",
		"no-leading-slash":     "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, safeRedirectPath(in), in)
	}
}
