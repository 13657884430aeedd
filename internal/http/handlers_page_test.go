package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexPage(t *testing.T) {
	h := &PageHandlers{Sessions: newAccessor(&fakeAuthService{}), Title: "Acme Portal"}

	tests := []struct {
		name     string
		token    string
		contains []string
		absent   []string
	}{
		{
			name:     "signed out",
			contains: []string{"<title>Acme Portal</title>", `href="/auth/login"`},
			absent:   []string{"Sign out"},
		},
		{
			name:     "user",
			token:    "user-token",
			contains: []string{"Logged in as Octo Cat", "Sign out"},
			absent:   []string{"/api/admin/users"},
		},
		{
			name:     "admin",
			token:    "admin-token",
			contains: []string{"Logged in as Octo Cat", `href="/api/admin/users"`},
		},
		{
			name:     "lookup failure renders signed out",
			token:    "broken-token",
			contains: []string{"Sign in"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(http.HandlerFunc(h.Index), requestWithToken(http.MethodGet, "/", tt.token))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
			body := rec.Body.String()
			for _, s := range tt.contains {
				assert.Contains(t, body, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, body, s)
			}
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestIndexPage_UnknownPath(t *testing.T) {
	h := &PageHandlers{Sessions: newAccessor(&fakeAuthService{})}
	rec := httptest.NewRecorder()
	h.Index(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
