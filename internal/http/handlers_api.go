package httpx

import (
	"context"
	"net/http"
	"strconv"

	domainauth "github.com/target/sessionauth/internal/domain/auth"
)

// UserLister lists users for administrators.
type UserLister interface {
	ListUsers(ctx context.Context, limit, offset int) ([]domainauth.User, error)
}

// APIHandlers serves the JSON API behind RequireAuth / RequireRole.
type APIHandlers struct {
	Users UserLister
}

// Me returns the caller's session view.
// GET /api/me.
func (h *APIHandlers) Me(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	if sess == nil {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "unauthorized", Err: errAuthRequired})
		return
	}
	WriteJSON(w, http.StatusOK, sess)
}

type usersResponse struct {
	Users  []domainauth.User `json:"users"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// ListUsers pages through users.
// GET /api/admin/users?limit=<n>&offset=<n>.
func (h *APIHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	users, err := h.Users.ListUsers(r.Context(), limit, offset)
	if err != nil {
		WriteError(w, errorParamsFor(err, "list_users_failed"))
		return
	}
	if users == nil {
		users = []domainauth.User{}
	}
	WriteJSON(w, http.StatusOK, usersResponse{Users: users, Limit: limit, Offset: offset})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
