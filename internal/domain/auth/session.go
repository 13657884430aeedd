package auth

import "time"

// SessionCallback shapes the session view each time a session is materialized.
type SessionCallback func(base ClientSession, user User) ClientSession

// NewClientSession builds the base session view from a persisted user.
// Only display fields are populated; id and role are added by a SessionCallback.
func NewClientSession(user User, expires time.Time) ClientSession {
	return ClientSession{
		User: SessionUser{
			Name:  user.Name,
			Email: user.Email,
			Image: user.Image,
		},
		Expires: expires,
	}
}

// EnrichSession returns base with user.id and user.role copied from the persisted user.
// All other fields of base are kept as they are.
func EnrichSession(base ClientSession, user User) ClientSession {
	out := base
	out.User.ID = user.ID
	out.User.Role = user.Role
	return out
}
