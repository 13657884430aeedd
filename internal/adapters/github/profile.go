package github

import (
	"fmt"
	"strconv"

	domainauth "github.com/target/sessionauth/internal/domain/auth"
	"github.com/target/sessionauth/internal/ports"
)

// GitHubProfile is the subset of the GitHub /user payload used for sign-in.
type GitHubProfile struct {
	ID        int64   `json:"id"`
	Login     string  `json:"login"`
	Name      *string `json:"name"`
	AvatarURL string  `json:"avatar_url"`
	Email     *string `json:"email"`
}

// ProfileMapper converts a GitHub profile into the application user shape.
type ProfileMapper func(p GitHubProfile) (domainauth.Profile, error)

// DefaultProfileMapper maps id, name (falling back to login), avatar, email and
// a role derived from the email by roles. The avatar URL is copied verbatim; an
// empty avatar_url is treated as absent and leaves Image nil.
func DefaultProfileMapper(roles ports.RoleMapper) ProfileMapper {
	return func(p GitHubProfile) (domainauth.Profile, error) {
		if p.ID == 0 {
			return domainauth.Profile{}, fmt.Errorf("%w: github profile has no id", domainauth.ErrMalformedProfile)
		}

		name := p.Login
		if p.Name != nil && *p.Name != "" {
			name = *p.Name
		}

		var image *string
		if p.AvatarURL != "" {
			avatar := p.AvatarURL
			image = &avatar
		}

		var email *string
		if p.Email != nil {
			e := *p.Email
			email = &e
		}

		role := domainauth.RoleUser
		if roles != nil {
			role = roles.Map(email)
		}

		return domainauth.Profile{
			ID:    strconv.FormatInt(p.ID, 10),
			Name:  &name,
			Email: email,
			Image: image,
			Role:  role,
		}, nil
	}
}
