package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/sessionauth/internal/adapters/authroles"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
)

func ptr(s string) *string { return &s }

func adminMapper() ProfileMapper {
	return DefaultProfileMapper(authroles.AdminEmailMapper{AdminEmail: "admin@example.com"})
}

func TestDefaultProfileMapper_AdminProfile(t *testing.T) {
	got, err := adminMapper()(GitHubProfile{
		ID:        42,
		Name:      nil,
		Login:     "octo",
		AvatarURL: "http://x/a.png",
		Email:     ptr("admin@example.com"),
	})
	require.NoError(t, err)

	assert.Equal(t, domainauth.Profile{
		ID:    "42",
		Name:  ptr("octo"),
		Image: ptr("http://x/a.png"),
		Email: ptr("admin@example.com"),
		Role:  domainauth.RoleAdmin,
	}, got)
}

func TestDefaultProfileMapper_OtherEmailIsUser(t *testing.T) {
	got, err := adminMapper()(GitHubProfile{
		ID:        42,
		Login:     "octo",
		AvatarURL: "http://x/a.png",
		Email:     ptr("other@example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, got.Role)
	assert.Equal(t, "other@example.com", *got.Email)
}

func TestDefaultProfileMapper_NameSelection(t *testing.T) {
	tests := []struct {
		name string
		in   *string
		want string
	}{
		{"present", ptr("The Octocat"), "The Octocat"},
		{"absent", nil, "octo"},
		{"empty", ptr(""), "octo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := adminMapper()(GitHubProfile{ID: 1, Login: "octo", Name: tt.in})
			require.NoError(t, err)
			require.NotNil(t, got.Name)
			assert.Equal(t, tt.want, *got.Name)
		})
	}
}

func TestDefaultProfileMapper_AbsentEmail(t *testing.T) {
	got, err := adminMapper()(GitHubProfile{ID: 7, Login: "ghost"})
	require.NoError(t, err)
	assert.Nil(t, got.Email)
	assert.Nil(t, got.Image)
	assert.Equal(t, domainauth.RoleUser, got.Role)
}

func TestDefaultProfileMapper_Deterministic(t *testing.T) {
	in := GitHubProfile{ID: 9, Login: "same", AvatarURL: "http://x/b.png", Email: ptr("admin@example.com")}
	m := adminMapper()
	first, err := m(in)
	require.NoError(t, err)
	for range 5 {
		again, err := m(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDefaultProfileMapper_MissingID(t *testing.T) {
	_, err := adminMapper()(GitHubProfile{Login: "noid"})
	require.ErrorIs(t, err, domainauth.ErrMalformedProfile)
}

func TestDefaultProfileMapper_NilRolesDefaultsToUser(t *testing.T) {
	got, err := DefaultProfileMapper(nil)(GitHubProfile{ID: 1, Login: "x", Email: ptr("admin@example.com")})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, got.Role)
}
