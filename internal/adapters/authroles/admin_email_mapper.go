package authroles

import (
	domainauth "github.com/target/sessionauth/internal/domain/auth"
)

// AdminEmailMapper grants ADMIN to the single configured administrator email
// and USER to everyone else.
type AdminEmailMapper struct {
	AdminEmail string
}

func (m AdminEmailMapper) Map(email *string) domainauth.Role {
	return domainauth.DeriveRole(email, m.AdminEmail)
}
