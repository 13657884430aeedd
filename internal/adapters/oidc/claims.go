package oidc

import (
	"fmt"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// ClaimPaths are JMESPath expressions selecting profile fields from ID token
// or userinfo claims. Empty fields fall back to DefaultClaimPaths.
type ClaimPaths struct {
	ID    string
	Name  string
	Email string
	Image string
}

// DefaultClaimPaths covers standard OIDC claims plus common AD/ADFS shapes.
var DefaultClaimPaths = ClaimPaths{
	ID:    "sub || samaccountname",
	Name:  "name || preferred_username",
	Email: "email || mail",
	Image: "picture",
}

type searcher interface {
	Search(data any) (any, error)
}

type claimMapper struct {
	id, name, email, image searcher
}

func newClaimMapper(paths ClaimPaths) (*claimMapper, error) {
	compile := func(field, expr, fallback string) (searcher, error) {
		if strings.TrimSpace(expr) == "" {
			expr = fallback
		}
		c, err := jmespath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile %s claim path %q: %w", field, expr, err)
		}
		return c, nil
	}

	var (
		m   claimMapper
		err error
	)
	if m.id, err = compile("id", paths.ID, DefaultClaimPaths.ID); err != nil {
		return nil, err
	}
	if m.name, err = compile("name", paths.Name, DefaultClaimPaths.Name); err != nil {
		return nil, err
	}
	if m.email, err = compile("email", paths.Email, DefaultClaimPaths.Email); err != nil {
		return nil, err
	}
	if m.image, err = compile("image", paths.Image, DefaultClaimPaths.Image); err != nil {
		return nil, err
	}
	return &m, nil
}

// profileFields is the intermediate result of claim mapping.
type profileFields struct {
	id    string
	name  string
	email string
	image string
}

func (f profileFields) complete() bool {
	return f.id != "" && f.email != ""
}

// apply fills empty fields of f from claims. Fields already set are kept.
func (m *claimMapper) apply(f *profileFields, claims map[string]any) {
	if len(claims) == 0 {
		return
	}
	fill := func(dst *string, s searcher) {
		if *dst != "" {
			return
		}
		v, err := s.Search(claims)
		if err != nil {
			return
		}
		*dst = claimString(v)
	}
	fill(&f.id, m.id)
	fill(&f.name, m.name)
	fill(&f.email, m.email)
	fill(&f.image, m.image)
}

func claimString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		// verbatim; the email feeds an exact role comparison
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		// first non-empty element, e.g. a multi-valued mail claim
		for _, e := range t {
			if s := claimString(e); s != "" {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}
