package enums

import (
	"fmt"
	"strings"
)

// Role is the caller role resolved from the access token.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole maps a token role onto Role. Supabase issues "authenticated" for
// ordinary sessions, which is treated as RoleUser.
func ParseRole(value string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "authenticated", string(RoleUser):
		return RoleUser, nil
	case string(RoleAdmin):
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("invalid role %q", value)
}
