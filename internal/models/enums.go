package models

import "fmt"

// Role is a user's privilege level inside one space.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleMember    Role = "member"
	RoleEditor    Role = "editor"
	RoleOwner     Role = "owner"
)

// roleRank is the total privilege order. Every Role constant must appear here.
var roleRank = map[Role]int{
	RoleAnonymous: 0,
	RoleMember:    1,
	RoleEditor:    2,
	RoleOwner:     3,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank returns the role's position in the privilege order, or -1 for an
// unknown role.
func (r Role) Rank() int {
	rank, ok := roleRank[r]
	if !ok {
		return -1
	}
	return rank
}

// Outranks reports whether r is strictly more privileged than other.
func (r Role) Outranks(other Role) bool {
	return r.IsValid() && r.Rank() > other.Rank()
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	r := Role(value)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid role %q", value)
	}
	return r, nil
}

// Theme is the visual theme of a space.
type Theme string

const (
	ThemeDefault Theme = "default"
)

var validThemes = []Theme{
	ThemeDefault,
}

// String implements fmt.Stringer.
func (t Theme) String() string {
	return string(t)
}

// IsValid reports whether the value is a known Theme.
func (t Theme) IsValid() bool {
	for _, candidate := range validThemes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTheme converts raw input into a Theme. Empty input means ThemeDefault.
func ParseTheme(value string) (Theme, error) {
	if value == "" {
		return ThemeDefault, nil
	}
	for _, candidate := range validThemes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid theme %q", value)
}
