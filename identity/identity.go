package identity

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
)

// Role is one of the closed set of dashboard roles.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
	RoleStaff Role = "staff"
)

// ParseRole accepts only the known roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.TrimSpace(s)); r {
	case RoleAdmin, RoleOwner, RoleStaff:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Identity is the resolved user record. It is replaced wholesale on every
// login and refresh, so treat values as immutable.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Roles []Role `json:"roles"`
}

// Validate checks the payload shape returned by the backend.
func (i *Identity) Validate() error {
	if i == nil {
		return fmt.Errorf("identity is missing")
	}
	if i.ID == "" {
		return fmt.Errorf("identity id is required")
	}
	if _, err := mail.ParseAddress(i.Email); err != nil {
		return fmt.Errorf("identity email %q is invalid", i.Email)
	}
	for _, r := range i.Roles {
		if !r.Valid() {
			return fmt.Errorf("identity role %q is unknown", r)
		}
	}
	return nil
}

// HasRole reports whether any of the required roles is held.
func (i *Identity) HasRole(required ...Role) bool {
	if i == nil {
		return false
	}
	for _, r := range required {
		if slices.Contains(i.Roles, r) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.Roles = slices.Clone(i.Roles)
	return &c
}

// WithRoles returns a copy with the role set replaced.
func (i *Identity) WithRoles(roles []Role) *Identity {
	c := i.Clone()
	if c == nil {
		return nil
	}
	c.Roles = slices.Clone(roles)
	return c
}
