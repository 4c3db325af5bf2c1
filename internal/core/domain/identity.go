package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role is the closed set of principal kinds known to the platform.
type Role string

const (
	RoleClient Role = "client"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

var ErrUnknownRole = errors.New("unknown role")

// Roles lists every valid role in a stable order.
var Roles = []Role{RoleClient, RoleVendor, RoleAdmin}

// ParseRole converts a raw role string into a Role. Unknown values are rejected
// rather than mapped to a default.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleVendor, RoleAdmin:
		return true
	}
	return false
}

// Identity models the authenticated principal as reported by GET /auth/me.
type Identity struct {
	ID                string `json:"_id"`
	Role              Role   `json:"role"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	IsProfileComplete bool   `json:"isProfileComplete"`
	IsAdminApproved   bool   `json:"isAdminApproved"`

	// Opaque profile payload.
	Phone string `json:"phone,omitempty"`
	Bio   string `json:"bio,omitempty"`
	Plan  string `json:"plan,omitempty"`
}

// UnmarshalJSON accepts the principal ID under either "_id" or "id"; "_id"
// wins when both are present.
func (i *Identity) UnmarshalJSON(data []byte) error {
	type plain Identity
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*i = Identity(aux.plain)
	if i.ID == "" {
		i.ID = aux.AltID
	}
	return nil
}

// NeedsOnboarding reports whether the profile-completeness gate applies.
// Only vendors are gated; clients and admins never are.
func (i *Identity) NeedsOnboarding() bool {
	return i != nil && i.Role == RoleVendor && !i.IsProfileComplete
}

// Clone returns a copy that can be handed out without sharing state.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Equal compares two identities by value. Two nil identities are equal.
func (i *Identity) Equal(o *Identity) bool {
	if i == nil || o == nil {
		return i == nil && o == nil
	}
	return *i == *o
}

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register request body. AdminSecret is only sent when
// registering an admin.
type Registration struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        Role   `json:"role"`
	AdminSecret string `json:"adminSecret,omitempty"`
}

// Session is the client's belief about the current principal.
type Session struct {
	Identity *Identity `json:"user"`
	Loading  bool      `json:"loading"`
}
