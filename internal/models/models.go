// Package models provides domain models for the investdesk client.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Role represents the platform role of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsAdmin reports whether the role is admin.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// CredentialKind distinguishes a login token from an impersonation token.
type CredentialKind string

const (
	KindPrimary       CredentialKind = "primary"
	KindImpersonation CredentialKind = "impersonation"
)

// Credential is a bearer token together with who it speaks for.
type Credential struct {
	Token string
	Role  Role
	Kind  CredentialKind
}

// UserSummary is the user object the backend returns on login.
type UserSummary struct {
	ID        ID     `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      Role   `json:"role,omitempty"`
}

// DisplayName returns "First Last (email)" or just the email.
func (u UserSummary) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return fmt.Sprintf("%s (%s)", name, u.Email)
}

// ImpersonationContext records an admin acting as another user.
// All three fields are written and cleared together.
type ImpersonationContext struct {
	AdminToken            string
	ImpersonatedUserToken string
	ImpersonatedUser      UserSummary
}

// ID is a backend identifier. The API mixes numeric and string ids, so both
// decode into the same string form.
type ID string

// UnmarshalJSON accepts numeric or string ids.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids back as numbers.
func (id ID) MarshalJSON() ([]byte, error) {
	if id != "" {
		if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
			return []byte(id), nil
		}
	}
	return json.Marshal(string(id))
}

func (id ID) String() string {
	return string(id)
}
