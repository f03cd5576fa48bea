package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// UserID is the backend's user identifier. The backend emits it either as a
// JSON number or as a string, so both decode into the same textual form.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
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
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// Identity is the authenticated principal. A nil *Identity means no one is
// logged in (or the check could not tell).
type Identity struct {
	UserID UserID   `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
}

// HasRole reports whether role is one of the identity's roles
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	return slices.Contains(i.Roles, role)
}

// Clone returns a deep copy so callers cannot mutate shared state
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.Roles = slices.Clone(i.Roles)
	return &c
}
