package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Flag decodes the backend's authenticated marker, which is a JSON bool on
// some endpoints and a stringified Python bool ("True") on the admin listing.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = false
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1":
			*f = true
		case "false", "0", "":
			*f = false
		default:
			return fmt.Errorf("invalid flag %q", s)
		}
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("invalid flag: %w", err)
	}
	*f = Flag(b)
	return nil
}

// SessionRecord is one backend session as listed in the admin view
type SessionRecord struct {
	SessionID     string   `json:"session_id"`
	Authenticated Flag     `json:"authenticated"`
	Roles         []string `json:"roles"`
	CreatedAt     string   `json:"created_at,omitempty"`
}
