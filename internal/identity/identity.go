// Package identity resolves the local user from the persisted identity blob
// written at login. When the blob is missing the caller falls back to
// inferring identity from session participants.
package identity

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strings"
)

type User struct {
	ID   string `json:"user_id"`
	Name string `json:"name"`
}

// Known reports whether the identity carries a usable user id.
func (u User) Known() bool { return strings.TrimSpace(u.ID) != "" }

// Load reads the identity blob. A missing file is not an error; it returns a
// zero User so callers fall through to inference.
func Load(path string) (User, error) {
	if strings.TrimSpace(path) == "" {
		return User{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return User{}, nil
		}
		return User{}, err
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return User{}, err
	}
	u.ID = strings.TrimSpace(u.ID)
	u.Name = strings.TrimSpace(u.Name)
	return u, nil
}
