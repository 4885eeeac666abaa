package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/landslide-report/go-auth"
)

// userID accepts the identifier as a JSON string or number.
type userID string

func (u *userID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = userID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user_id must be a string or number: %w", err)
	}
	*u = userID(n.String())
	return nil
}

type userResponse struct {
	UserID   userID `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (r userResponse) identity() (auth.Identity, string) {
	if r.UserID == "" {
		return auth.Identity{}, "missing user_id"
	}
	if r.Email == "" {
		return auth.Identity{}, "missing email"
	}
	return auth.Identity{
		ID:       string(r.UserID),
		Email:    r.Email,
		Username: r.Username,
	}, ""
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	userResponse
}
