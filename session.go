package auth

import (
	"fmt"
	"time"
)

// Status is the authentication state of a Session
type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticated   Status = "authenticated"
)

func (s Status) String() string {
	return string(s)
}

// Session is a read only snapshot of the client authentication state.
//
// Token is empty when absent. Message and Error are the transient texts
// surfaced after the most recent operation; at most one of them is set.
type Session struct {
	Status    Status    `json:"status"`
	Token     string    `json:"-"`
	Identity  *Identity `json:"identity,omitempty"`
	Loading   bool      `json:"loading"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Epoch     uint64    `json:"epoch"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAuthenticated reports whether the session holds a token and a resolved identity.
func (s Session) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.Token != "" && s.Identity != nil
}

// IsReady reports whether startup rehydration has finished.
func (s Session) IsReady() bool {
	return s.Status != StatusInitializing
}

// HasToken reports whether a bearer token is present.
func (s Session) HasToken() bool {
	return s.Token != ""
}

// UserID returns the identity id or an empty string.
func (s Session) UserID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.ID
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	s.Identity = s.Identity.Clone()
	return s
}

// Validate checks the session invariants.
func (s Session) Validate() error {
	if s.Identity != nil && s.Token == "" {
		return fmt.Errorf("session has identity without token")
	}
	if s.Message != "" && s.Error != "" {
		return fmt.Errorf("session has both message and error")
	}
	switch s.Status {
	case StatusAuthenticated:
		if s.Token == "" || s.Identity == nil {
			return fmt.Errorf("authenticated session requires token and identity")
		}
	case StatusUnauthenticated:
		if s.Token != "" || s.Identity != nil {
			return fmt.Errorf("unauthenticated session must not carry token or identity")
		}
	case StatusInitializing:
		if s.Identity != nil {
			return fmt.Errorf("initializing session must not carry identity")
		}
	default:
		return fmt.Errorf("unknown session status %q", s.Status)
	}
	return nil
}

func (s Session) String() string {
	token := "<none>"
	if s.Token != "" {
		token = "<redacted>"
	}
	return fmt.Sprintf(
		"status=%s user=%s token=%s loading=%t epoch=%d",
		s.Status,
		s.UserID(),
		token,
		s.Loading,
		s.Epoch,
	)
}
