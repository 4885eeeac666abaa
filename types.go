package auth

import (
	"context"
	"strings"
)

// DefaultTokenKey is the fixed namespace key the bearer token is stored under.
const DefaultTokenKey = "landslide_app_auth_token"

// Logger is the structured logger contract used across the package.
// Arguments after the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggerProvider hands out named loggers
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// TokenStore persists exactly one opaque bearer token.
// Load reports ok=false with a nil error when no token is saved.
type TokenStore interface {
	Save(ctx context.Context, token string) error
	Load(ctx context.Context) (token string, ok bool, err error)
	Clear(ctx context.Context) error
}

// Backend is the remote API the session manager talks to
type Backend interface {
	Register(ctx context.Context, creds Credentials) error
	IssueToken(ctx context.Context, creds Credentials) (*TokenGrant, error)
	CurrentUser(ctx context.Context, token string) (*Identity, error)
}

// Identity holds the attributes of the signed in user
type Identity struct {
	ID       string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Clone returns a copy of the identity, nil safe.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Credentials is the user entered sign up / sign in payload.
// It is never persisted.
type Credentials struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Trimmed returns a copy with surrounding whitespace removed from email and username.
// Passwords are kept verbatim.
func (c Credentials) Trimmed() Credentials {
	return Credentials{
		Email:    strings.TrimSpace(c.Email),
		Username: strings.TrimSpace(c.Username),
		Password: c.Password,
	}
}

// TokenGrant is the decoded token issuance response
type TokenGrant struct {
	AccessToken string
	Identity    Identity
}
