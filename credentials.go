package auth

import (
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// ValidateSignIn checks the fields required to request a token.
func (c Credentials) ValidateSignIn() *goerrors.Error {
	t := c.Trimmed()
	return goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&t,
			validation.Field(&t.Email, validation.Required),
			validation.Field(&t.Password, validation.Required),
		)
	}, "Invalid sign in request payload")
}

// ValidateSignUp checks the fields required to register an account.
func (c Credentials) ValidateSignUp() *goerrors.Error {
	t := c.Trimmed()
	return goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&t,
			validation.Field(&t.Email, validation.Required),
			validation.Field(&t.Username, validation.Required),
			validation.Field(&t.Password, validation.Required),
		)
	}, "Invalid sign up request payload")
}

// CredentialInput is the mutable form buffer the user types into.
// It is safe for concurrent use and never persisted.
type CredentialInput struct {
	mu    sync.RWMutex
	creds Credentials
}

// NewCredentialInput returns an empty input buffer.
func NewCredentialInput() *CredentialInput {
	return &CredentialInput{}
}

func (in *CredentialInput) SetEmail(email string) {
	in.mu.Lock()
	in.creds.Email = email
	in.mu.Unlock()
}

func (in *CredentialInput) SetUsername(username string) {
	in.mu.Lock()
	in.creds.Username = username
	in.mu.Unlock()
}

func (in *CredentialInput) SetPassword(password string) {
	in.mu.Lock()
	in.creds.Password = password
	in.mu.Unlock()
}

// Set replaces every field at once.
func (in *CredentialInput) Set(creds Credentials) {
	in.mu.Lock()
	in.creds = creds
	in.mu.Unlock()
}

// Snapshot returns the current field values.
func (in *CredentialInput) Snapshot() Credentials {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.creds
}

// Clear empties all fields.
func (in *CredentialInput) Clear() {
	in.mu.Lock()
	in.creds = Credentials{}
	in.mu.Unlock()
}

// IsEmpty reports whether every field is blank.
func (in *CredentialInput) IsEmpty() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.creds == Credentials{}
}
