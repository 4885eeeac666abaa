package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation         = "VALIDATION_FAILED"
	TextCodeNetwork            = "NETWORK_ERROR"
	TextCodeAuthRejected       = "AUTH_REJECTED"
	TextCodeMalformedResponse  = "MALFORMED_RESPONSE"
	TextCodeCreatedLoginFailed = "ACCOUNT_CREATED_LOGIN_FAILED"
	TextCodeNotReady           = "AUTH_NOT_READY"
	TextCodeStorage            = "TOKEN_STORAGE_ERROR"
	TextCodeInvalidTransition  = "INVALID_SESSION_TRANSITION"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeSuperseded         = "SESSION_RESULT_SUPERSEDED"
)

// ErrValidation is returned when required credential fields are missing.
// It never reaches the network.
var ErrValidation = goerrors.New("missing required fields", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrNetwork wraps transport level failures talking to a remote endpoint.
var ErrNetwork = goerrors.New("network error", goerrors.CategoryOperation).
	WithTextCode(TextCodeNetwork).
	WithCode(goerrors.CodeInternal)

// ErrAuthRejected is returned when the server explicitly rejects credentials or a token.
var ErrAuthRejected = goerrors.New("authentication rejected", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthRejected).
	WithCode(goerrors.CodeUnauthorized)

// ErrMalformedResponse is returned for 2xx responses with an unexpected body shape.
var ErrMalformedResponse = goerrors.New("malformed response", goerrors.CategoryInternal).
	WithTextCode(TextCodeMalformedResponse).
	WithCode(goerrors.CodeInternal)

// ErrCreatedLoginFailed is returned by SignUp when registration succeeded but the
// follow up sign in did not.
var ErrCreatedLoginFailed = goerrors.New("account created but sign in failed", goerrors.CategoryAuth).
	WithTextCode(TextCodeCreatedLoginFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrNotReady is returned for sign up and sign in while the session is still initializing.
var ErrNotReady = goerrors.New("authentication not ready", goerrors.CategoryOperation).
	WithTextCode(TextCodeNotReady).
	WithCode(goerrors.CodeConflict)

// ErrStorage wraps token store failures.
var ErrStorage = goerrors.New("token storage failure", goerrors.CategoryInternal).
	WithTextCode(TextCodeStorage).
	WithCode(goerrors.CodeInternal)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid session state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is used when a stored bearer token is past its expiry.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrSuperseded is returned when an operation finished after a sign out
// invalidated it. Its result was discarded.
var ErrSuperseded = goerrors.New("operation superseded by sign out", goerrors.CategoryConflict).
	WithTextCode(TextCodeSuperseded).
	WithCode(goerrors.CodeConflict)

// NewError clones base and attaches the source error and metadata.
// Package level sentinels are never mutated.
func NewError(base *goerrors.Error, source error, metadata map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if source != nil {
		clone.Source = source
	}
	if len(metadata) > 0 {
		clone.WithMetadata(metadata)
	}
	return clone
}

// IsTextCode reports whether err carries the given go-errors text code.
func IsTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	if richErr.TextCode == code {
		return true
	}
	if richErr.Source != nil && richErr.Source != err {
		return IsTextCode(richErr.Source, code)
	}
	return false
}

func IsValidationError(err error) bool { return IsTextCode(err, TextCodeValidation) }

func IsNetworkError(err error) bool { return IsTextCode(err, TextCodeNetwork) }

func IsAuthRejected(err error) bool { return IsTextCode(err, TextCodeAuthRejected) }

func IsMalformedResponse(err error) bool { return IsTextCode(err, TextCodeMalformedResponse) }

func IsCreatedLoginFailed(err error) bool { return IsTextCode(err, TextCodeCreatedLoginFailed) }

func IsNotReady(err error) bool { return IsTextCode(err, TextCodeNotReady) }

func IsStorageError(err error) bool { return IsTextCode(err, TextCodeStorage) }

func IsTokenExpired(err error) bool { return IsTextCode(err, TextCodeTokenExpired) }

func IsSuperseded(err error) bool { return IsTextCode(err, TextCodeSuperseded) }

// DetailFromError returns the normalized server detail attached to err, if any.
func DetailFromError(err error) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return ""
	}
	if richErr.Metadata == nil {
		return ""
	}
	if detail, ok := richErr.Metadata["detail"].(string); ok {
		return detail
	}
	return ""
}
