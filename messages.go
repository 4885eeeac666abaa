package auth

import "fmt"

// Messages holds the user facing texts the manager publishes.
// Zero fields fall back to DefaultMessages.
type Messages struct {
	NotReady           string
	MissingSignIn      string
	MissingSignUp      string
	SignUpSuccess      string
	SignUpFailed       string
	CreatedLoginFailed string
	SignInSuccess      string
	InvalidCredentials string
	NetworkError       string
	MalformedResponse  string
	StorageFailure     string
	SignedOut          string
	SessionExpired     string
	SessionLoadFailed  string
	// WelcomeBack is a format string receiving the user email.
	WelcomeBack string
}

// DefaultMessages returns the stock English texts.
func DefaultMessages() Messages {
	return Messages{
		NotReady:           "Authentication not ready. Please wait.",
		MissingSignIn:      "Please enter both email and password.",
		MissingSignUp:      "Please enter email, username and password.",
		SignUpSuccess:      "Account created successfully! You are now logged in.",
		SignUpFailed:       "Sign up failed.",
		CreatedLoginFailed: "Account created, but automatic sign in failed. Please sign in manually.",
		SignInSuccess:      "Logged in successfully!",
		InvalidCredentials: "Invalid email or password.",
		NetworkError:       "Network error. Please try again.",
		MalformedResponse:  "Unexpected response from the server.",
		StorageFailure:     "Could not save your session. Please try again.",
		SignedOut:          "Logged out successfully.",
		SessionExpired:     "Your session has expired. Please sign in again.",
		SessionLoadFailed:  "Could not restore your saved session. Please sign in again.",
		WelcomeBack:        "Welcome back, %s!",
	}
}

func (m Messages) withDefaults() Messages {
	def := DefaultMessages()
	pick := func(v, fallback string) string {
		if v == "" {
			return fallback
		}
		return v
	}
	return Messages{
		NotReady:           pick(m.NotReady, def.NotReady),
		MissingSignIn:      pick(m.MissingSignIn, def.MissingSignIn),
		MissingSignUp:      pick(m.MissingSignUp, def.MissingSignUp),
		SignUpSuccess:      pick(m.SignUpSuccess, def.SignUpSuccess),
		SignUpFailed:       pick(m.SignUpFailed, def.SignUpFailed),
		CreatedLoginFailed: pick(m.CreatedLoginFailed, def.CreatedLoginFailed),
		SignInSuccess:      pick(m.SignInSuccess, def.SignInSuccess),
		InvalidCredentials: pick(m.InvalidCredentials, def.InvalidCredentials),
		NetworkError:       pick(m.NetworkError, def.NetworkError),
		MalformedResponse:  pick(m.MalformedResponse, def.MalformedResponse),
		StorageFailure:     pick(m.StorageFailure, def.StorageFailure),
		SignedOut:          pick(m.SignedOut, def.SignedOut),
		SessionExpired:     pick(m.SessionExpired, def.SessionExpired),
		SessionLoadFailed:  pick(m.SessionLoadFailed, def.SessionLoadFailed),
		WelcomeBack:        pick(m.WelcomeBack, def.WelcomeBack),
	}
}

func (m Messages) welcome(identity *Identity) string {
	name := ""
	if identity != nil {
		name = identity.Email
		if name == "" {
			name = identity.Username
		}
	}
	return fmt.Sprintf(m.WelcomeBack, name)
}

// remoteFailure picks the message for a failed backend call. A server
// supplied detail is shown verbatim; transport and shape problems get fixed texts.
func (m Messages) remoteFailure(err error, fallback string) string {
	if detail := DetailFromError(err); detail != "" {
		return detail
	}
	switch {
	case IsNetworkError(err):
		return m.NetworkError
	case IsMalformedResponse(err):
		return m.MalformedResponse
	}
	return fallback
}
