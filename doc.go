// Package auth provides the client side session for the landslide report
// app: a session state machine, the manager that drives it against the
// backend, and a publisher that hands read only snapshots to consumers.
//
// Session lifecycle:
//   - A Manager starts Initializing and leaves that state exactly once, via
//     Rehydrate, to Authenticated or Unauthenticated. Afterwards SignIn,
//     SignUp and SignOut move between those two states.
//   - The bearer token lives in a TokenStore. The Manager is its only
//     writer; implementations live in the tokenstore package.
//   - SignOut bumps the session epoch. Operations that started under an
//     older epoch finish with ErrSuperseded and leave both the session and
//     the store untouched.
//
// Errors:
//   - Operations return go-errors values classified by text code
//     (IsValidationError, IsAuthRejected, IsNetworkError, ...) and publish
//     exactly one human readable text in Session.Message or Session.Error.
//
// Activity sinks:
//   - ActivitySink receives best effort session events (sign in, sign out,
//     status changes). Sink errors are logged and never fail an operation.
package auth
