package chat

import (
	"errors"
	"fmt"
)

// ErrEmptyUsername is returned by Login when no username was entered.
// It is a validation failure; no collaborator call is attempted.
var ErrEmptyUsername = errors.New("username required")

// ErrLoginInProgress is returned when Login is called while a previous
// credential exchange has not resolved yet.
var ErrLoginInProgress = errors.New("login already in progress")

// ErrAlreadyAuthenticated is returned when Login is called on an
// authenticated session. There is no logout; identity is immutable for the
// process lifetime.
var ErrAlreadyAuthenticated = errors.New("already authenticated")

// AuthError reports a rejected or failed credential exchange. The session
// stays anonymous.
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login %q: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UploadError reports a failed attachment upload. No message is emitted for
// the file.
type UploadError struct {
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %q: %v", e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
