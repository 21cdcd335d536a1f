// Package auth signs users in against an identity provider and tracks
// the resulting sessions.
package auth

import (
	"context"
	"errors"
	"time"
)

// User is a signed-in account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	IDToken      string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"-"`
}

// Provider is an identity backend.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*User, error)
	// Register creates the account and then sets its display name.
	Register(ctx context.Context, email, password, displayName string) (*User, error)
	// SignInWithIdP exchanges a federated identity token (Google sign-in).
	// An empty token means the user closed the sign-in window.
	SignInWithIdP(ctx context.Context, providerID, idToken string) (*User, error)
	SignOut(ctx context.Context, u *User) error
	UpdateDisplayName(ctx context.Context, u *User, displayName string) (*User, error)
	UpdatePassword(ctx context.Context, u *User, password string) (*User, error)
}

// Code identifies an authentication failure.
type Code string

const (
	CodeUserNotFound      Code = "auth/user-not-found"
	CodeWrongPassword     Code = "auth/wrong-password"
	CodeInvalidCredential Code = "auth/invalid-credential"
	CodeEmailInUse        Code = "auth/email-already-in-use"
	CodeWeakPassword      Code = "auth/weak-password"
	CodeInvalidEmail      Code = "auth/invalid-email"
	CodePopupClosed       Code = "auth/popup-closed-by-user"
	CodeInternal          Code = "auth/internal-error"
)

const unexpectedMessage = "An unexpected error occurred. Please try again."

// Message returns the text shown to the user for c.
func (c Code) Message() string {
	switch c {
	case CodeUserNotFound, CodeWrongPassword, CodeInvalidCredential:
		return "Invalid email or password."
	case CodeEmailInUse:
		return "An account with this email already exists."
	case CodeWeakPassword:
		return "Password should be at least 6 characters."
	case CodeInvalidEmail:
		return "Please enter a valid email address."
	case CodePopupClosed:
		return "Sign-in was cancelled before it completed."
	}
	return unexpectedMessage
}

// Error is a provider failure with its mapped code.
type Error struct {
	Code  Code
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Code) + ": " + e.Cause.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Code
	}
	return CodeInternal
}

// UserMessage returns the text shown to the user for err.
func UserMessage(err error) string {
	return CodeOf(err).Message()
}
