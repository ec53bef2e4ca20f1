package core

import (
	"errors"
	"fmt"
)

const errFmt = "%s: %s"

// Common errors surfaced by core operations. Every rejected verification
// attempt carries a distinguishable reason so callers can show more than a
// generic failure.
var (
	ErrDeviceLimit       = errors.New("device limit exceeded")
	ErrInvalidEntity     = errors.New("invalid entity")
	ErrInvalidOTP        = errors.New("otp does not match")
	ErrInvalidTransition = errors.New("transition not allowed")
	ErrInviteNotFound    = errors.New("invite not found")
	ErrNotFound          = errors.New("resource not found")
	ErrOutsideWindow     = errors.New("outside validity window")
	ErrUnauthorized      = errors.New("origin unauthorized")
)

// Error is a wrapper used to transport core specific errors.
type Error struct {
	Err error
	Msg string
}

func (e *Error) Error() string {
	return e.Msg
}

// IsDeviceLimit indicates if err is ErrDeviceLimit.
func IsDeviceLimit(err error) bool {
	return unwrapError(err) == ErrDeviceLimit
}

// IsInvalidEntity indicates if err is ErrInvalidEntity.
func IsInvalidEntity(err error) bool {
	return unwrapError(err) == ErrInvalidEntity
}

// IsInvalidOTP indicates if err is ErrInvalidOTP.
func IsInvalidOTP(err error) bool {
	return unwrapError(err) == ErrInvalidOTP
}

// IsInvalidTransition indicates if err is ErrInvalidTransition.
func IsInvalidTransition(err error) bool {
	return unwrapError(err) == ErrInvalidTransition
}

// IsInviteNotFound indicates if err is ErrInviteNotFound.
func IsInviteNotFound(err error) bool {
	return unwrapError(err) == ErrInviteNotFound
}

// IsNotFound indicates if err is ErrNotFound.
func IsNotFound(err error) bool {
	return unwrapError(err) == ErrNotFound
}

// IsOutsideWindow indicates if err is ErrOutsideWindow.
func IsOutsideWindow(err error) bool {
	return unwrapError(err) == ErrOutsideWindow
}

// IsUnauthorized indicates if err is ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return unwrapError(err) == ErrUnauthorized
}

func unwrapError(err error) error {
	switch e := err.(type) {
	case *Error:
		return e.Err
	}

	return err
}

func wrapError(err error, format string, args ...interface{}) error {
	return &Error{
		Err: err,
		Msg: fmt.Sprintf(
			errFmt,
			err.Error(),
			fmt.Sprintf(format, args...),
		),
	}
}
