// Package errs defines the caller-visible error taxonomy of the version engine
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a missing prompt, version, comment or collection,
	// or a version reference that crosses prompt boundaries
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates malformed input
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPermissionDenied indicates a comment mutation by someone other than its author
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlreadyExists indicates a prompt title already used in the same collection
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnavailable indicates a transient failure, such as exhausted allocation retries
	ErrUnavailable = errors.New("unavailable")
)

// NotFound returns an error wrapping ErrNotFound
func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

// InvalidArgument returns an error wrapping ErrInvalidArgument
func InvalidArgument(format string, args ...any) error {
	return wrap(ErrInvalidArgument, format, args...)
}

// PermissionDenied returns an error wrapping ErrPermissionDenied
func PermissionDenied(format string, args ...any) error {
	return wrap(ErrPermissionDenied, format, args...)
}

// AlreadyExists returns an error wrapping ErrAlreadyExists
func AlreadyExists(format string, args ...any) error {
	return wrap(ErrAlreadyExists, format, args...)
}

// Unavailable returns an error wrapping ErrUnavailable and cause
func Unavailable(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, fmt.Sprintf(format, args...), cause)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err is a NotFound error
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidArgument reports whether err is an InvalidArgument error
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsPermissionDenied reports whether err is a PermissionDenied error
func IsPermissionDenied(err error) bool { return errors.Is(err, ErrPermissionDenied) }

// IsAlreadyExists reports whether err is an AlreadyExists error
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsUnavailable reports whether err is a transient failure the caller may retry
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
