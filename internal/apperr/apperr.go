// Package apperr defines the error taxonomy shared by the bin registry,
// session table and scan processor. Callers match with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown bins, users, barcodes and sessions.
	ErrNotFound = errors.New("not found")

	// ErrBinUnavailable is returned when a bin cannot be claimed because it
	// is offline or marked unavailable by the bin itself.
	ErrBinUnavailable = errors.New("bin unavailable")

	// ErrUserHasSession is returned when a user claims a second bin while the
	// reject claim policy is active.
	ErrUserHasSession = errors.New("user already holds a session on another bin")

	// ErrBinReserved is returned when a bin reports itself available while a
	// session still holds it.
	ErrBinReserved = errors.New("bin is reserved by an active session")

	ErrUnknownContainer = errors.New("unknown container")
	ErrNoActiveSession  = errors.New("no active session")
	ErrBinOffline       = errors.New("bin offline")

	// ErrConflict marks a transient write conflict inside the store. It is
	// retried by the store and never returned to HTTP callers.
	ErrConflict = errors.New("concurrency conflict")

	// ErrPersistence wraps collaborator I/O failures.
	ErrPersistence = errors.New("persistence failure")
)

// Persistence wraps err as a persistence failure for the named operation.
// Errors that already carry a domain meaning are returned unchanged.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// IsDomain reports whether err is one of the caller-facing domain errors
// rather than an infrastructure failure.
func IsDomain(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		ErrBinUnavailable,
		ErrUserHasSession,
		ErrBinReserved,
		ErrUnknownContainer,
		ErrNoActiveSession,
		ErrBinOffline,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
