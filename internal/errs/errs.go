// Package errs provides the uniform error-kind taxonomy used across the
// protocol core: InvalidArgument, Invariant, Crypto, Transport, Internal.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the purposes of session-fatal propagation.
type Kind int

const (
	// InvalidArgument marks a malformed wire field or out-of-order message.
	InvalidArgument Kind = iota
	// Invariant marks a violated tree or state-machine invariant.
	Invariant
	// Crypto marks a ciphertext-shape or decryption failure.
	Crypto
	// Transport marks an I/O or peer-closed failure.
	Transport
	// Internal marks a reached-the-unreachable branch.
	Internal
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case Invariant:
		return "Invariant"
	case Crypto:
		return "Crypto"
	case Transport:
		return "Transport"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

type statusError struct {
	kind Kind
	msg  string
	err  error
}

func (e *statusError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *statusError) Unwrap() error { return e.err }

// New constructs a session-fatal error of the given kind.
func New(kind Kind, msg string) error {
	return &statusError{kind: kind, msg: msg}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) error {
	return &statusError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it for Unwrap/Is.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &statusError{kind: kind, msg: "wrapped", err: err}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var se *statusError
	for err != nil {
		if errors.As(err, &se) {
			if se.kind == kind {
				return true
			}
			err = se.err
			continue
		}
		return false
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to Internal if untagged.
func KindOf(err error) Kind {
	var se *statusError
	if errors.As(err, &se) {
		return se.kind
	}
	return Internal
}
