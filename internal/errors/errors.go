// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package errors provides the structured error type shared by the policy
// helper. Every error carries a Kind so callers can distinguish "not ready"
// from "blocked" from "read failed" without string matching, and optionally
// the errno reported by the kernel.
package errors

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind defines the category of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInternal
	KindValidation
	// KindUnavailable means a resource such as a pinned map could not be opened.
	KindUnavailable
	// KindUnsupported means the platform tier is below the minimum supported one.
	KindUnsupported
	// KindTriggerFailed means the external loader could not be requested.
	KindTriggerFailed
	// KindNotInitialized means evaluation ran before the tables were opened.
	KindNotInitialized
	// KindReadFailed means a shared table read failed after the tables were ready.
	KindReadFailed
)

// AttrErrno is the attribute key holding the unix.Errno of an error.
const AttrErrno = "errno"

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindValidation:
		return "validation"
	case KindUnavailable:
		return "unavailable"
	case KindUnsupported:
		return "unsupported"
	case KindTriggerFailed:
		return "trigger_failed"
	case KindNotInitialized:
		return "not_initialized"
	case KindReadFailed:
		return "read_failed"
	default:
		return "unknown"
	}
}

// Error represents a structured error in the uidpolicy system.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	Attributes map[string]any

	sentinel bool
}

// Sentinel returns an error that matches, via errors.Is, every *Error of the
// given kind.
func Sentinel(kind Kind) error {
	return &Error{Kind: kind, Message: kind.String(), sentinel: true}
}

// Is reports whether target is a Sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.sentinel && t.Kind == e.Kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the specified kind.
func New(kind Kind, msg string) error {
	return &Error{
		Kind:    kind,
		Message: msg,
	}
}

// Errorf creates a new Error of the specified kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error as a new Error of the specified kind.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Message:    msg,
		Underlying: err,
	}
}

// Wrapf wraps an existing error as a new Error of the specified kind with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		Underlying: err,
	}
}

// Attr sets key on the outermost *Error in err's chain, wrapping err as
// KindInternal when there is none.
func Attr(err error, key string, val any) error {
	if err == nil {
		return nil
	}

	var e *Error
	if !errors.As(err, &e) {
		e = &Error{
			Kind:       KindInternal,
			Message:    err.Error(),
			Underlying: err,
		}
	}

	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = val
	return e
}

// WithErrno attaches a POSIX error code to err.
func WithErrno(err error, errno unix.Errno) error {
	return Attr(err, AttrErrno, errno)
}

// Errno returns the POSIX error code carried by err, either as an attribute
// or as a unix.Errno anywhere in its chain.
func Errno(err error) (unix.Errno, bool) {
	if err == nil {
		return 0, false
	}
	if v, ok := GetAttributes(err)[AttrErrno]; ok {
		if errno, ok := v.(unix.Errno); ok {
			return errno, true
		}
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}

// GetKind returns the Kind of the error, or KindUnknown if it's not a uidpolicy error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// GetAttributes collects the attributes of every *Error in err's chain. The
// outermost value wins when a key repeats.
func GetAttributes(err error) map[string]any {
	attrs := make(map[string]any)
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		for k, v := range e.Attributes {
			if _, seen := attrs[k]; !seen {
				attrs[k] = v
			}
		}
		err = e.Underlying
	}
	return attrs
}
