// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package bpfmap provides typed, read-only access to fixed-layout BPF maps
// pinned by another component, plus an in-memory implementation with the same
// semantics for tests and simulation.
package bpfmap

import (
	"errors"

	"github.com/cilium/ebpf"
	"golang.org/x/sys/unix"

	uerrors "grimm.is/uidpolicy/internal/errors"
)

// ErrKeyNotExist is returned (wrapped) by Read when the key has no entry.
var ErrKeyNotExist = ebpf.ErrKeyNotExist

// ErrNotValid is returned by Read on a table that was never opened or has
// been closed.
var ErrNotValid = errors.New("bpf map is not open")

// Table is a typed read handle on a shared map.
type Table[K comparable, V any] interface {
	// Valid reports whether the handle is open and readable.
	Valid() bool
	// Read looks up key. A missing key yields an error matching ErrKeyNotExist.
	Read(key K) (V, error)
	Close() error
}

// IsValid reports whether t is non-nil and open.
func IsValid[K comparable, V any](t Table[K, V]) bool {
	return t != nil && t.Valid()
}

// ReadOrZero reads key from t and treats a missing entry as the zero value.
// Any other failure is returned unchanged.
func ReadOrZero[K comparable, V any](t Table[K, V], key K) (V, error) {
	v, err := t.Read(key)
	if err != nil {
		var zero V
		if errors.Is(err, ErrKeyNotExist) {
			return zero, nil
		}
		return zero, err
	}
	return v, nil
}

// readError wraps a lookup failure as KindReadFailed, keeping the errno
// reported by the kernel when there is one.
func readError(err error, name string) error {
	wrapped := uerrors.Wrapf(err, uerrors.KindReadFailed, "read %s", name)
	var errno unix.Errno
	switch {
	case errors.As(err, &errno):
		return uerrors.WithErrno(wrapped, errno)
	case errors.Is(err, ErrKeyNotExist):
		return uerrors.WithErrno(wrapped, unix.ENOENT)
	case errors.Is(err, ErrNotValid):
		return uerrors.WithErrno(wrapped, unix.EBADF)
	}
	return wrapped
}
