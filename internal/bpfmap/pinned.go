// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package bpfmap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cilium/ebpf"
	"golang.org/x/sys/unix"

	uerrors "grimm.is/uidpolicy/internal/errors"
)

// Pinned is a read-only handle on a map pinned in bpffs.
type Pinned[K comparable, V any] struct {
	path string

	mu sync.RWMutex
	m  *ebpf.Map
}

// OpenPinned opens the map pinned at path read-only and checks that its key
// and value sizes match K and V.
func OpenPinned[K comparable, V any](path string) (*Pinned[K, V], error) {
	m, err := ebpf.LoadPinnedMap(path, &ebpf.LoadPinOptions{ReadOnly: true})
	if err != nil {
		wrapped := uerrors.Wrapf(err, uerrors.KindUnavailable, "open pinned map %s", path)
		var errno unix.Errno
		if errors.As(err, &errno) {
			wrapped = uerrors.WithErrno(wrapped, errno)
		}
		return nil, wrapped
	}

	var (
		k K
		v V
	)
	if err := checkSize("key", binary.Size(k), m.KeySize()); err != nil {
		m.Close()
		return nil, uerrors.WithErrno(uerrors.Wrapf(err, uerrors.KindValidation, "pinned map %s", path), unix.EINVAL)
	}
	if err := checkSize("value", binary.Size(v), m.ValueSize()); err != nil {
		m.Close()
		return nil, uerrors.WithErrno(uerrors.Wrapf(err, uerrors.KindValidation, "pinned map %s", path), unix.EINVAL)
	}

	return &Pinned[K, V]{path: path, m: m}, nil
}

func checkSize(what string, want int, got uint32) error {
	if want < 0 {
		return fmt.Errorf("%s type has no fixed size", what)
	}
	if uint32(want) != got {
		return fmt.Errorf("%s size mismatch: have %d bytes, map has %d", what, want, got)
	}
	return nil
}

// Path returns the pin path the map was opened from.
func (p *Pinned[K, V]) Path() string { return p.path }

// Valid reports whether the map is open.
func (p *Pinned[K, V]) Valid() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.m != nil
}

// Read looks up key in the map.
func (p *Pinned[K, V]) Read(key K) (V, error) {
	var v V
	if p == nil {
		return v, readError(ErrNotValid, "<nil>")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.m == nil {
		return v, readError(ErrNotValid, p.path)
	}
	if err := p.m.Lookup(key, &v); err != nil {
		return v, readError(err, p.path)
	}
	return v, nil
}

// Info returns the kernel's view of the map.
func (p *Pinned[K, V]) Info() (*ebpf.MapInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.m == nil {
		return nil, ErrNotValid
	}
	return p.m.Info()
}

// Close releases the map file descriptor. The pin is left in place.
func (p *Pinned[K, V]) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		return nil
	}
	err := p.m.Close()
	p.m = nil
	return err
}
