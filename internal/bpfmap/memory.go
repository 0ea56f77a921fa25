// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package bpfmap

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Memory is an in-memory Table. It counts reads and can be made invalid or
// failing, which is what tests and the simulator need from a shared map.
type Memory[K comparable, V any] struct {
	name string

	mu      sync.RWMutex
	entries map[K]V
	valid   bool
	failErr error

	reads atomic.Int64
}

// NewMemory returns a valid, empty table.
func NewMemory[K comparable, V any](name string) *Memory[K, V] {
	return &Memory[K, V]{
		name:    name,
		entries: make(map[K]V),
		valid:   true,
	}
}

// Set stores value under key.
func (m *Memory[K, V]) Set(key K, value V) *Memory[K, V] {
	m.mu.Lock()
	m.entries[key] = value
	m.mu.Unlock()
	return m
}

// Delete removes key.
func (m *Memory[K, V]) Delete(key K) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// SetValid marks the table open or closed.
func (m *Memory[K, V]) SetValid(valid bool) {
	m.mu.Lock()
	m.valid = valid
	m.mu.Unlock()
}

// FailReads makes every following Read fail with err; nil restores reads.
func (m *Memory[K, V]) FailReads(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Reads returns how many times Read was called.
func (m *Memory[K, V]) Reads() int64 {
	return m.reads.Load()
}

// Valid reports whether the table is open.
func (m *Memory[K, V]) Valid() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.valid
}

// Read looks up key.
func (m *Memory[K, V]) Read(key K) (V, error) {
	m.reads.Add(1)

	var zero V
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.valid {
		return zero, readError(ErrNotValid, m.name)
	}
	if m.failErr != nil {
		return zero, readError(m.failErr, m.name)
	}
	v, ok := m.entries[key]
	if !ok {
		return zero, readError(fmt.Errorf("key %v: %w", key, ErrKeyNotExist), m.name)
	}
	return v, nil
}

// Close marks the table invalid.
func (m *Memory[K, V]) Close() error {
	m.SetValid(false)
	return nil
}
