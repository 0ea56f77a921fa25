// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package boot

import (
	"time"

	"golang.org/x/sys/unix"

	"grimm.is/uidpolicy/internal/clock"
)

// Loader unit statuses reported by WaitForStatus.
const (
	StatusStopped  = "stopped"
	StatusRunning  = "running"
	StatusStarting = "starting"
	StatusStopping = "stopping"
)

// LoaderControl starts the external map loader and observes its status.
type LoaderControl interface {
	// RequestStart asks for unit to be started. True means the request was
	// accepted, not that the unit finished.
	RequestStart(unit string) bool
	// WaitForStatus blocks until unit reports status or timeout elapses.
	WaitForStatus(unit, status string, timeout time.Duration) bool
}

// Marker reports whether the loader left its completion marker.
type Marker interface {
	Exists() bool
}

// FileMarker is a Marker backed by a filesystem path.
type FileMarker string

// Exists reports whether the path exists, without following permissions
// beyond F_OK.
func (m FileMarker) Exists() bool {
	return unix.Access(string(m), unix.F_OK) == nil
}

// normalizeActiveState maps a systemd ActiveState onto a loader status.
func normalizeActiveState(s string) string {
	switch s {
	case "inactive", "failed":
		return StatusStopped
	case "active", "reloading", "refreshing":
		return StatusRunning
	case "activating":
		return StatusStarting
	case "deactivating":
		return StatusStopping
	default:
		return s
	}
}

// pollStatus probes every interval until the probe reports want or timeout
// elapses. Probe errors count as a non-matching status. It returns false as
// soon as done is closed.
func pollStatus(clk clock.Clock, done <-chan struct{}, interval, timeout time.Duration, want string, probe func() (string, error)) bool {
	deadline := clk.Now().Add(timeout)
	for {
		select {
		case <-done:
			return false
		default:
		}
		if st, err := probe(); err == nil && st == want {
			return true
		}
		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			return false
		}
		select {
		case <-clk.After(min(interval, remaining)):
		case <-done:
			return false
		}
	}
}
