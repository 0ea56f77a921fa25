// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package boot

// State is a boot synchronization state.
type State int

const (
	// StateUnloaded: nothing has been checked or requested yet.
	StateUnloaded State = iota
	// StateTriggered: the external loader accepted a start request.
	StateTriggered
	// StatePolling: waiting for the loader to stop and the marker to appear.
	StatePolling
	// StateReady: the shared tables may be read.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateTriggered:
		return "triggered"
	case StatePolling:
		return "polling"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}
