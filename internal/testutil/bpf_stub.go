// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package testutil

import "testing"

// BPFFSRoot is where bpffs is expected to be mounted.
const BPFFSRoot = "/sys/fs/bpf"

// RequireBPF always skips: pinned maps only exist on Linux.
func RequireBPF(t *testing.T) {
	t.Helper()
	t.Skip("Skipping test: BPF maps require Linux")
}
