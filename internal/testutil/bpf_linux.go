// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package testutil

import (
	"testing"

	"golang.org/x/sys/unix"
)

// BPFFSRoot is where bpffs is expected to be mounted.
const BPFFSRoot = "/sys/fs/bpf"

// RequireBPF skips the test unless it runs as root with bpffs mounted, which
// is what pinning and reopening real maps needs.
func RequireBPF(t *testing.T) {
	t.Helper()
	RequireRoot(t)

	var st unix.Statfs_t
	if err := unix.Statfs(BPFFSRoot, &st); err != nil {
		t.Skipf("Skipping test: cannot stat %s: %v", BPFFSRoot, err)
	}
	if uint32(st.Type) != unix.BPF_FS_MAGIC {
		t.Skipf("Skipping test: %s is not a bpffs mount", BPFFSRoot)
	}
}
