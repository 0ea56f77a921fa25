// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package platform

import (
	"golang.org/x/sys/unix"
)

// Detect derives the tier from the running kernel's release.
func Detect() (Static, KernelVersion, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return Static(TierPreS), KernelVersion{}, err
	}
	v, err := ParseKernelRelease(unix.ByteSliceToString(uts.Release[:]))
	if err != nil {
		return Static(TierPreS), KernelVersion{}, err
	}
	return Static(TierForKernel(v)), v, nil
}
