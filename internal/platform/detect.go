// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package platform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// KernelVersion is a parsed kernel release.
type KernelVersion struct {
	Major, Minor, Patch int
	// Android is the GKI branch release from an "-androidNN-" suffix, or 0.
	Android int
}

var androidBranch = regexp.MustCompile(`-android(\d+)(?:-|$)`)

func (v KernelVersion) String() string {
	if v.Android != 0 {
		return fmt.Sprintf("%d.%d.%d-android%d", v.Major, v.Minor, v.Patch, v.Android)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v >= major.minor.patch.
func (v KernelVersion) AtLeast(major, minor, patch int) bool {
	if v.Major != major {
		return v.Major > major
	}
	if v.Minor != minor {
		return v.Minor > minor
	}
	return v.Patch >= patch
}

// ParseKernelRelease parses a uname release such as "5.10.199-android12-9".
func ParseKernelRelease(release string) (KernelVersion, error) {
	var v KernelVersion
	core := release
	if i := strings.IndexFunc(core, func(r rune) bool { return r != '.' && (r < '0' || r > '9') }); i >= 0 {
		core = core[:i]
	}
	parts := strings.Split(core, ".")
	if len(parts) < 2 {
		return v, fmt.Errorf("malformed kernel release %q", release)
	}
	nums := make([]int, 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return v, fmt.Errorf("malformed kernel release %q: %w", release, err)
		}
		nums[i] = n
	}
	v = KernelVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}
	if m := androidBranch.FindStringSubmatch(release); m != nil {
		v.Android, _ = strconv.Atoi(m[1])
	}
	return v, nil
}

// TierForKernel returns the highest tier whose minimum kernel v satisfies.
// T needs 4.9, U 4.14 and V 4.19; anything older can at most run the
// external-loader path. This is a heuristic for generic Linux hosts. An
// Android GKI kernel only bounds the platform release from below, so it maps
// to S and the tier should be configured explicitly.
func TierForKernel(v KernelVersion) Tier {
	switch {
	case v.Android != 0:
		return TierS
	case v.AtLeast(4, 19, 0):
		return TierV
	case v.AtLeast(4, 14, 0):
		return TierU
	case v.AtLeast(4, 9, 0):
		return TierT
	default:
		return TierS
	}
}
