// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package platform reports which behavioral tier of the host platform is
// active. Tiers are ordered; later tiers only add capabilities.
package platform

import (
	"fmt"
	"strings"
)

// Tier is an ordered platform capability level.
type Tier int

const (
	// TierPreS predates any shared-map support.
	TierPreS Tier = iota
	// TierS needs an external loader to pin the shared maps.
	TierS
	// TierT loads and pins the shared maps natively.
	TierT
	TierU
	// TierV keeps the data saver map in sync with the real data saver state.
	TierV
	TierW
)

// MinSupported is the lowest tier the policy helper can run on.
const MinSupported = TierS

var tierNames = []string{"PreS", "S", "T", "U", "V", "W"}

func (t Tier) String() string {
	if t >= 0 && int(t) < len(tierNames) {
		return tierNames[t]
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// ParseTier parses a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	s = strings.TrimSpace(s)
	for i, n := range tierNames {
		if strings.EqualFold(n, s) {
			return Tier(i), nil
		}
	}
	return TierPreS, fmt.Errorf("unknown platform tier %q (want one of %s)", s, strings.Join(tierNames, ", "))
}

// Gate answers capability questions for the running platform.
type Gate interface {
	Tier() Tier
	IsAtLeast(t Tier) bool
}

// Static is a Gate fixed at a single tier.
type Static Tier

func (s Static) Tier() Tier            { return Tier(s) }
func (s Static) IsAtLeast(t Tier) bool { return Tier(s) >= t }
