// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netmaps

import (
	"fmt"
	"strings"
)

// Chain is a firewall chain controlled through the configuration map.
type Chain int

const (
	ChainNone Chain = iota
	ChainDozable
	ChainStandby
	ChainPowerSave
	ChainRestricted
	ChainLowPowerStandby
	ChainBackground
	ChainOEMDeny1
	ChainOEMDeny2
	ChainOEMDeny3
	ChainMeteredAllow
	ChainMeteredDenyUser
	ChainMeteredDenyAdmin
)

var chainNames = map[Chain]string{
	ChainDozable:          "dozable",
	ChainStandby:          "standby",
	ChainPowerSave:        "powersave",
	ChainRestricted:       "restricted",
	ChainLowPowerStandby:  "low_power_standby",
	ChainBackground:       "background",
	ChainOEMDeny1:         "oem_deny_1",
	ChainOEMDeny2:         "oem_deny_2",
	ChainOEMDeny3:         "oem_deny_3",
	ChainMeteredAllow:     "metered_allow",
	ChainMeteredDenyUser:  "metered_deny_user",
	ChainMeteredDenyAdmin: "metered_deny_admin",
}

func (c Chain) String() string {
	if n, ok := chainNames[c]; ok {
		return n
	}
	return fmt.Sprintf("chain(%d)", int(c))
}

// ParseChain accepts a chain name or its numeric value.
func ParseChain(s string) (Chain, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, n := range chainNames {
		if n == s || fmt.Sprint(int(c)) == s {
			return c, nil
		}
	}
	return ChainNone, fmt.Errorf("unknown firewall chain %q", s)
}

// Match returns the rule bit backing the chain.
func (c Chain) Match() (uint32, error) {
	switch c {
	case ChainDozable:
		return DozableMatch, nil
	case ChainStandby:
		return StandbyMatch, nil
	case ChainPowerSave:
		return PowerSaveMatch, nil
	case ChainRestricted:
		return RestrictedMatch, nil
	case ChainLowPowerStandby:
		return LowPowerStandbyMatch, nil
	case ChainBackground:
		return BackgroundMatch, nil
	case ChainOEMDeny1:
		return OEMDeny1Match, nil
	case ChainOEMDeny2:
		return OEMDeny2Match, nil
	case ChainOEMDeny3:
		return OEMDeny3Match, nil
	case ChainMeteredAllow:
		return HappyBoxMatch, nil
	case ChainMeteredDenyUser:
		return PenaltyBoxUserMatch, nil
	case ChainMeteredDenyAdmin:
		return PenaltyBoxAdminMatch, nil
	default:
		return NoMatch, fmt.Errorf("invalid firewall chain %d", int(c))
	}
}

// IsAllowList reports whether the chain blocks UIDs that lack its bit.
func (c Chain) IsAllowList() bool {
	switch c {
	case ChainDozable, ChainPowerSave, ChainRestricted, ChainLowPowerStandby,
		ChainBackground, ChainMeteredAllow:
		return true
	default:
		return false
	}
}

// Chains returns every valid chain in numeric order.
func Chains() []Chain {
	out := make([]Chain, 0, len(chainNames))
	for c := ChainDozable; c <= ChainMeteredDenyAdmin; c++ {
		out = append(out, c)
	}
	return out
}
