// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netmaps

// Match bits of UIDOwnerValue.Rule and of the enabled-rules configuration word.
const (
	NoMatch              uint32 = 0
	HappyBoxMatch        uint32 = 1 << 0
	PenaltyBoxUserMatch  uint32 = 1 << 1
	DozableMatch         uint32 = 1 << 2
	StandbyMatch         uint32 = 1 << 3
	PowerSaveMatch       uint32 = 1 << 4
	RestrictedMatch      uint32 = 1 << 5
	LowPowerStandbyMatch uint32 = 1 << 6
	IIFMatch             uint32 = 1 << 7
	LockdownVPNMatch     uint32 = 1 << 8
	OEMDeny1Match        uint32 = 1 << 9
	OEMDeny2Match        uint32 = 1 << 10
	OEMDeny3Match        uint32 = 1 << 11
	BackgroundMatch      uint32 = 1 << 12
	PenaltyBoxAdminMatch uint32 = 1 << 13
)

// AllowChains are allowlist chains: an enabled chain blocks every UID that
// does not carry the chain's bit.
const AllowChains = DozableMatch | PowerSaveMatch | RestrictedMatch | LowPowerStandbyMatch | BackgroundMatch

// DenyChains are denylist chains: an enabled chain blocks UIDs carrying its bit.
const DenyChains = StandbyMatch | OEMDeny1Match | OEMDeny2Match | OEMDeny3Match

// PenaltyBoxMatches covers both forced-block data saver bits.
const PenaltyBoxMatches = PenaltyBoxUserMatch | PenaltyBoxAdminMatch

// Resolver combines the enabled-rules word with a UID's rule bits into a
// block decision for the doze, battery saver and low power standby chains.
type Resolver interface {
	Blocked(enabledRules, uidRules uint32) bool
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(enabledRules, uidRules uint32) bool

func (f ResolverFunc) Blocked(enabledRules, uidRules uint32) bool { return f(enabledRules, uidRules) }

// DefaultResolver is the resolver matching the kernel programs.
var DefaultResolver Resolver = ResolverFunc(IsBlockedByUIDRules)

// IsBlockedByUIDRules reports whether any enabled allowlist chain is missing
// from uidRules or any enabled denylist chain is present in it.
func IsBlockedByUIDRules(enabledRules, uidRules uint32) bool {
	return (enabledRules&AllowChains)&^uidRules != 0 ||
		(enabledRules&DenyChains)&uidRules != 0
}

const (
	// UserOffset separates the UID ranges of different users.
	UserOffset = 100000
	// AppStart is the first per-user application UID.
	AppStart = 10000
)

// IsSystemUID reports whether uid is a per-user system identity (root,
// system services, nobody). System UIDs are never subject to UID rules.
func IsSystemUID(uid uint32) bool {
	return uid%UserOffset < AppStart
}
