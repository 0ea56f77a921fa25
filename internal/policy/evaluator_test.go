// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"grimm.is/uidpolicy/internal/bpfmap"
	uerrors "grimm.is/uidpolicy/internal/errors"
	"grimm.is/uidpolicy/internal/metrics"
	"grimm.is/uidpolicy/internal/netmaps"
	"grimm.is/uidpolicy/internal/platform"
)

const appUID = 10123

type fixture struct {
	cfg       *bpfmap.Memory[uint32, uint32]
	owner     *bpfmap.Memory[uint32, netmaps.UIDOwnerValue]
	dataSaver *bpfmap.Memory[uint32, uint8]
	tables    *Tables
}

func newFixture() *fixture {
	f := &fixture{
		cfg:       bpfmap.NewMemory[uint32, uint32](TableConfiguration),
		owner:     bpfmap.NewMemory[uint32, netmaps.UIDOwnerValue](TableUIDOwner),
		dataSaver: bpfmap.NewMemory[uint32, uint8](TableDataSaver),
	}
	f.cfg.Set(netmaps.UIDRulesConfigurationKey, 0)
	f.dataSaver.Set(netmaps.DataSaverEnabledKey, 0)
	f.tables = NewTables(f.cfg, f.owner, f.dataSaver)
	return f
}

func (f *fixture) enable(mask uint32) *fixture {
	f.cfg.Set(netmaps.UIDRulesConfigurationKey, mask)
	return f
}

func (f *fixture) rule(uid, rule uint32) *fixture {
	f.owner.Set(uid, netmaps.UIDOwnerValue{Rule: rule})
	return f
}

func (f *fixture) dataSaverOn(on bool) *fixture {
	var v uint8
	if on {
		v = 1
	}
	f.dataSaver.Set(netmaps.DataSaverEnabledKey, v)
	return f
}

func (f *fixture) evaluator(tier platform.Tier, opts ...Option) *Evaluator {
	return NewEvaluator(platform.Static(tier), f.tables, opts...)
}

func TestSystemUIDsNeverBlocked(t *testing.T) {
	f := newFixture().enable(netmaps.DozableMatch | netmaps.StandbyMatch).dataSaverOn(true)
	for _, uid := range []uint32{0, 1000, 1051, 9999, 100000, 101000, 109999} {
		f.rule(uid, netmaps.StandbyMatch|netmaps.PenaltyBoxAdminMatch)
	}
	ev := f.evaluator(platform.TierV)

	for _, uid := range []uint32{0, 1000, 1051, 9999, 100000, 101000, 109999} {
		blocked, err := ev.IsUIDNetworkingBlocked(uid, true)
		require.NoError(t, err, "uid %d", uid)
		assert.False(t, blocked, "uid %d", uid)
	}
	assert.Zero(t, f.cfg.Reads(), "system uids are decided before any table read")
	assert.Zero(t, f.owner.Reads())

	// Readiness does not matter for system identities either.
	notReady := NewEvaluator(platform.Static(platform.TierV), NewTables(nil, nil, nil))
	blocked, err := notReady.IsUIDNetworkingBlocked(0, true)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestNotInitialized(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"no tables", func(f *fixture) { f.tables = NewTables(nil, nil, nil) }},
		{"configuration closed", func(f *fixture) { f.cfg.SetValid(false) }},
		{"uid owner missing", func(f *fixture) { f.tables.SetUIDOwner(nil) }},
		{"uid owner closed", func(f *fixture) { _ = f.owner.Close() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			ev := f.evaluator(platform.TierV)

			for _, uid := range []uint32{10000, appUID, 110123} {
				blocked, err := ev.IsUIDNetworkingBlocked(uid, false)
				require.Error(t, err)
				assert.False(t, blocked)
				assert.True(t, errors.Is(err, ErrNotInitialized))
				errno, ok := uerrors.Errno(err)
				require.True(t, ok)
				assert.Equal(t, unix.EUNATCH, errno)
			}
			assert.Zero(t, f.cfg.Reads(), "no reads while not ready")
		})
	}
}

func TestPartialInitKeepsWorking(t *testing.T) {
	f := newFixture()
	f.tables.SetDataSaver(nil)
	ev := f.evaluator(platform.TierV)

	blocked, err := ev.IsUIDNetworkingBlocked(appUID, false)
	require.NoError(t, err)
	assert.False(t, blocked)

	_, err = ev.IsUIDNetworkingBlocked(appUID, true)
	assert.True(t, errors.Is(err, ErrReadFailed))
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		tier      platform.Tier
		enabled   uint32
		uidRule   uint32
		dataSaver bool
		metered   bool
		want      Decision
	}{
		{"nothing enabled", platform.TierV, 0, 0, false, false, Decision{false, ReasonDefault}},
		{"nothing enabled metered", platform.TierV, 0, 0, false, true, Decision{false, ReasonDataSaver}},
		{"doze blocks non allowlisted", platform.TierV, netmaps.DozableMatch, 0, false, false, Decision{true, ReasonUIDRules}},
		{"doze allowlisted", platform.TierV, netmaps.DozableMatch, netmaps.DozableMatch, false, false, Decision{false, ReasonDefault}},
		{"standby denylisted", platform.TierT, netmaps.StandbyMatch, netmaps.StandbyMatch, false, false, Decision{true, ReasonUIDRules}},
		{"standby enabled not listed", platform.TierT, netmaps.StandbyMatch, 0, false, false, Decision{false, ReasonDefault}},
		{"uid rules win over happy box", platform.TierV, netmaps.OEMDeny2Match, netmaps.OEMDeny2Match | netmaps.HappyBoxMatch, false, true, Decision{true, ReasonUIDRules}},
		{"uid rules ignore metered flag", platform.TierV, netmaps.BackgroundMatch, 0, false, false, Decision{true, ReasonUIDRules}},
		{"penalty box admin", platform.TierV, 0, netmaps.PenaltyBoxAdminMatch, false, true, Decision{true, ReasonPenaltyBox}},
		{"penalty box user", platform.TierW, 0, netmaps.PenaltyBoxUserMatch, false, true, Decision{true, ReasonPenaltyBox}},
		{"penalty box unmetered", platform.TierV, 0, netmaps.PenaltyBoxAdminMatch, true, false, Decision{false, ReasonDefault}},
		{"penalty box beats happy box", platform.TierV, 0, netmaps.PenaltyBoxUserMatch | netmaps.HappyBoxMatch, false, true, Decision{true, ReasonPenaltyBox}},
		{"happy box beats data saver", platform.TierV, 0, netmaps.HappyBoxMatch, true, true, Decision{false, ReasonHappyBox}},
		{"data saver on", platform.TierV, 0, 0, true, true, Decision{true, ReasonDataSaver}},
		{"data saver off", platform.TierV, 0, 0, false, true, Decision{false, ReasonDataSaver}},
		{"data saver unmetered", platform.TierV, 0, 0, true, false, Decision{false, ReasonDefault}},
		{"penalty box below data saver tier", platform.TierU, 0, netmaps.PenaltyBoxAdminMatch, true, true, Decision{false, ReasonDefault}},
		{"irrelevant bits", platform.TierV, 0, netmaps.IIFMatch | netmaps.LockdownVPNMatch, false, true, Decision{false, ReasonDataSaver}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture().enable(tt.enabled).dataSaverOn(tt.dataSaver)
			if tt.uidRule != 0 {
				f.rule(appUID, tt.uidRule)
			}
			got, err := f.evaluator(tt.tier).Decide(appUID, tt.metered)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDataSaverNotReadBelowTier(t *testing.T) {
	for _, tier := range []platform.Tier{platform.TierS, platform.TierT, platform.TierU} {
		t.Run(tier.String(), func(t *testing.T) {
			f := newFixture().enable(netmaps.StandbyMatch).dataSaverOn(true)
			blocked, err := f.evaluator(tier).IsUIDNetworkingBlocked(appUID, true)
			require.NoError(t, err)
			assert.False(t, blocked)
			assert.Zero(t, f.dataSaver.Reads())
		})
	}
}

func TestDataSaverReadOnlyWhenNeeded(t *testing.T) {
	f := newFixture().dataSaverOn(true).rule(appUID, netmaps.HappyBoxMatch)
	ev := f.evaluator(platform.TierV)

	_, err := ev.IsUIDNetworkingBlocked(appUID, true)
	require.NoError(t, err)
	_, err = ev.IsUIDNetworkingBlocked(appUID, false)
	require.NoError(t, err)
	assert.Zero(t, f.dataSaver.Reads())

	blocked, err := ev.IsUIDNetworkingBlocked(appUID+1, true)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, int64(1), f.dataSaver.Reads())
}

func TestMissingUIDRecordIsZero(t *testing.T) {
	f := newFixture().enable(netmaps.PowerSaveMatch)
	blocked, err := f.evaluator(platform.TierV).IsUIDNetworkingBlocked(appUID, false)
	require.NoError(t, err)
	assert.True(t, blocked, "missing record means no allowlist bits")
	assert.Equal(t, int64(1), f.owner.Reads())
}

func TestReadFailures(t *testing.T) {
	tests := []struct {
		name    string
		metered bool
		fail    func(f *fixture)
		errno   unix.Errno
	}{
		{"configuration", false, func(f *fixture) { f.cfg.FailReads(unix.EPERM) }, unix.EPERM},
		{"configuration key missing", false, func(f *fixture) { f.cfg.Delete(netmaps.UIDRulesConfigurationKey) }, unix.ENOENT},
		{"uid owner", false, func(f *fixture) { f.owner.FailReads(unix.EIO) }, unix.EIO},
		{"data saver", true, func(f *fixture) { f.dataSaver.FailReads(unix.EACCES) }, unix.EACCES},
		{"data saver closed", true, func(f *fixture) { f.dataSaver.SetValid(false) }, unix.EBADF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture().dataSaverOn(true)
			tt.fail(f)

			blocked, err := f.evaluator(platform.TierV).IsUIDNetworkingBlocked(appUID, tt.metered)
			require.Error(t, err)
			assert.False(t, blocked)
			assert.True(t, errors.Is(err, ErrReadFailed))
			assert.False(t, errors.Is(err, ErrNotInitialized))
			errno, ok := uerrors.Errno(err)
			require.True(t, ok)
			assert.Equal(t, tt.errno, errno)
		})
	}
}

func TestInjectedStrategies(t *testing.T) {
	f := newFixture()
	var seen [2]uint32
	resolver := netmaps.ResolverFunc(func(enabled, uidRules uint32) bool {
		seen = [2]uint32{enabled, uidRules}
		return uidRules&netmaps.IIFMatch != 0
	})
	f.enable(0xabc).rule(appUID, netmaps.IIFMatch)

	ev := f.evaluator(platform.TierV,
		WithResolver(resolver),
		WithSystemUIDPredicate(func(uid uint32) bool { return uid == 42 }),
	)

	blocked, err := ev.IsUIDNetworkingBlocked(appUID, false)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, [2]uint32{0xabc, netmaps.IIFMatch}, seen)

	blocked, err = ev.IsUIDNetworkingBlocked(42, false)
	require.NoError(t, err)
	assert.False(t, blocked)

	f.rule(0, netmaps.IIFMatch)
	blocked, err = ev.IsUIDNetworkingBlocked(0, false)
	require.NoError(t, err)
	assert.True(t, blocked, "uid 0 is only special under the default predicate")
}

func TestDecideMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	f := newFixture().enable(netmaps.DozableMatch)
	ev := f.evaluator(platform.TierV, WithMetrics(m))

	_, _ = ev.Decide(appUID, false)
	_, _ = ev.Decide(0, false)
	f.cfg.FailReads(unix.EIO)
	_, _ = ev.Decide(appUID, false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Decisions.WithLabelValues("blocked")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Decisions.WithLabelValues("allowed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Decisions.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Errors.WithLabelValues("read_failed")))
}

func TestChainEnabled(t *testing.T) {
	f := newFixture().enable(netmaps.DozableMatch | netmaps.HappyBoxMatch)
	ev := f.evaluator(platform.TierT)

	for _, c := range netmaps.Chains() {
		got, err := ev.ChainEnabled(c)
		require.NoError(t, err)
		want := c == netmaps.ChainDozable || c == netmaps.ChainMeteredAllow
		assert.Equal(t, want, got, c.String())
	}

	_, err := ev.ChainEnabled(netmaps.ChainNone)
	require.Error(t, err)
	assert.Equal(t, uerrors.KindValidation, uerrors.GetKind(err))
}

func TestUIDRule(t *testing.T) {
	f := newFixture().rule(appUID, netmaps.DozableMatch|netmaps.StandbyMatch)
	ev := f.evaluator(platform.TierU)

	tests := []struct {
		chain netmaps.Chain
		uid   uint32
		want  Rule
	}{
		{netmaps.ChainDozable, appUID, RuleAllow},
		{netmaps.ChainPowerSave, appUID, RuleDeny},
		{netmaps.ChainStandby, appUID, RuleDeny},
		{netmaps.ChainOEMDeny1, appUID, RuleAllow},
		{netmaps.ChainDozable, appUID + 1, RuleDeny},
		{netmaps.ChainStandby, appUID + 1, RuleAllow},
		{netmaps.ChainMeteredAllow, appUID + 1, RuleDeny},
		{netmaps.ChainMeteredDenyAdmin, appUID + 1, RuleAllow},
	}
	for _, tt := range tests {
		got, err := ev.UIDRule(tt.chain, tt.uid)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s uid %d", tt.chain, tt.uid)
	}
}

func TestChainQueriesNeedTierT(t *testing.T) {
	ev := newFixture().evaluator(platform.TierS)

	_, err := ev.ChainEnabled(netmaps.ChainDozable)
	assert.True(t, errors.Is(err, ErrUnsupported))
	_, err = ev.UIDRule(netmaps.ChainDozable, appUID)
	assert.True(t, errors.Is(err, ErrUnsupported))
	errno, _ := uerrors.Errno(err)
	assert.Equal(t, unix.EOPNOTSUPP, errno)

	notReady := NewEvaluator(platform.Static(platform.TierT), NewTables(nil, nil, nil))
	_, err = notReady.ChainEnabled(netmaps.ChainDozable)
	assert.True(t, errors.Is(err, ErrNotInitialized))
}

func TestRuleString(t *testing.T) {
	assert.Equal(t, "allow", RuleAllow.String())
	assert.Equal(t, "deny", RuleDeny.String())
	assert.Equal(t, "unknown", Rule(0).String())
}
