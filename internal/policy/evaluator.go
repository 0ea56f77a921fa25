// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package policy decides whether a UID may use the network, from the rule
// state the kernel programs share through pinned maps.
package policy

import (
	"golang.org/x/sys/unix"

	"grimm.is/uidpolicy/internal/bpfmap"
	uerrors "grimm.is/uidpolicy/internal/errors"
	"grimm.is/uidpolicy/internal/logging"
	"grimm.is/uidpolicy/internal/metrics"
	"grimm.is/uidpolicy/internal/netmaps"
	"grimm.is/uidpolicy/internal/platform"
)

// DataSaverTier is the first tier whose data saver map tracks the real data
// saver state. Below it data saver is enforced elsewhere.
const DataSaverTier = platform.TierV

// Reason names the rule that settled a decision.
type Reason string

const (
	ReasonSystemUID  Reason = "system_uid"
	ReasonUIDRules   Reason = "uid_rules"
	ReasonPenaltyBox Reason = "penalty_box"
	ReasonHappyBox   Reason = "happy_box"
	ReasonDataSaver  Reason = "data_saver"
	ReasonDefault    Reason = "default"
)

// Decision is the outcome of one evaluation.
type Decision struct {
	Blocked bool   `json:"blocked" yaml:"blocked"`
	Reason  Reason `json:"reason" yaml:"reason"`
}

// Evaluator answers per-UID block queries. It holds no mutable state of its
// own and is safe for concurrent use.
type Evaluator struct {
	gate     platform.Gate
	tables   *Tables
	resolver netmaps.Resolver
	isSystem func(uid uint32) bool
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithResolver replaces the UID rule resolver.
func WithResolver(r netmaps.Resolver) Option {
	return func(e *Evaluator) { e.resolver = r }
}

// WithSystemUIDPredicate replaces the system identity test.
func WithSystemUIDPredicate(fn func(uid uint32) bool) Option {
	return func(e *Evaluator) { e.isSystem = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator returns an evaluator reading from tables.
func NewEvaluator(gate platform.Gate, tables *Tables, opts ...Option) *Evaluator {
	e := &Evaluator{
		gate:     gate,
		tables:   tables,
		resolver: netmaps.DefaultResolver,
		isSystem: netmaps.IsSystemUID,
		logger:   logging.WithComponent("policy"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsUIDNetworkingBlocked reports whether uid is currently blocked. metered
// says whether the traffic would leave over a metered network.
func (e *Evaluator) IsUIDNetworkingBlocked(uid uint32, metered bool) (bool, error) {
	d, err := e.Decide(uid, metered)
	return d.Blocked, err
}

// Decide evaluates uid and reports which rule settled the outcome. Failures
// are never turned into a decision; callers pick their own fail posture.
func (e *Evaluator) Decide(uid uint32, metered bool) (Decision, error) {
	d, err := e.decide(uid, metered)
	if err != nil {
		e.metrics.ObserveError(uerrors.GetKind(err).String())
		e.logger.Debug("Evaluation failed", "uid", uid, "metered", metered, "error", err)
		return Decision{}, err
	}
	e.metrics.ObserveDecision(d.Blocked, string(d.Reason))
	return d, nil
}

func (e *Evaluator) decide(uid uint32, metered bool) (Decision, error) {
	if e.isSystem(uid) {
		return Decision{Blocked: false, Reason: ReasonSystemUID}, nil
	}

	if !e.tables.Ready() {
		return Decision{}, notInitialized()
	}

	enabled, err := e.tables.Configuration().Read(netmaps.UIDRulesConfigurationKey)
	if err != nil {
		return Decision{}, uerrors.Wrap(err, uerrors.KindReadFailed, "read enabled uid rules")
	}

	owner, err := bpfmap.ReadOrZero(e.tables.UIDOwner(), uid)
	if err != nil {
		return Decision{}, uerrors.Wrapf(err, uerrors.KindReadFailed, "read uid owner record for %d", uid)
	}

	if e.resolver.Blocked(enabled, owner.Rule) {
		return Decision{Blocked: true, Reason: ReasonUIDRules}, nil
	}

	if !metered || !e.gate.IsAtLeast(DataSaverTier) {
		return Decision{Blocked: false, Reason: ReasonDefault}, nil
	}

	if owner.Rule&netmaps.PenaltyBoxMatches != 0 {
		return Decision{Blocked: true, Reason: ReasonPenaltyBox}, nil
	}
	if owner.Rule&netmaps.HappyBoxMatch != 0 {
		return Decision{Blocked: false, Reason: ReasonHappyBox}, nil
	}

	ds := e.tables.DataSaver()
	if ds == nil {
		err := uerrors.New(uerrors.KindReadFailed, "read data saver state: table was never opened")
		return Decision{}, uerrors.WithErrno(err, unix.EBADF)
	}
	enabledDS, err := ds.Read(netmaps.DataSaverEnabledKey)
	if err != nil {
		return Decision{}, uerrors.Wrap(err, uerrors.KindReadFailed, "read data saver state")
	}
	return Decision{Blocked: enabledDS != 0, Reason: ReasonDataSaver}, nil
}

// Rule is a UID's effective rule on one firewall chain.
type Rule int

const (
	RuleAllow Rule = iota + 1
	RuleDeny
)

func (r Rule) String() string {
	switch r {
	case RuleAllow:
		return "allow"
	case RuleDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// ChainEnabled reports whether chain is switched on in the enabled uid rules.
func (e *Evaluator) ChainEnabled(chain netmaps.Chain) (bool, error) {
	match, err := e.chainPrecheck(chain)
	if err != nil {
		return false, err
	}
	enabled, err := e.tables.Configuration().Read(netmaps.UIDRulesConfigurationKey)
	if err != nil {
		return false, uerrors.Wrap(err, uerrors.KindReadFailed, "read enabled uid rules")
	}
	return enabled&match != 0, nil
}

// UIDRule returns the rule uid has on chain. On an allowlist chain a UID
// carrying the chain bit is allowed; on a denylist chain it is denied.
func (e *Evaluator) UIDRule(chain netmaps.Chain, uid uint32) (Rule, error) {
	match, err := e.chainPrecheck(chain)
	if err != nil {
		return 0, err
	}
	owner, err := bpfmap.ReadOrZero(e.tables.UIDOwner(), uid)
	if err != nil {
		return 0, uerrors.Wrapf(err, uerrors.KindReadFailed, "read uid owner record for %d", uid)
	}
	if (owner.Rule&match != 0) == chain.IsAllowList() {
		return RuleAllow, nil
	}
	return RuleDeny, nil
}

func (e *Evaluator) chainPrecheck(chain netmaps.Chain) (uint32, error) {
	if !e.gate.IsAtLeast(platform.TierT) {
		err := uerrors.Errorf(uerrors.KindUnsupported, "firewall chain state needs tier T or later (running %s)", e.gate.Tier())
		return 0, uerrors.WithErrno(err, unix.EOPNOTSUPP)
	}
	match, err := chain.Match()
	if err != nil {
		return 0, uerrors.WithErrno(uerrors.Wrap(err, uerrors.KindValidation, "resolve chain"), unix.EINVAL)
	}
	if !e.tables.Ready() {
		return 0, notInitialized()
	}
	return match, nil
}

func notInitialized() error {
	err := uerrors.New(uerrors.KindNotInitialized, "shared tables are not open; run initialization first")
	return uerrors.WithErrno(err, unix.EUNATCH)
}
