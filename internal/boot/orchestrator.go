// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package boot establishes when the shared tables may be read. On tier S it
// starts the external loader and waits for it; from tier T on it opens the
// tables directly.
package boot

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"grimm.is/uidpolicy/internal/bpfmap"
	uerrors "grimm.is/uidpolicy/internal/errors"
	"grimm.is/uidpolicy/internal/logging"
	"grimm.is/uidpolicy/internal/metrics"
	"grimm.is/uidpolicy/internal/platform"
	"grimm.is/uidpolicy/internal/policy"
)

// ErrStopped is returned by Step and Initialize after Stop.
var ErrStopped = errors.New("boot synchronization stopped")

// Config holds the orchestrator settings.
type Config struct {
	// Unit is the loader unit started on tier S.
	Unit string
	// PollUnit is the time unit of the backoff sequence.
	PollUnit time.Duration
	// Backoff overrides DefaultBackoff(PollUnit) when non-zero.
	Backoff BackoffConfig
}

// Deps are the orchestrator's collaborators. Loader and Marker are only
// used on tier S; Opener and Tables only from tier T on.
type Deps struct {
	Gate    platform.Gate
	Loader  LoaderControl
	Marker  Marker
	Opener  policy.TableOpener
	Tables  *policy.Tables
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// Orchestrator is the boot synchronization state machine. Step and
// Initialize must be called from a single goroutine; State may be read from
// any.
type Orchestrator struct {
	cfg  Config
	deps Deps

	state   atomic.Int32
	attempt int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewOrchestrator returns an orchestrator in StateUnloaded.
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	if cfg.PollUnit <= 0 {
		cfg.PollUnit = time.Second
	}
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff = DefaultBackoff(cfg.PollUnit)
	}
	if deps.Logger == nil {
		deps.Logger = logging.WithComponent("boot")
	}
	if deps.Tables == nil {
		deps.Tables = policy.NewTables(nil, nil, nil)
	}
	return &Orchestrator{cfg: cfg, deps: deps, stop: make(chan struct{})}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Tables returns the table set filled in by initialization.
func (o *Orchestrator) Tables() *policy.Tables {
	return o.deps.Tables
}

func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	o.deps.Metrics.SetInitState(int(s))
	if prev != s {
		o.deps.Logger.Debug("Boot state changed", "from", prev.String(), "to", s.String())
	}
}

// Initialize runs Step until the orchestrator is ready or a step fails. On
// tier S it blocks until the loader completes, with no deadline.
func (o *Orchestrator) Initialize() error {
	for o.State() != StateReady {
		if err := o.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Stop makes the running Initialize return ErrStopped after its current
// step. Closing the loader control as well cuts a poll round short.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
}

func (o *Orchestrator) stopped() bool {
	select {
	case <-o.stop:
		return true
	default:
		return false
	}
}

// Step performs one state transition. In StatePolling one step is one poll
// round and may block for the current backoff delay.
func (o *Orchestrator) Step() error {
	if o.stopped() {
		return ErrStopped
	}
	gate := o.deps.Gate
	if !gate.IsAtLeast(platform.MinSupported) {
		return o.fail("tier", uerrors.WithErrno(
			uerrors.Errorf(uerrors.KindUnsupported, "unsupported before tier %s (running %s)", platform.MinSupported, gate.Tier()),
			unix.EOPNOTSUPP))
	}
	if gate.IsAtLeast(platform.TierT) {
		return o.stepNative()
	}
	return o.stepLoader()
}

func (o *Orchestrator) stepLoader() error {
	log := o.deps.Logger
	unit := o.cfg.Unit

	switch o.State() {
	case StateUnloaded:
		if o.deps.Marker.Exists() {
			log.Info("Shared tables already loaded", "tier", o.deps.Gate.Tier().String())
			o.setState(StateReady)
			return nil
		}
		log.Info("Starting external map loader", "tier", o.deps.Gate.Tier().String(), "unit", unit)
		if !o.deps.Loader.RequestStart(unit) {
			return o.fail("trigger", uerrors.WithErrno(
				uerrors.Errorf(uerrors.KindTriggerFailed, "request start of %s", unit),
				unix.ENOEXEC))
		}
		o.setState(StateTriggered)

	case StateTriggered:
		log.Info("Waiting for networking BPF programs", "unit", unit)
		o.attempt = 0
		o.setState(StatePolling)

	case StatePolling:
		o.attempt++
		delay := NextDelay(o.cfg.Backoff, o.attempt)
		o.deps.Metrics.ObservePollRound()
		if o.deps.Loader.WaitForStatus(unit, StatusStopped, delay) && o.deps.Marker.Exists() {
			log.Info("Networking BPF programs are loaded", "unit", unit, "rounds", o.attempt)
			o.setState(StateReady)
			return nil
		}
		if o.stopped() {
			return ErrStopped
		}
		log.Warn("Loader still running, still waiting",
			"unit", unit, "status", StatusStopped, "waited", delay.String(), "round", o.attempt)
	}
	return nil
}

func (o *Orchestrator) stepNative() error {
	if o.State() == StateReady {
		return nil
	}
	tables := o.deps.Tables
	opener := o.deps.Opener

	// Tables left open by an earlier partial attempt are kept.
	if !bpfmap.IsValid(tables.Configuration()) {
		cfg, err := opener.OpenConfiguration()
		if err != nil {
			return o.openFailed(policy.TableConfiguration, err)
		}
		tables.SetConfiguration(cfg)
		o.deps.Metrics.SetTableOpen(policy.TableConfiguration, true)
	}

	if !bpfmap.IsValid(tables.UIDOwner()) {
		owner, err := opener.OpenUIDOwner()
		if err != nil {
			return o.openFailed(policy.TableUIDOwner, err)
		}
		tables.SetUIDOwner(owner)
		o.deps.Metrics.SetTableOpen(policy.TableUIDOwner, true)
	}

	if !bpfmap.IsValid(tables.DataSaver()) {
		ds, err := opener.OpenDataSaver()
		if err != nil {
			return o.openFailed(policy.TableDataSaver, err)
		}
		tables.SetDataSaver(ds)
		o.deps.Metrics.SetTableOpen(policy.TableDataSaver, true)
	}

	o.deps.Logger.Info("Shared tables opened", "tier", o.deps.Gate.Tier().String())
	o.setState(StateReady)
	return nil
}

func (o *Orchestrator) openFailed(table string, err error) error {
	o.deps.Metrics.SetTableOpen(table, false)
	kind := uerrors.GetKind(err)
	if kind == uerrors.KindUnknown {
		kind = uerrors.KindUnavailable
	}
	return o.fail("open "+table, uerrors.Wrapf(err, kind, "open %s table", table))
}

func (o *Orchestrator) fail(step string, err error) error {
	o.deps.Metrics.ObserveInitError(uerrors.GetKind(err).String())
	o.deps.Logger.Error("Initialization failed", "tier", o.deps.Gate.Tier().String(), "step", step, "error", err)
	return err
}
