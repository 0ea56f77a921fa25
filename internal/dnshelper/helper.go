// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dnshelper is the embedding surface for a resolver: it wires the
// platform gate, boot orchestrator, shared tables and policy evaluator
// together behind one Init call and one query call.
package dnshelper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"grimm.is/uidpolicy/internal/boot"
	"grimm.is/uidpolicy/internal/clock"
	"grimm.is/uidpolicy/internal/config"
	"grimm.is/uidpolicy/internal/logging"
	"grimm.is/uidpolicy/internal/metrics"
	"grimm.is/uidpolicy/internal/netmaps"
	"grimm.is/uidpolicy/internal/platform"
	"grimm.is/uidpolicy/internal/policy"
)

// Helper answers network access queries for UIDs.
type Helper struct {
	gate         platform.Gate
	orchestrator *boot.Orchestrator
	evaluator    *policy.Evaluator
	tables       *policy.Tables
	metrics      *metrics.Metrics
	logger       *logging.Logger
	closers      []io.Closer

	mu  sync.Mutex
	run *initRun
}

// initRun is one orchestrator run shared by concurrent Init callers.
type initRun struct {
	done chan struct{}
	err  error
}

type options struct {
	gate     platform.Gate
	loader   boot.LoaderControl
	marker   boot.Marker
	opener   policy.TableOpener
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *logging.Logger
	resolver netmaps.Resolver
}

// Option customizes a Helper.
type Option func(*options)

// WithGate fixes the platform tier instead of using the config or detection.
func WithGate(g platform.Gate) Option { return func(o *options) { o.gate = g } }

// WithLoader replaces the configured loader backend.
func WithLoader(l boot.LoaderControl) Option { return func(o *options) { o.loader = l } }

// WithMarker replaces the done marker file check.
func WithMarker(m boot.Marker) Option { return func(o *options) { o.marker = m } }

// WithOpener replaces the pinned map opener.
func WithOpener(op policy.TableOpener) Option { return func(o *options) { o.opener = op } }

func WithClock(c clock.Clock) Option         { return func(o *options) { o.clock = c } }
func WithMetrics(m *metrics.Metrics) Option  { return func(o *options) { o.metrics = m } }
func WithLogger(l *logging.Logger) Option    { return func(o *options) { o.logger = l } }
func WithResolver(r netmaps.Resolver) Option { return func(o *options) { o.resolver = r } }

// New builds a Helper from cfg. Nothing is opened or started until Init.
func New(cfg *config.Config, opts ...Option) (*Helper, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.ApplyDefaults()
	o := options{clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.WithComponent("dnshelper")
	}

	h := &Helper{metrics: o.metrics, logger: o.logger}

	gate, err := resolveGate(cfg, o.gate, o.logger)
	if err != nil {
		return nil, err
	}
	h.gate = gate

	pollUnit, err := cfg.PollUnit()
	if err != nil {
		return nil, fmt.Errorf("loader poll unit: %w", err)
	}

	paths := cfg.Paths()
	if o.opener == nil {
		o.opener = policy.PinnedOpener{Paths: paths}
	}
	if o.marker == nil {
		o.marker = boot.FileMarker(paths.DoneMarker)
	}
	if o.loader == nil && !gate.IsAtLeast(platform.TierT) && gate.IsAtLeast(platform.MinSupported) {
		loader, closer, err := newLoader(cfg.Loader.Backend, o.clock)
		if err != nil {
			return nil, err
		}
		o.loader = loader
		if closer != nil {
			h.closers = append(h.closers, closer)
		}
	}

	h.tables = policy.NewTables(nil, nil, nil)
	h.orchestrator = boot.NewOrchestrator(
		boot.Config{Unit: cfg.Loader.Unit, PollUnit: pollUnit},
		boot.Deps{
			Gate:    gate,
			Loader:  o.loader,
			Marker:  o.marker,
			Opener:  o.opener,
			Tables:  h.tables,
			Metrics: o.metrics,
			Logger:  o.logger.WithComponent("boot"),
		},
	)

	evalOpts := []policy.Option{
		policy.WithMetrics(o.metrics),
		policy.WithLogger(o.logger.WithComponent("policy")),
	}
	if o.resolver != nil {
		evalOpts = append(evalOpts, policy.WithResolver(o.resolver))
	}
	h.evaluator = policy.NewEvaluator(gate, h.tables, evalOpts...)
	return h, nil
}

func resolveGate(cfg *config.Config, override platform.Gate, logger *logging.Logger) (platform.Gate, error) {
	if override != nil {
		return override, nil
	}
	tier, fixed, err := cfg.Tier()
	if err != nil {
		return nil, err
	}
	if fixed {
		return platform.Static(tier), nil
	}
	gate, kernel, err := platform.Detect()
	if err != nil {
		return nil, fmt.Errorf("detect platform tier: %w", err)
	}
	logger.Info("Detected platform tier", "tier", gate.Tier().String(), "kernel", kernel.String())
	if kernel.Android != 0 {
		logger.Warn("Android kernel release does not identify the platform tier; set platform_tier explicitly",
			"assumed", gate.Tier().String())
	}
	return gate, nil
}

func newLoader(backend string, clk clock.Clock) (boot.LoaderControl, io.Closer, error) {
	switch backend {
	case config.BackendExec:
		c := boot.NewExecControl(clk)
		return c, c, nil
	case config.BackendSystemd, "":
		c, err := boot.DialSystemd(clk)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("unknown loader backend %q", backend)
	}
}

// Init synchronizes with the map loader or opens the shared tables,
// depending on the platform tier. It may block indefinitely on tier S.
func (h *Helper) Init() error {
	return h.InitContext(context.Background())
}

// InitContext runs Init but stops waiting when ctx ends. The run keeps going
// in the background and the helper becomes ready once it finishes; a later
// call joins it. A run that failed is retried by the next call.
func (h *Helper) InitContext(ctx context.Context) error {
	r := h.startInit()
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		h.logger.Warn("Stopped waiting for initialization", "state", h.orchestrator.State().String(), "error", ctx.Err())
		return ctx.Err()
	}
}

func (h *Helper) startInit() *initRun {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r := h.run; r != nil {
		select {
		case <-r.done:
			if r.err == nil {
				return r
			}
		default:
			return r
		}
	}
	r := &initRun{done: make(chan struct{})}
	h.run = r
	go func() {
		r.err = h.orchestrator.Initialize()
		close(r.done)
	}()
	return r
}

// IsUIDNetworkingBlocked reports whether uid may not use the network.
func (h *Helper) IsUIDNetworkingBlocked(uid uint32, metered bool) (bool, error) {
	return h.evaluator.IsUIDNetworkingBlocked(uid, metered)
}

// Decide is IsUIDNetworkingBlocked with the deciding rule.
func (h *Helper) Decide(uid uint32, metered bool) (policy.Decision, error) {
	return h.evaluator.Decide(uid, metered)
}

// ChainEnabled reports whether a firewall chain is enabled.
func (h *Helper) ChainEnabled(chain netmaps.Chain) (bool, error) {
	return h.evaluator.ChainEnabled(chain)
}

// UIDRule returns uid's rule on chain.
func (h *Helper) UIDRule(chain netmaps.Chain, uid uint32) (policy.Rule, error) {
	return h.evaluator.UIDRule(chain, uid)
}

// Ready reports whether initialization completed.
func (h *Helper) Ready() bool {
	return h.orchestrator.State() == boot.StateReady
}

// State returns the boot synchronization state.
func (h *Helper) State() boot.State {
	return h.orchestrator.State()
}

// Tier returns the platform tier in use.
func (h *Helper) Tier() platform.Tier {
	return h.gate.Tier()
}

// TableStatus reports which shared tables are open.
func (h *Helper) TableStatus() map[string]bool {
	return h.tables.Status()
}

// Close stops a pending initialization and releases tables and loader
// connections. A concurrent Init returns an error matching boot.ErrStopped.
func (h *Helper) Close() error {
	h.orchestrator.Stop()
	errs := []error{h.tables.Close()}
	for _, c := range h.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
