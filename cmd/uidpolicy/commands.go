// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"grimm.is/uidpolicy/internal/api"
	"grimm.is/uidpolicy/internal/logging"
	"grimm.is/uidpolicy/internal/metrics"
	"grimm.is/uidpolicy/internal/netmaps"
	"grimm.is/uidpolicy/internal/platform"
)

func (e *env) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

func (e *env) runServe(ctx context.Context, args []string) error {
	fs := e.flagSet("serve")
	listen := fs.String("listen", "", "Override the API listen address")
	initTimeout := fs.Duration("init-timeout", 0, "Give up if initialization takes longer (0 waits forever)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics()
	if err := m.Register(reg); err != nil {
		return err
	}

	cfg, h, err := e.setup(m)
	if err != nil {
		return err
	}
	defer h.Close()

	for _, req := range platform.VerifyRequirements(platform.DefaultProcRoot, cfg.BPFRoot) {
		logging.Warn("Host requirement not met", "feature", req.Feature, "message", req.Message, "fatal", req.Fatal)
	}

	addr := cfg.API.Listen
	if *listen != "" {
		addr = *listen
	}

	srv := api.NewServer(api.ServerOptions{Querier: h, Gatherer: reg})
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Serve(ctx, addr) }()

	initErr := make(chan error, 1)
	go func() { initErr <- initHelper(ctx, h, *initTimeout) }()

	for {
		select {
		case err := <-initErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				cancel()
				<-srvErr
				return err
			}
			initErr = nil
		case err := <-srvErr:
			return err
		}
	}
}

func (e *env) runCheck(ctx context.Context, args []string) error {
	fs := e.flagSet("check")
	uid := fs.Int64("uid", -1, "UID to check (required)")
	metered := fs.Bool("metered", false, "Evaluate for a metered network")
	output := fs.String("o", "text", "Output format: text, json or yaml")
	initTimeout := fs.Duration("init-timeout", 30*time.Second, "Give up if initialization takes longer (0 waits forever)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *uid < 0 || *uid > int64(^uint32(0)) {
		fmt.Fprintln(e.stderr, "check: -uid must be a 32-bit unsigned UID")
		return errUsage
	}
	format, err := parseFormat(*output)
	if err != nil {
		return err
	}

	_, h, err := e.setup(nil)
	if err != nil {
		return err
	}
	defer h.Close()
	if err := initHelper(ctx, h, *initTimeout); err != nil {
		return err
	}

	d, err := h.Decide(uint32(*uid), *metered)
	if err != nil {
		return err
	}
	res := checkResult{UID: uint32(*uid), Metered: *metered, Blocked: d.Blocked, Reason: string(d.Reason)}
	if err := writeOutput(e.stdout, format, res); err != nil {
		return err
	}
	if d.Blocked {
		return exitCode(exitBlocked)
	}
	return nil
}

func (e *env) runChain(ctx context.Context, args []string) error {
	fs := e.flagSet("chain")
	uid := fs.Int64("uid", -1, "Show this UID's rule on the chain")
	output := fs.String("o", "text", "Output format: text, json or yaml")
	initTimeout := fs.Duration("init-timeout", 30*time.Second, "Give up if initialization takes longer (0 waits forever)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var chains []netmaps.Chain
	switch fs.NArg() {
	case 0:
		chains = netmaps.Chains()
	case 1:
		c, err := netmaps.ParseChain(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(e.stderr, err)
			return errUsage
		}
		chains = []netmaps.Chain{c}
	default:
		fmt.Fprintln(e.stderr, "chain: at most one chain name")
		return errUsage
	}
	if *uid > int64(^uint32(0)) {
		fmt.Fprintln(e.stderr, "chain: -uid must be a 32-bit unsigned UID")
		return errUsage
	}
	format, err := parseFormat(*output)
	if err != nil {
		return err
	}

	_, h, err := e.setup(nil)
	if err != nil {
		return err
	}
	defer h.Close()
	if err := initHelper(ctx, h, *initTimeout); err != nil {
		return err
	}

	results := make([]chainResult, 0, len(chains))
	for _, c := range chains {
		res := chainResult{Chain: c.String(), AllowList: c.IsAllowList()}
		enabled, err := h.ChainEnabled(c)
		if err != nil {
			return fmt.Errorf("chain %s: %w", c, err)
		}
		res.Enabled = enabled
		if *uid >= 0 {
			u := uint32(*uid)
			rule, err := h.UIDRule(c, u)
			if err != nil {
				return fmt.Errorf("chain %s uid %d: %w", c, u, err)
			}
			res.UID = &u
			res.Rule = rule.String()
		}
		results = append(results, res)
	}
	return writeOutput(e.stdout, format, results)
}

func (e *env) runWait(ctx context.Context, args []string) error {
	fs := e.flagSet("wait")
	timeout := fs.Duration("timeout", 0, "Give up after this long (0 waits forever)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	_, h, err := e.setup(nil)
	if err != nil {
		return err
	}
	defer h.Close()

	start := time.Now()
	if err := initHelper(ctx, h, *timeout); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "ready: tier %s, state %s, took %s\n", h.Tier(), h.State(), time.Since(start).Round(time.Millisecond))
	return nil
}

func (e *env) runVersion(args []string) error {
	fs := e.flagSet("version")
	output := fs.String("o", "text", "Output format: text, json or yaml")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	format, err := parseFormat(*output)
	if err != nil {
		return err
	}

	info := versionInfo{
		Version:   version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if gate, kernel, err := platform.Detect(); err == nil {
		info.Kernel = kernel.String()
		info.DetectedTier = gate.Tier().String()
	}
	bpfRoot := netmaps.DefaultRoot
	if cfg, err := e.loadConfig(); err == nil {
		bpfRoot = cfg.BPFRoot
	}
	info.Requirements = platform.VerifyRequirements(platform.DefaultProcRoot, bpfRoot)
	return writeOutput(e.stdout, format, info)
}
