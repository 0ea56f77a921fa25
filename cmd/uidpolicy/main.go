// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command uidpolicy answers per-UID network access queries from the rule
// state shared by the kernel networking programs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/uidpolicy/internal/config"
	"grimm.is/uidpolicy/internal/dnshelper"
	"grimm.is/uidpolicy/internal/logging"
	"grimm.is/uidpolicy/internal/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	// exitBlocked is returned by check when the UID is blocked.
	exitBlocked = 3
)

const usage = `Usage: uidpolicy [-config FILE] <command> [flags]

Commands:
  serve     initialize and serve the query API
  check     decide whether a UID may use the network
  chain     show a firewall chain, or a UID's rule on it
  wait      run boot synchronization only
  version   print version and platform information
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}

// env carries what every command needs.
type env struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	configPath string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	fs := flag.NewFlagSet("uidpolicy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "Path to HCL or JSON config file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return exitUsage
	}

	e := &env{stdout: stdout, stderr: stderr, getenv: getenv, configPath: *configPath}
	cmd, cmdArgs := rest[0], rest[1:]

	var err error
	switch cmd {
	case "serve":
		err = e.runServe(ctx, cmdArgs)
	case "check":
		err = e.runCheck(ctx, cmdArgs)
	case "chain":
		err = e.runChain(ctx, cmdArgs)
	case "wait":
		err = e.runWait(ctx, cmdArgs)
	case "version":
		err = e.runVersion(cmdArgs)
	case "help", "-h", "--help":
		fs.Usage()
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return exitUsage
	}

	var ec exitCode
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ec):
		return int(ec)
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		if err != errUsage {
			fmt.Fprintf(stderr, "uidpolicy %s: %v\n", cmd, err)
		}
		return exitUsage
	default:
		fmt.Fprintf(stderr, "uidpolicy %s: %v\n", cmd, err)
		return exitFailure
	}
}

// exitCode ends a command with a specific status and no error message.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

var errUsage = errors.New("usage error")

func (e *env) loadConfig() (*config.Config, error) {
	opts := config.LoadOptions{Env: e.getenv}
	if e.configPath == "" {
		return config.FromEnv(opts)
	}
	return config.LoadFileWithOptions(e.configPath, opts)
}

// setup loads the config, installs the process logger and builds a helper.
func (e *env) setup(m *metrics.Metrics) (*config.Config, *dnshelper.Helper, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	lc := cfg.LoggerConfig()
	lc.Output = e.stderr
	logger := logging.New(lc)
	logging.SetDefault(logger)

	h, err := dnshelper.New(cfg, dnshelper.WithMetrics(m), dnshelper.WithLogger(logger.WithComponent("dnshelper")))
	if err != nil {
		return nil, nil, err
	}
	return cfg, h, nil
}

// initHelper runs initialization, bounded by timeout when positive.
func initHelper(ctx context.Context, h *dnshelper.Helper, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := h.InitContext(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("initialization did not finish within %s (state %s)", timeout, h.State())
		}
		return err
	}
	return nil
}
