// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package boot

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"grimm.is/uidpolicy/internal/clock"
	"grimm.is/uidpolicy/internal/logging"
)

// CommandRunner runs a command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ExecControl drives the loader through the systemctl binary, for hosts
// where the system bus is not reachable.
type ExecControl struct {
	Systemctl string
	// CommandTimeout bounds each systemctl invocation.
	CommandTimeout time.Duration

	run      CommandRunner
	clock    clock.Clock
	interval time.Duration
	logger   *logging.Logger

	closed    chan struct{}
	closeOnce sync.Once
}

// NewExecControl returns an ExecControl using systemctl from PATH.
func NewExecControl(clk clock.Clock) *ExecControl {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &ExecControl{
		Systemctl:      "systemctl",
		CommandTimeout: 10 * time.Second,
		run:            runCommand,
		clock:          clk,
		interval:       DefaultPollInterval,
		logger:         logging.WithComponent("systemctl"),
		closed:         make(chan struct{}),
	}
}

func (c *ExecControl) systemctl(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.CommandTimeout)
	defer cancel()
	return c.run(ctx, c.Systemctl, args...)
}

// RequestStart queues a start job without waiting for it.
func (c *ExecControl) RequestStart(unit string) bool {
	if _, err := c.systemctl("start", "--no-block", unit); err != nil {
		c.logger.Error("systemctl start failed", "unit", unit, "error", err)
		return false
	}
	return true
}

// WaitForStatus polls "systemctl show" until the unit maps to status.
func (c *ExecControl) WaitForStatus(unit, status string, timeout time.Duration) bool {
	return pollStatus(c.clock, c.closed, c.interval, timeout, status, func() (string, error) {
		out, err := c.systemctl("show", "--property=ActiveState", "--value", unit)
		if err != nil {
			c.logger.Debug("systemctl show failed", "unit", unit, "error", err)
			return "", err
		}
		return normalizeActiveState(strings.TrimSpace(string(out))), nil
	})
}

// Close makes a WaitForStatus in progress return false.
func (c *ExecControl) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
