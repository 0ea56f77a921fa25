// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package boot

import (
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"grimm.is/uidpolicy/internal/clock"
	"grimm.is/uidpolicy/internal/logging"
)

const (
	systemdDest      = "org.freedesktop.systemd1"
	systemdPath      = dbus.ObjectPath("/org/freedesktop/systemd1")
	systemdManager   = "org.freedesktop.systemd1.Manager"
	systemdUnitIface = "org.freedesktop.systemd1.Unit"
)

// DefaultPollInterval is how often loader backends re-read the unit status
// inside one WaitForStatus call.
const DefaultPollInterval = 250 * time.Millisecond

// unitBus is the part of systemd's D-Bus API the loader needs.
type unitBus interface {
	StartUnit(name string) error
	ActiveState(name string) (string, error)
}

// dbusUnits talks to systemd over a D-Bus connection.
type dbusUnits struct {
	conn *dbus.Conn
}

func (d dbusUnits) StartUnit(name string) error {
	var job dbus.ObjectPath
	obj := d.conn.Object(systemdDest, systemdPath)
	return obj.Call(systemdManager+".StartUnit", 0, name, "replace").Store(&job)
}

func (d dbusUnits) ActiveState(name string) (string, error) {
	var unitPath dbus.ObjectPath
	mgr := d.conn.Object(systemdDest, systemdPath)
	if err := mgr.Call(systemdManager+".LoadUnit", 0, name).Store(&unitPath); err != nil {
		return "", err
	}
	v, err := d.conn.Object(systemdDest, unitPath).GetProperty(systemdUnitIface + ".ActiveState")
	if err != nil {
		return "", err
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected ActiveState type %T", v.Value())
	}
	return s, nil
}

// SystemdControl drives the loader as a systemd unit over the system bus.
type SystemdControl struct {
	bus      unitBus
	conn     *dbus.Conn
	clock    clock.Clock
	interval time.Duration
	logger   *logging.Logger

	closed    chan struct{}
	closeOnce sync.Once
}

// DialSystemd connects to the system bus.
func DialSystemd(clk clock.Clock) (*SystemdControl, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	c := newSystemdControl(dbusUnits{conn: conn}, clk)
	c.conn = conn
	return c, nil
}

func newSystemdControl(bus unitBus, clk clock.Clock) *SystemdControl {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &SystemdControl{
		bus:      bus,
		clock:    clk,
		interval: DefaultPollInterval,
		logger:   logging.WithComponent("systemd"),
		closed:   make(chan struct{}),
	}
}

// RequestStart queues a start job for unit.
func (c *SystemdControl) RequestStart(unit string) bool {
	if err := c.bus.StartUnit(unit); err != nil {
		c.logger.Error("StartUnit failed", "unit", unit, "error", err)
		return false
	}
	return true
}

// WaitForStatus polls the unit's ActiveState until it maps to status.
func (c *SystemdControl) WaitForStatus(unit, status string, timeout time.Duration) bool {
	return pollStatus(c.clock, c.closed, c.interval, timeout, status, func() (string, error) {
		s, err := c.bus.ActiveState(unit)
		if err != nil {
			c.logger.Debug("ActiveState lookup failed", "unit", unit, "error", err)
			return "", err
		}
		return normalizeActiveState(s), nil
	})
}

// Close releases the bus connection. A WaitForStatus in progress returns
// false.
func (c *SystemdControl) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
