// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package boot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/uidpolicy/internal/clock"
)

type fakeBus struct {
	mu       sync.Mutex
	startErr error
	states   []string
	probes   int
	started  []string
}

func (b *fakeBus) StartUnit(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = append(b.started, name)
	return b.startErr
}

func (b *fakeBus) ActiveState(string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := min(b.probes, len(b.states)-1)
	b.probes++
	if b.states[i] == "" {
		return "", errors.New("no such unit")
	}
	return b.states[i], nil
}

func (b *fakeBus) Probes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.probes
}

// drive advances clk by step whenever a waiter is pending, until wait
// returns.
func drive(t *testing.T, clk *clock.MockClock, step time.Duration, wait func() bool) bool {
	t.Helper()
	done := make(chan bool, 1)
	go func() { done <- wait() }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ok := <-done:
			return ok
		default:
		}
		if clk.Pending() > 0 {
			clk.Advance(step)
		} else {
			runtime.Gosched()
		}
	}
	t.Fatal("wait did not return")
	return false
}

func TestNormalizeActiveState(t *testing.T) {
	tests := map[string]string{
		"inactive":     StatusStopped,
		"failed":       StatusStopped,
		"active":       StatusRunning,
		"reloading":    StatusRunning,
		"activating":   StatusStarting,
		"deactivating": StatusStopping,
		"maintenance":  "maintenance",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeActiveState(in), in)
	}
}

func TestSystemdControl_RequestStart(t *testing.T) {
	bus := &fakeBus{states: []string{"inactive"}}
	c := newSystemdControl(bus, clock.NewMockClock(time.Unix(0, 0)))

	assert.True(t, c.RequestStart(testUnit))
	bus.startErr = errors.New("access denied")
	assert.False(t, c.RequestStart(testUnit))
	assert.Equal(t, []string{testUnit, testUnit}, bus.started)
}

func TestSystemdControl_WaitForStatus(t *testing.T) {
	t.Run("immediate", func(t *testing.T) {
		bus := &fakeBus{states: []string{"failed"}}
		c := newSystemdControl(bus, clock.NewMockClock(time.Unix(0, 0)))
		assert.True(t, c.WaitForStatus(testUnit, StatusStopped, 5*time.Second))
		assert.Equal(t, 1, bus.Probes())
	})

	t.Run("stops later", func(t *testing.T) {
		clk := clock.NewMockClock(time.Unix(0, 0))
		bus := &fakeBus{states: []string{"activating", "", "active", "deactivating", "inactive"}}
		c := newSystemdControl(bus, clk)

		ok := drive(t, clk, DefaultPollInterval, func() bool {
			return c.WaitForStatus(testUnit, StatusStopped, 5*time.Second)
		})
		assert.True(t, ok)
		assert.Equal(t, 5, bus.Probes())
	})

	t.Run("times out", func(t *testing.T) {
		clk := clock.NewMockClock(time.Unix(0, 0))
		bus := &fakeBus{states: []string{"active"}}
		c := newSystemdControl(bus, clk)

		ok := drive(t, clk, DefaultPollInterval, func() bool {
			return c.WaitForStatus(testUnit, StatusStopped, time.Second)
		})
		assert.False(t, ok)
		assert.Equal(t, 5, bus.Probes(), "probes at 0, 250, 500, 750 and 1000ms")
	})
}

func TestSystemdControl_CloseWithoutConn(t *testing.T) {
	c := newSystemdControl(&fakeBus{states: []string{"inactive"}}, nil)
	assert.NoError(t, c.Close())
}

// waitUntilPending blocks until something waits on clk.
func waitUntilPending(t *testing.T, clk *clock.MockClock) {
	t.Helper()
	require.Eventually(t, func() bool { return clk.Pending() > 0 }, 5*time.Second, time.Millisecond)
}

func TestSystemdControl_CloseEndsWait(t *testing.T) {
	clk := clock.NewMockClock(time.Unix(0, 0))
	bus := &fakeBus{states: []string{"active"}}
	c := newSystemdControl(bus, clk)

	done := make(chan bool, 1)
	go func() { done <- c.WaitForStatus(testUnit, StatusStopped, time.Minute) }()
	waitUntilPending(t, clk)

	require.NoError(t, c.Close())
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForStatus kept polling after Close")
	}
	assert.Equal(t, 1, bus.Probes())

	assert.NoError(t, c.Close())
	assert.False(t, c.WaitForStatus(testUnit, StatusRunning, time.Minute), "a closed control does not probe")
	assert.Equal(t, 1, bus.Probes())
}

type recordedCall struct {
	name string
	args []string
}

func TestExecControl(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []recordedCall
		out   = []string{"active\n", "inactive\n"}
	)
	clk := clock.NewMockClock(time.Unix(0, 0))
	c := NewExecControl(clk)
	c.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, recordedCall{name, args})
		if args[0] == "start" {
			return nil, nil
		}
		i := 0
		for _, rc := range calls {
			if rc.args[0] == "show" {
				i++
			}
		}
		return []byte(out[min(i-1, len(out)-1)]), nil
	}

	assert.True(t, c.RequestStart(testUnit))
	ok := drive(t, clk, DefaultPollInterval, func() bool {
		return c.WaitForStatus(testUnit, StatusStopped, time.Second)
	})
	assert.True(t, ok)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 3)
	assert.Equal(t, recordedCall{"systemctl", []string{"start", "--no-block", testUnit}}, calls[0])
	assert.Equal(t, recordedCall{"systemctl", []string{"show", "--property=ActiveState", "--value", testUnit}}, calls[1])
}

func TestExecControl_StartFails(t *testing.T) {
	c := NewExecControl(nil)
	c.run = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 5")
	}
	assert.False(t, c.RequestStart(testUnit))
}

func TestExecControl_CloseEndsWait(t *testing.T) {
	clk := clock.NewMockClock(time.Unix(0, 0))
	c := NewExecControl(clk)
	c.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("active\n"), nil
	}

	done := make(chan bool, 1)
	go func() { done <- c.WaitForStatus(testUnit, StatusStopped, time.Minute) }()
	waitUntilPending(t, clk)

	require.NoError(t, c.Close())
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForStatus kept polling after Close")
	}
}

func TestFileMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mainline_done")

	assert.False(t, FileMarker(path).Exists())
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	assert.True(t, FileMarker(path).Exists())
	require.NoError(t, os.Chmod(path, 0))
	assert.True(t, FileMarker(path).Exists(), "existence does not depend on permissions")
}
