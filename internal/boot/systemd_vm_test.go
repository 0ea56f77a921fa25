// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package boot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/uidpolicy/internal/clock"
	"grimm.is/uidpolicy/internal/testutil"
)

func TestSystemdControl_SystemBus(t *testing.T) {
	testutil.RequireVM(t)

	c, err := DialSystemd(clock.RealClock{})
	require.NoError(t, err)
	defer c.Close()

	state, err := c.bus.ActiveState("dbus.service")
	require.NoError(t, err)
	assert.Equal(t, "active", state)

	assert.True(t, c.WaitForStatus("dbus.service", StatusRunning, time.Second))
	assert.False(t, c.WaitForStatus("dbus.service", StatusStopped, 300*time.Millisecond))
}
