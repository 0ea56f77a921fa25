// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/uidpolicy/internal/bpfmap"
	"grimm.is/uidpolicy/internal/netmaps"
)

func TestTablesReady(t *testing.T) {
	f := newFixture()
	assert.True(t, f.tables.Ready())
	assert.Equal(t, map[string]bool{
		TableConfiguration: true,
		TableUIDOwner:      true,
		TableDataSaver:     true,
	}, f.tables.Status())

	f.tables.SetDataSaver(nil)
	assert.True(t, f.tables.Ready(), "data saver is not needed for readiness")
	assert.False(t, f.tables.Status()[TableDataSaver])

	f.tables.SetConfiguration(nil)
	assert.False(t, f.tables.Ready())
}

func TestTablesSetClosesReplaced(t *testing.T) {
	f := newFixture()

	next := bpfmap.NewMemory[uint32, uint32](TableConfiguration)
	f.tables.SetConfiguration(next)
	assert.False(t, f.cfg.Valid(), "replaced handle is closed")
	assert.True(t, next.Valid())

	f.tables.SetConfiguration(next)
	assert.True(t, next.Valid(), "setting the same handle keeps it open")

	f.tables.SetUIDOwner(nil)
	assert.False(t, f.owner.Valid())
	f.tables.SetDataSaver(nil)
	assert.False(t, f.dataSaver.Valid())
}

func TestTablesClose(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.tables.Close())
	assert.False(t, f.cfg.Valid())
	assert.False(t, f.owner.Valid())
	assert.False(t, f.dataSaver.Valid())
	assert.False(t, f.tables.Ready())

	require.NoError(t, NewTables(nil, nil, nil).Close())
}

func TestPinnedOpenerMissingPins(t *testing.T) {
	o := PinnedOpener{Paths: netmaps.PathsUnder(t.TempDir())}

	_, err := o.OpenConfiguration()
	assert.Error(t, err)
	_, err = o.OpenUIDOwner()
	assert.Error(t, err)
	_, err = o.OpenDataSaver()
	assert.Error(t, err)
}
