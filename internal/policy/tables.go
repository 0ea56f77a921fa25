// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"errors"
	"sync"

	"grimm.is/uidpolicy/internal/bpfmap"
	"grimm.is/uidpolicy/internal/netmaps"
)

type (
	// ConfigurationTable maps configuration keys to 32-bit flag words.
	ConfigurationTable = bpfmap.Table[uint32, uint32]
	// UIDOwnerTable maps a UID to its rule record.
	UIDOwnerTable = bpfmap.Table[uint32, netmaps.UIDOwnerValue]
	// DataSaverTable holds the data saver flag as a one-byte boolean.
	DataSaverTable = bpfmap.Table[uint32, uint8]
)

// Table names used in logs and metrics.
const (
	TableConfiguration = "configuration"
	TableUIDOwner      = "uid_owner"
	TableDataSaver     = "data_saver_enabled"
)

// Tables holds the shared table handles. Each handle is independent: a
// partially initialized set is valid and readiness is judged per table.
type Tables struct {
	mu            sync.RWMutex
	configuration ConfigurationTable
	uidOwner      UIDOwnerTable
	dataSaver     DataSaverTable
}

// NewTables returns a set with the given handles; any of them may be nil.
func NewTables(cfg ConfigurationTable, uidOwner UIDOwnerTable, dataSaver DataSaverTable) *Tables {
	return &Tables{configuration: cfg, uidOwner: uidOwner, dataSaver: dataSaver}
}

func (t *Tables) Configuration() ConfigurationTable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.configuration
}

func (t *Tables) UIDOwner() UIDOwnerTable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.uidOwner
}

func (t *Tables) DataSaver() DataSaverTable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dataSaver
}

func (t *Tables) SetConfiguration(tbl ConfigurationTable) {
	t.mu.Lock()
	prev := t.configuration
	t.configuration = tbl
	t.mu.Unlock()
	closeReplaced(prev, tbl)
}

func (t *Tables) SetUIDOwner(tbl UIDOwnerTable) {
	t.mu.Lock()
	prev := t.uidOwner
	t.uidOwner = tbl
	t.mu.Unlock()
	closeReplaced(prev, tbl)
}

func (t *Tables) SetDataSaver(tbl DataSaverTable) {
	t.mu.Lock()
	prev := t.dataSaver
	t.dataSaver = tbl
	t.mu.Unlock()
	closeReplaced(prev, tbl)
}

// closeReplaced closes a handle that a setter swapped out.
func closeReplaced[K comparable, V any](prev, next bpfmap.Table[K, V]) {
	if prev != nil && prev != next {
		_ = prev.Close()
	}
}

// Ready reports whether the tables every evaluation needs are open.
func (t *Tables) Ready() bool {
	return bpfmap.IsValid(t.Configuration()) && bpfmap.IsValid(t.UIDOwner())
}

// Status reports per-table validity keyed by table name.
func (t *Tables) Status() map[string]bool {
	return map[string]bool{
		TableConfiguration: bpfmap.IsValid(t.Configuration()),
		TableUIDOwner:      bpfmap.IsValid(t.UIDOwner()),
		TableDataSaver:     bpfmap.IsValid(t.DataSaver()),
	}
}

// Close closes every open handle.
func (t *Tables) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.configuration != nil {
		errs = append(errs, t.configuration.Close())
	}
	if t.uidOwner != nil {
		errs = append(errs, t.uidOwner.Close())
	}
	if t.dataSaver != nil {
		errs = append(errs, t.dataSaver.Close())
	}
	return errors.Join(errs...)
}

// TableOpener opens the shared tables.
type TableOpener interface {
	OpenConfiguration() (ConfigurationTable, error)
	OpenUIDOwner() (UIDOwnerTable, error)
	OpenDataSaver() (DataSaverTable, error)
}

// PinnedOpener opens the tables from their bpffs pins.
type PinnedOpener struct {
	Paths netmaps.Paths
}

func (o PinnedOpener) OpenConfiguration() (ConfigurationTable, error) {
	return bpfmap.OpenPinned[uint32, uint32](o.Paths.Configuration)
}

func (o PinnedOpener) OpenUIDOwner() (UIDOwnerTable, error) {
	return bpfmap.OpenPinned[uint32, netmaps.UIDOwnerValue](o.Paths.UIDOwner)
}

func (o PinnedOpener) OpenDataSaver() (DataSaverTable, error) {
	return bpfmap.OpenPinned[uint32, uint8](o.Paths.DataSaverEnabled)
}
