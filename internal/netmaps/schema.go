// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netmaps describes the layout of the maps shared between the
// kernel-side netd programs and user space: pin paths, keys, value records
// and the per-UID match bits. The bit positions are a wire contract with the
// kernel programs and must not be renumbered.
package netmaps

import "path/filepath"

// DefaultRoot is the bpffs directory the netd maps are pinned under.
const DefaultRoot = "/sys/fs/bpf/netd_shared"

// Pinned map file names, relative to the root.
const (
	ConfigurationMapName    = "map_netd_configuration_map"
	UIDOwnerMapName         = "map_netd_uid_owner_map"
	DataSaverEnabledMapName = "map_netd_data_saver_enabled_map"

	// DoneMarkerName is created by the loader once every map is pinned.
	DoneMarkerName = "mainline_done"
)

// Configuration map keys.
const (
	UIDRulesConfigurationKey        uint32 = 0
	CurrentStatsMapConfigurationKey uint32 = 1
)

// DataSaverEnabledKey is the only key of the data saver map.
const DataSaverEnabledKey uint32 = 0

// Paths holds the absolute pin paths of the shared maps.
type Paths struct {
	Configuration    string
	UIDOwner         string
	DataSaverEnabled string
	DoneMarker       string
}

// PathsUnder returns the pin paths for maps pinned below root.
func PathsUnder(root string) Paths {
	if root == "" {
		root = DefaultRoot
	}
	return Paths{
		Configuration:    filepath.Join(root, ConfigurationMapName),
		UIDOwner:         filepath.Join(root, UIDOwnerMapName),
		DataSaverEnabled: filepath.Join(root, DataSaverEnabledMapName),
		DoneMarker:       filepath.Join(root, DoneMarkerName),
	}
}

// UIDOwnerValue is the value record of the uid owner map.
type UIDOwnerValue struct {
	// IIF is the allowed ingress interface index when IIFMatch is set.
	IIF  uint32
	Rule uint32
}
