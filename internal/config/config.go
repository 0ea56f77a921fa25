// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the uidpolicy configuration from HCL or JSON.
package config

import (
	"time"

	"grimm.is/uidpolicy/internal/logging"
	"grimm.is/uidpolicy/internal/netmaps"
	"grimm.is/uidpolicy/internal/platform"
)

// CurrentSchemaVersion is the schema version written by this build.
const CurrentSchemaVersion = "1.0"

// TierAuto selects the platform tier from the running kernel release.
const TierAuto = "auto"

// Loader backends.
const (
	BackendSystemd = "systemd"
	BackendExec    = "exec"
)

// Config is the top-level uidpolicy configuration.
type Config struct {
	// @default: "1.0"
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`
	// Platform tier name (PreS, S, T, U, V, W) or "auto". auto derives the
	// tier from the kernel release, which only fits generic Linux hosts;
	// Android kernels detect as S.
	// @default: "auto"
	PlatformTier string `hcl:"platform_tier,optional" json:"platform_tier,omitempty"`
	// Directory holding the pinned shared maps.
	// @default: "/sys/fs/bpf/netd_shared"
	BPFRoot string `hcl:"bpf_root,optional" json:"bpf_root,omitempty"`

	Loader  *LoaderConfig  `hcl:"loader,block" json:"loader,omitempty"`
	API     *APIConfig     `hcl:"api,block" json:"api,omitempty"`
	Logging *LoggingConfig `hcl:"logging,block" json:"logging,omitempty"`
}

// LoaderConfig describes the external map loader used on tier S.
type LoaderConfig struct {
	// @enum: systemd, exec
	Backend string `hcl:"backend,optional" json:"backend,omitempty"`
	Unit    string `hcl:"unit,optional" json:"unit,omitempty"`
	// Defaults to the done marker under bpf_root.
	DoneMarker string `hcl:"done_marker,optional" json:"done_marker,omitempty"`
	// Time unit of the 5/10/20/40/60 backoff.
	// @default: "1s"
	PollUnit string `hcl:"poll_unit,optional" json:"poll_unit,omitempty"`
}

// APIConfig configures the query API.
type APIConfig struct {
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string        `hcl:"level,optional" json:"level,omitempty"`
	JSON   bool          `hcl:"json,optional" json:"json,omitempty"`
	Syslog *SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty"`
}

// SyslogConfig mirrors logs to a remote syslog server.
type SyslogConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled,omitempty"`
	Host     string `hcl:"host,optional" json:"host,omitempty"`
	Port     int    `hcl:"port,optional" json:"port,omitempty"`
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty"`
	Tag      string `hcl:"tag,optional" json:"tag,omitempty"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.PlatformTier == "" {
		c.PlatformTier = TierAuto
	}
	if c.BPFRoot == "" {
		c.BPFRoot = netmaps.DefaultRoot
	}

	if c.Loader == nil {
		c.Loader = &LoaderConfig{}
	}
	if c.Loader.Backend == "" {
		c.Loader.Backend = BackendSystemd
	}
	if c.Loader.Unit == "" {
		c.Loader.Unit = "netbpfload.service"
	}
	if c.Loader.DoneMarker == "" {
		c.Loader.DoneMarker = netmaps.PathsUnder(c.BPFRoot).DoneMarker
	}
	if c.Loader.PollUnit == "" {
		c.Loader.PollUnit = "1s"
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Listen == "" {
		c.API.Listen = "127.0.0.1:9053"
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Syslog != nil {
		def := logging.DefaultSyslogConfig()
		if c.Logging.Syslog.Port == 0 {
			c.Logging.Syslog.Port = def.Port
		}
		if c.Logging.Syslog.Protocol == "" {
			c.Logging.Syslog.Protocol = def.Protocol
		}
		if c.Logging.Syslog.Tag == "" {
			c.Logging.Syslog.Tag = def.Tag
		}
	}
}

// Paths returns the pinned map paths, with the configured done marker.
func (c *Config) Paths() netmaps.Paths {
	p := netmaps.PathsUnder(c.BPFRoot)
	if c.Loader != nil && c.Loader.DoneMarker != "" {
		p.DoneMarker = c.Loader.DoneMarker
	}
	return p
}

// PollUnit returns the parsed backoff unit.
func (c *Config) PollUnit() (time.Duration, error) {
	if c.Loader == nil || c.Loader.PollUnit == "" {
		return time.Second, nil
	}
	return time.ParseDuration(c.Loader.PollUnit)
}

// Tier returns the configured tier. auto reports false.
func (c *Config) Tier() (platform.Tier, bool, error) {
	if c.PlatformTier == "" || c.PlatformTier == TierAuto {
		return platform.TierPreS, false, nil
	}
	t, err := platform.ParseTier(c.PlatformTier)
	if err != nil {
		return platform.TierPreS, false, err
	}
	return t, true, nil
}

// LoggerConfig converts the logging block.
func (c *Config) LoggerConfig() logging.Config {
	lc := logging.DefaultConfig()
	if c.Logging == nil {
		return lc
	}
	lc.Level, _ = logging.ParseLevel(c.Logging.Level)
	lc.JSON = c.Logging.JSON
	if s := c.Logging.Syslog; s != nil && s.Enabled {
		sc := logging.DefaultSyslogConfig()
		sc.Enabled = true
		sc.Host = s.Host
		sc.Port = s.Port
		sc.Protocol = s.Protocol
		sc.Tag = s.Tag
		lc.Syslog = &sc
	}
	return lc
}
