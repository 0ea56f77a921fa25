// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

// Environment variables overriding file settings.
const (
	EnvPlatformTier = "UIDPOLICY_PLATFORM_TIER"
	EnvBPFRoot      = "UIDPOLICY_BPF_ROOT"
	EnvLogLevel     = "UIDPOLICY_LOG_LEVEL"
)

// ApplyEnv overrides cfg fields from getenv. Empty variables are ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvPlatformTier); v != "" {
		cfg.PlatformTier = v
	}
	if v := getenv(EnvBPFRoot); v != "" {
		cfg.BPFRoot = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		if cfg.Logging == nil {
			cfg.Logging = &LoggingConfig{}
		}
		cfg.Logging.Level = v
	}
}
