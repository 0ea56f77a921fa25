// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"grimm.is/uidpolicy/internal/logging"
	"grimm.is/uidpolicy/internal/platform"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate validates the entire configuration. It expects ApplyDefaults to
// have run.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.PlatformTier != TierAuto {
		if _, err := platform.ParseTier(c.PlatformTier); err != nil {
			add("platform_tier", "%v", err)
		}
	}
	if !filepath.IsAbs(c.BPFRoot) {
		add("bpf_root", "must be an absolute path, got %q", c.BPFRoot)
	}

	if l := c.Loader; l != nil {
		switch l.Backend {
		case BackendSystemd, BackendExec:
		default:
			add("loader.backend", "unknown backend %q (want %s or %s)", l.Backend, BackendSystemd, BackendExec)
		}
		if strings.TrimSpace(l.Unit) == "" {
			add("loader.unit", "must not be empty")
		}
		if !filepath.IsAbs(l.DoneMarker) {
			add("loader.done_marker", "must be an absolute path, got %q", l.DoneMarker)
		}
		if d, err := c.PollUnit(); err != nil {
			add("loader.poll_unit", "%v", err)
		} else if d <= 0 {
			add("loader.poll_unit", "must be positive, got %s", d)
		}
	}

	if a := c.API; a != nil {
		if _, _, err := net.SplitHostPort(a.Listen); err != nil {
			add("api.listen", "%v", err)
		}
	}

	if lg := c.Logging; lg != nil {
		if _, ok := logging.ParseLevel(lg.Level); !ok {
			add("logging.level", "unknown level %q", lg.Level)
		}
		if s := lg.Syslog; s != nil && s.Enabled {
			if s.Host == "" {
				add("logging.syslog.host", "required when syslog is enabled")
			}
			if s.Protocol != "udp" && s.Protocol != "tcp" {
				add("logging.syslog.protocol", "unknown protocol %q", s.Protocol)
			}
			if s.Port <= 0 || s.Port > 65535 {
				add("logging.syslog.port", "out of range: %d", s.Port)
			}
		}
	}

	return errs
}
