// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build windows || plan9

package logging

import (
	"fmt"
	"io"
)

// SyslogConfig configures the remote syslog sink.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string
	Tag      string
	Facility int
}

// DefaultSyslogConfig returns a disabled sink with standard defaults.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{Port: 514, Protocol: "udp", Tag: "uidpolicy", Facility: 1}
}

func syslogSink(SyslogConfig) (io.Writer, error) {
	return nil, fmt.Errorf("syslog is not supported on this platform")
}
