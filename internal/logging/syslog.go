// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !windows && !plan9

package logging

import (
	"fmt"
	"io"
	"log/syslog"
	"net"
	"strconv"

	"github.com/rs/zerolog"
)

// SyslogConfig configures the remote syslog sink.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string // udp or tcp
	Tag      string
	Facility int // syslog facility code, 1 = user
}

// DefaultSyslogConfig returns a disabled sink with standard defaults.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      "uidpolicy",
		Facility: 1,
	}
}

// NewSyslogWriter dials the configured syslog server.
func NewSyslogWriter(cfg SyslogConfig) (*syslog.Writer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = "uidpolicy"
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	priority := syslog.Priority(cfg.Facility<<3) | syslog.LOG_INFO
	w, err := syslog.Dial(cfg.Protocol, addr, priority, cfg.Tag)
	if err != nil {
		return nil, fmt.Errorf("dial syslog %s/%s: %w", cfg.Protocol, addr, err)
	}
	return w, nil
}

func syslogSink(cfg SyslogConfig) (io.Writer, error) {
	w, err := NewSyslogWriter(cfg)
	if err != nil {
		return nil, err
	}
	return zerolog.SyslogLevelWriter(w), nil
}
