// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured, component-scoped logger used across
// uidpolicy. It is a thin key/value facade over zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a level name into a Level. Unknown names map to LevelInfo
// and report false.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug, true
	case "info", "":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// Config controls logger construction.
type Config struct {
	Level Level
	// Output defaults to stderr.
	Output io.Writer
	// JSON forces JSON lines even when Output is a terminal.
	JSON bool
	// Syslog optionally mirrors every entry to a remote syslog server.
	Syslog *SyslogConfig
}

// DefaultConfig returns an info-level stderr configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Logger is a leveled key/value logger.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger from cfg. A syslog sink that cannot be dialed is
// reported on the primary output and otherwise ignored.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var primary io.Writer = out
	if !cfg.JSON && isTerminal(out) {
		primary = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	w := primary
	var syslogErr error
	if cfg.Syslog != nil && cfg.Syslog.Enabled {
		sink, err := syslogSink(*cfg.Syslog)
		if err != nil {
			syslogErr = err
		} else {
			w = zerolog.MultiLevelWriter(primary, sink)
		}
	}

	l := &Logger{
		zl: zerolog.New(w).Level(cfg.Level.zerolog()).With().Timestamp().Logger(),
	}
	if syslogErr != nil {
		l.Warn("Syslog sink disabled", "error", syslogErr)
	}
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// WithComponent returns a child logger tagged with component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{zl: l.zl.With().Fields(kv).Logger()}
}

func (l *Logger) Debug(msg string, kv ...any) { l.log(l.zl.Debug(), msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.log(l.zl.Info(), msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.log(l.zl.Warn(), msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.log(l.zl.Error(), msg, kv) }

func (l *Logger) log(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	if len(kv) > 0 {
		ev = ev.Fields(kv)
	}
	ev.Msg(msg)
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(DefaultConfig())
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// WithComponent returns a component logger derived from the default logger.
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}

func Debug(msg string, kv ...any) { Default().Debug(msg, kv...) }
func Info(msg string, kv ...any)  { Default().Info(msg, kv...) }
func Warn(msg string, kv ...any)  { Default().Warn(msg, kv...) }
func Error(msg string, kv ...any) { Default().Error(msg, kv...) }
