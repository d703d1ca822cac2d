// Package plog provides the leveled logging capability injected into the
// components that want one. The hosting service captures stdout directly, so
// the default output is plain timestamped lines rather than a file or a
// collector.
package plog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is a logging severity level.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR", "ERR":
		return LevelError, nil
	case "OFF", "NONE":
		return LevelOff, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Logger is the capability handed to components that log. Components hold
// the interface, never the concrete type, so tests can swap in a silent one.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Log is the standard Logger implementation. Level changes are atomic, so
// one Log may be shared across goroutines.
type Log struct {
	level atomic.Int32

	mu  sync.Mutex
	out io.Writer
}

// New creates a Log writing to stdout at LevelInfo.
func New() *Log {
	l := &Log{out: os.Stdout}
	l.level.Store(int32(LevelInfo))
	return l
}

// SetLevel changes the minimum emitted level.
func (l *Log) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// SetOutput redirects log output.
func (l *Log) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.out = w
	l.mu.Unlock()
}

func (l *Log) Debugf(format string, args ...any) { l.emit(LevelDebug, format, args...) }
func (l *Log) Infof(format string, args ...any)  { l.emit(LevelInfo, format, args...) }
func (l *Log) Warnf(format string, args ...any)  { l.emit(LevelWarn, format, args...) }
func (l *Log) Errorf(format string, args ...any) { l.emit(LevelError, format, args...) }

func (l *Log) emit(level Level, format string, args ...any) {
	if level < Level(l.level.Load()) {
		return
	}
	line := fmt.Sprintf("%s %-5s %s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, fmt.Sprintf(format, args...))
	l.mu.Lock()
	_, _ = io.WriteString(l.out, line)
	l.mu.Unlock()
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debugf(string, ...any) {}
func (Nop) Infof(string, ...any)  {}
func (Nop) Warnf(string, ...any)  {}
func (Nop) Errorf(string, ...any) {}
