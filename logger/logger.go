// Package logger provides the five-severity trace sink the bus state
// machine and the ebusd command call into. Implementations are independent of
// the core protocol engine, per the handler's observer design.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// Level is one of the five trace severities the handler emits.
type Level int

const (
	// Trace is the most verbose level: per-byte receive/send activity.
	Trace Level = iota
	// Debug covers per-cycle state transitions.
	Debug
	// Info covers completed telegrams and arbitration outcomes.
	Info
	// Warn covers recoverable bus Warning events (retries, arbitration
	// loss, byte-diff).
	Warn
	// Error covers terminal Kind failures and device errors.
	Error
)

func (l Level) String() string {
	switch l {
	case Trace:
		return "TRACE"
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "?????"
	}
}

// Logger is the sink interface the handler and the ebusd command log
// through. All methods must be safe to call from the driver's worker
// goroutine without blocking.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ColorLogger writes leveled, colorized lines to w (os.Stderr by
// default), in the style of this codebase's fatih/color-based CLI output.
// Below MinLevel, calls are no-ops.
type ColorLogger struct {
	w        io.Writer
	MinLevel Level

	trace, debug, info, warn, err *color.Color
}

// NewColorLogger returns a ColorLogger writing to os.Stderr at MinLevel
// Trace (everything).
func NewColorLogger() *ColorLogger {
	return &ColorLogger{
		w:        os.Stderr,
		MinLevel: Trace,
		trace:    color.New(color.FgHiBlack),
		debug:    color.New(color.FgCyan),
		info:     color.New(color.FgGreen),
		warn:     color.New(color.FgYellow),
		err:      color.New(color.FgRed, color.Bold),
	}
}

func (l *ColorLogger) emit(lvl Level, c *color.Color, format string, args ...interface{}) {
	if lvl < l.MinLevel {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s [%s] %s\n", time.Now().Format("15:04:05.000"), lvl, msg)
	c.Fprint(l.w, line)
}

// Tracef logs at Trace severity.
func (l *ColorLogger) Tracef(format string, args ...interface{}) { l.emit(Trace, l.trace, format, args...) }

// Debugf logs at Debug severity.
func (l *ColorLogger) Debugf(format string, args ...interface{}) { l.emit(Debug, l.debug, format, args...) }

// Infof logs at Info severity.
func (l *ColorLogger) Infof(format string, args ...interface{}) { l.emit(Info, l.info, format, args...) }

// Warnf logs at Warn severity.
func (l *ColorLogger) Warnf(format string, args ...interface{}) { l.emit(Warn, l.warn, format, args...) }

// Errorf logs at Error severity.
func (l *ColorLogger) Errorf(format string, args ...interface{}) { l.emit(Error, l.err, format, args...) }

// Nop is a Logger that discards everything; the default when no logger is
// registered.
type Nop struct{}

func (Nop) Tracef(string, ...interface{}) {}
func (Nop) Debugf(string, ...interface{}) {}
func (Nop) Infof(string, ...interface{})  {}
func (Nop) Warnf(string, ...interface{})  {}
func (Nop) Errorf(string, ...interface{}) {}
