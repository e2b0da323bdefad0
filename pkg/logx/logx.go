// Package logx provides leveled logging plus the section banners dockhand
// prints at every pipeline state transition.
package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	debugEnabled bool
	debugMutex   sync.RWMutex
)

//nolint:gochecknoinits // Required for env var initialization
func init() {
	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugEnabled = true
	}
}

// SetDebug enables or disables debug logging globally.
func SetDebug(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugEnabled
}

// Logger writes timestamped, leveled lines to stderr. Section banners go to
// stdout so console narration and diagnostics stay separable.
type Logger struct {
	name   string
	logger *log.Logger
	out    *log.Logger
}

func NewLogger(name string) *Logger {
	return &Logger{
		name:   name,
		logger: log.New(os.Stderr, "", 0), // stderr for CLI compatibility
		out:    log.New(os.Stdout, "", 0),
	}
}

// NewLoggerWithOutput creates a logger with explicit sinks for leveled
// lines and banners.
func NewLoggerWithOutput(name string, errSink, outSink io.Writer) *Logger {
	return &Logger{
		name:   name,
		logger: log.New(errSink, "", 0),
		out:    log.New(outSink, "", 0),
	}
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s: %s", timestamp, l.name, level, message))
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Section prints a banner marking a pipeline state transition.
func (l *Logger) Section(format string, args ...any) {
	l.out.Printf("\n=== %s ===", fmt.Sprintf(format, args...))
}

// Raw prints text to stdout verbatim, used for tailed diagnostic output.
func (l *Logger) Raw(text string) {
	l.out.Print(text)
}

func (l *Logger) Name() string {
	return l.name
}

// WithName returns a logger sharing the same sinks under a different name.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{name: name, logger: l.logger, out: l.out}
}
