// Package logx configures wsp-sniper's structured logging: a readable console
// on stderr and, optionally, a rotating JSON file that keeps debug events.
package logx

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const consoleTimeFormat = "15:04:05.000"

// Config selects the sinks.
type Config struct {
	// Level is the console level. The file always keeps debug and above.
	Level string
	// File is the JSON log path. Empty disables the file sink.
	File string
	// Console overrides stderr, mainly for tests.
	Console io.Writer
	// NoColor disables ANSI colors on the console.
	NoColor bool
}

// Logger owns the sinks of a process-wide zerolog.Logger.
type Logger struct {
	zerolog.Logger
	file *lumberjack.Logger
}

// New builds the logger. The file sink rotates at 10 MB, keeps 5 days and
// compresses old files.
func New(cfg Config) *Logger {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000000Z07:00"
	zerolog.ErrorFieldName = "err"

	consoleLevel := ParseLevel(cfg.Level, zerolog.InfoLevel)
	out := cfg.Console
	if out == nil {
		out = os.Stderr
	}

	writers := []io.Writer{
		&levelFilter{w: newConsoleWriter(out, cfg.NoColor), min: consoleLevel},
	}
	rootLevel := consoleLevel

	l := &Logger{}
	if path := strings.TrimSpace(cfg.File); path != "" {
		_ = os.MkdirAll(filepath.Dir(path), 0o755)
		l.file = &lumberjack.Logger{
			Filename: path,
			MaxSize:  10,
			MaxAge:   5,
			Compress: true,
		}
		writers = append(writers, &levelFilter{w: l.file, min: zerolog.DebugLevel})
		if rootLevel > zerolog.DebugLevel {
			rootLevel = zerolog.DebugLevel
		}
	}

	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(rootLevel).
		With().Timestamp().Logger()
	return l
}

// Close flushes and closes the file sink.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func newConsoleWriter(w io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: noColor}
}

// levelFilter drops events below min for one sink of a MultiLevelWriter.
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f *levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f *levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}

// ParseLevel maps a level name to a zerolog level, def when unknown.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}
