// Package rlog is a thin structured-logging wrapper around log/slog, in
// the shape of go-ethereum's log package: key-value call sites
// (Trace/Debug/Info/Warn/Error("msg", "k1", v1, ...)) plus an extra Trace
// level below slog's Debug, and optional rotation to disk.
package rlog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace sits one tier below slog.LevelDebug, mirroring geth's five-level
// scheme (Trace, Debug, Info, Warn, Error).
const LevelTrace = slog.Level(-8)

var root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Logger is the handle every component logs through.
type Logger struct {
	inner *slog.Logger
}

// New builds a Logger writing to stderr (or a rotated file, when path is
// non-empty) at the given level. level is one of "trace", "debug", "info",
// "warn", "error".
func New(level, rotatePath string) *Logger {
	var w io.Writer = os.Stderr
	if rotatePath != "" {
		w = &lumberjack.Logger{
			Filename:   rotatePath,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	l := &Logger{inner: slog.New(h)}
	root = l.inner
	return l
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) Trace(msg string, args ...any) { l.inner.Log(context.Background(), LevelTrace, msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }

// With returns a Logger with the given key-value pairs attached to every
// subsequent call, the way rule/transaction identifiers get threaded through
// the pipeline's log lines.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{inner: l.inner.With(args...)}
}

// package-level convenience functions log through the most recently
// constructed Logger (or the stderr default), matching the package-level
// log.Trace/log.Info calls used throughout the teacher's preconf package.
func Trace(msg string, args ...any) { root.Log(context.Background(), LevelTrace, msg, args...) }
func Debug(msg string, args ...any) { root.Debug(msg, args...) }
func Info(msg string, args ...any)  { root.Info(msg, args...) }
func Warn(msg string, args ...any)  { root.Warn(msg, args...) }
func Error(msg string, args ...any) { root.Error(msg, args...) }
