// Package logger wraps log/slog behind a package-level instance so call
// sites across the module never need to carry (or nil-check) a logger
// value. Init should be called once, early in main, before any other
// package logs.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Log is the shared logger. It is safe to use before Init: it defaults
// to an info-level text handler writing to stdout.
var Log = slog.New(slog.NewTextHandler(os.Stdout, nil))

// Init configures Log from the KVNODE_LOG_LEVEL environment variable
// (one of debug, info, warn, error; defaults to info).
func Init() {
	level := parseLevel(os.Getenv("KVNODE_LOG_LEVEL"))
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(Log)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func Debug(msg string, args ...any) { Log.Debug(msg, args...) }
func Info(msg string, args ...any)  { Log.Info(msg, args...) }
func Warn(msg string, args ...any)  { Log.Warn(msg, args...) }
func Error(msg string, args ...any) { Log.Error(msg, args...) }
