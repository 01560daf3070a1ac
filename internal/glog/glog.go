// Package glog provides Glint's ambient logging, a slog backend with the
// extra level names rclone itself introduced when it moved fs.Errorf and
// friends onto log/slog (see fs/log's NOTICE/CRITICAL/ALERT/EMERGENCY
// levels, between and above the stdlib's Info/Warn/Error).
package glog

import (
	"context"
	"log/slog"
	"os"
)

// Extra severities layered onto the stdlib's four slog levels, matching the
// spacing rclone uses so custom levels sort correctly alongside the
// built-ins (each stdlib level reserves a band of 4).
const (
	LevelNotice    = slog.LevelInfo + 2
	LevelCritical  = slog.LevelError + 2
	LevelAlert     = slog.LevelError + 4
	LevelEmergency = slog.LevelError + 6
)

func levelToString(l slog.Level) string {
	switch l {
	case LevelNotice:
		return "NOTICE"
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case slog.LevelWarn:
		return "WARNING"
	case slog.LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	case LevelAlert:
		return "ALERT"
	case LevelEmergency:
		return "EMERGENCY"
	default:
		return l.String()
	}
}

// mapLevelNames rewrites the slog.LevelKey attribute emitted by the handler
// to use the upper-case name table above (NOTICE, WARNING, CRITICAL, ...)
// instead of slog's default level strings.
func mapLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	a.Value = slog.StringValue(levelToString(level))
	return a
}

// ParseLevel maps the config.general.log_level vocabulary from spec §6.4
// onto a slog.Leveler.
func ParseLevel(name string) slog.Level {
	switch name {
	case "trace":
		return slog.LevelDebug - 4
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the process-wide logger, writing text-formatted records to w
// (an *os.File such as os.Stderr) at the given minimum level.
func New(w *os.File, level slog.Level) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: mapLevelNames,
	})
	return slog.New(h)
}

// Default is the package-level logger consumers reach for when they haven't
// been handed one explicitly (components prefer an injected *slog.Logger;
// this exists for cmd/glint and test scaffolding only).
var Default = New(os.Stderr, slog.LevelInfo)

// Notice logs at the NOTICE level (between Info and Warn).
func Notice(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Log(ctx, LevelNotice, msg, args...)
}

// Critical logs above Error, for failures that trigger an orchestrator
// state transition (journal loss, snapshot incompatibility).
func Critical(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Log(ctx, LevelCritical, msg, args...)
}
