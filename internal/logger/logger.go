// Package logger holds the process-wide slog logger behind printf-style
// helpers, plus a separate audit writer for decision dumps.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Format selects the record encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	level   slog.LevelVar
	current atomic.Pointer[slog.Logger]

	// guards out and format while the logger is rebuilt
	buildMu sync.Mutex
	out     io.Writer = os.Stdout
	format  Format    = FormatText
)

func init() {
	rebuild()
}

func rebuild() {
	opts := &slog.HandlerOptions{Level: &level}
	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	current.Store(slog.New(h))
}

// SetOutput redirects later records to w; nil means stdout. Loggers already
// returned by With keep their old writer.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	buildMu.Lock()
	out = w
	rebuild()
	buildMu.Unlock()
}

// SetFormat switches between text and json records.
func SetFormat(f string) error {
	parsed, err := ParseFormat(f)
	if err != nil {
		return err
	}
	buildMu.Lock()
	format = parsed
	rebuild()
	buildMu.Unlock()
	return nil
}

// ParseFormat accepts text or json; empty means text.
func ParseFormat(f string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(f))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown log format %q", f)
}

// ParseLevel maps debug|info|warn|warning|error to a slog level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// SetLevel falls back to info for unknown names.
func SetLevel(s string) {
	lv, _ := ParseLevel(s)
	level.Set(lv)
}

// With returns a structured logger carrying the given key/value pairs.
// Used where the context (symbol, stage, tick) matters more than the message.
func With(args ...any) *slog.Logger {
	return current.Load().With(args...)
}

// logf skips formatting when the level is off.
func logf(lv slog.Level, format string, v ...any) {
	l := current.Load()
	ctx := context.Background()
	if !l.Enabled(ctx, lv) {
		return
	}
	l.Log(ctx, lv, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) { logf(slog.LevelDebug, format, v...) }
func Infof(format string, v ...any)  { logf(slog.LevelInfo, format, v...) }
func Warnf(format string, v ...any)  { logf(slog.LevelWarn, format, v...) }
func Errorf(format string, v ...any) { logf(slog.LevelError, format, v...) }

// InfoBlock logs a multi-line block one record per non-empty line.
func InfoBlock(block string) {
	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		if line = strings.TrimRight(line, " \t\r"); line != "" {
			logf(slog.LevelInfo, "%s", line)
		}
	}
}
