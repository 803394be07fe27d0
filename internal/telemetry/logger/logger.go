// Package logger provides structured logging for tcpctl.
//
// It wraps log/slog behind a small Logger interface, with text or JSON
// output, a process-wide level that can change at runtime, and
// redaction of credentials that line protocols carry in clear text.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the application logger interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	// WithContext binds ctx to the returned logger. Records it emits
	// carry the command ID stored in ctx, if any.
	WithContext(ctx context.Context) Logger
}

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds logger configuration.
type Config struct {
	Level  string    // debug, info, warn or error
	Format string    // text or json, text when empty
	Output io.Writer // os.Stderr when nil
}

// DefaultConfig returns the CLI defaults: warnings and above, as text on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "warn",
		Format: FormatText,
		Output: os.Stderr,
	}
}

// level is shared by every logger, so a reload affects loggers already
// handed out to the manager, the watcher and the shutdown handler.
var level = new(slog.LevelVar)

var levelNames = map[slog.Level]string{
	slog.LevelDebug: "debug",
	slog.LevelInfo:  "info",
	slog.LevelWarn:  "warn",
	slog.LevelError: "error",
}

// New creates a logger and sets the process-wide level from cfg.
func New(cfg Config) (Logger, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", FormatText:
		h = slog.NewTextHandler(out, opts)
	case FormatJSON:
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	SetLevel(cfg.Level)
	return &slogLogger{l: slog.New(commandHandler{h}), ctx: context.Background()}, nil
}

// SetLevel changes the level of every logger. Unknown names select info.
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

// GetLevel returns the current level name.
func GetLevel() string {
	if name, ok := levelNames[level.Level()]; ok {
		return name
	}
	return "info"
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// commandHandler adds the command_id attribute of the record's context.
type commandHandler struct {
	slog.Handler
}

func (h commandHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := CommandIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("command_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h commandHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return commandHandler{h.Handler.WithAttrs(attrs)}
}

func (h commandHandler) WithGroup(name string) slog.Handler {
	return commandHandler{h.Handler.WithGroup(name)}
}

type slogLogger struct {
	l   *slog.Logger
	ctx context.Context
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.DebugContext(s.ctx, msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.InfoContext(s.ctx, msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.WarnContext(s.ctx, msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.ErrorContext(s.ctx, msg, args...) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...), ctx: s.ctx}
}

func (s *slogLogger) WithContext(ctx context.Context) Logger {
	return &slogLogger{l: s.l, ctx: ctx}
}

// std is the process default. It starts as DefaultConfig and is
// replaced once the configuration is loaded.
var std atomic.Pointer[Logger]

func init() {
	l, _ := New(DefaultConfig())
	std.Store(&l)
}

// SetDefault replaces the process default logger.
func SetDefault(l Logger) {
	if l != nil {
		std.Store(&l)
	}
}

// Default returns the process default logger.
func Default() Logger {
	return *std.Load()
}
