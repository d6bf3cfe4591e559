package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects and tunes a Logger backend.
type Options struct {
	Backend string // "zap" (default) or "slog"
	Level   string // debug, info, warn, error
	Format  string // console or json
	Output  io.Writer
}

// New builds a Logger for the given options.
func New(opts Options) (Logger, error) {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	switch strings.ToLower(opts.Backend) {
	case "", "zap":
		return NewZapLogger(opts)
	case "slog":
		return newSlogFromOptions(opts), nil
	default:
		return nil, fmt.Errorf("unknown logger backend %q", opts.Backend)
	}
}

// ZapLogger adapts *zap.SugaredLogger to Logger.
type ZapLogger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

func NewZapLogger(opts Options) (*ZapLogger, error) {
	level, err := zapcore.ParseLevel(defaultString(opts.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}

	var enc zapcore.Encoder
	switch strings.ToLower(defaultString(opts.Format, "console")) {
	case "json":
		encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), level)
	return FromZap(zap.New(core)), nil
}

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) *ZapLogger {
	return &ZapLogger{base: l, sugar: l.Sugar()}
}

func (z *ZapLogger) Debug(_ context.Context, msg string, args ...any) {
	z.sugar.Debugw(msg, args...)
}

func (z *ZapLogger) Info(_ context.Context, msg string, args ...any) {
	z.sugar.Infow(msg, args...)
}

func (z *ZapLogger) Warn(_ context.Context, msg string, args ...any) {
	z.sugar.Warnw(msg, args...)
}

func (z *ZapLogger) Error(_ context.Context, msg string, args ...any) {
	z.sugar.Errorw(msg, args...)
}

func (z *ZapLogger) With(args ...any) Logger {
	s := z.sugar.With(args...)
	return &ZapLogger{base: s.Desugar(), sugar: s}
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.base.Sync()
}

func newSlogFromOptions(opts Options) *SlogLogger {
	var lvl slog.Level
	switch strings.ToLower(opts.Level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	ho := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(opts.Output, ho)
	} else {
		h = slog.NewTextHandler(opts.Output, ho)
	}
	return NewSlogLogger(slog.New(h))
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
