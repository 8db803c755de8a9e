package clog

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

type loggerImpl struct {
	handler        slog.Handler
	level          *slog.LevelVar
	namespaceParts []string
	contextFields  []ContextField
}

func newLogger(config *Config, o *options) (Logger, error) {
	w := o.writer
	if w == nil {
		var err error
		if w, err = openOutput(config.Output); err != nil {
			return nil, err
		}
	}

	lvl, _ := ParseLevel(config.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(lvl.slogLevel())

	return &loggerImpl{
		handler:        newHandler(w, config, levelVar),
		level:          levelVar,
		namespaceParts: o.namespaceParts,
		contextFields:  o.contextFields,
	}, nil
}

func (l *loggerImpl) Debug(msg string, fields ...Field) { l.log(nil, DebugLevel, msg, fields) }
func (l *loggerImpl) Info(msg string, fields ...Field)  { l.log(nil, InfoLevel, msg, fields) }
func (l *loggerImpl) Warn(msg string, fields ...Field)  { l.log(nil, WarnLevel, msg, fields) }
func (l *loggerImpl) Error(msg string, fields ...Field) { l.log(nil, ErrorLevel, msg, fields) }
func (l *loggerImpl) Fatal(msg string, fields ...Field) {
	l.log(nil, FatalLevel, msg, fields)
	os.Exit(1)
}

func (l *loggerImpl) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, DebugLevel, msg, fields)
}
func (l *loggerImpl) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, InfoLevel, msg, fields)
}
func (l *loggerImpl) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, WarnLevel, msg, fields)
}
func (l *loggerImpl) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, ErrorLevel, msg, fields)
}
func (l *loggerImpl) FatalContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, FatalLevel, msg, fields)
	os.Exit(1)
}

func (l *loggerImpl) With(fields ...Field) Logger {
	args := make([]slog.Attr, len(fields))
	copy(args, fields)
	clone := *l
	clone.handler = l.handler.WithAttrs(args)
	return &clone
}

func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	clone := *l
	clone.namespaceParts = append(append([]string{}, l.namespaceParts...), parts...)
	return &clone
}

func (l *loggerImpl) SetLevel(level Level) error {
	l.level.Set(level.slogLevel())
	return nil
}

func (l *loggerImpl) log(ctx context.Context, level Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	sl := level.slogLevel()
	if !l.handler.Enabled(ctx, sl) {
		return
	}

	// 跳过 runtime.Callers、log 和公开方法本身
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), sl, msg, pcs[0])

	if len(l.namespaceParts) > 0 {
		r.AddAttrs(slog.String("namespace", strings.Join(l.namespaceParts, ".")))
	}
	for _, cf := range l.contextFields {
		if v := ctx.Value(cf.Key); v != nil {
			r.AddAttrs(slog.Any(cf.FieldName, v))
		}
	}
	r.AddAttrs(fields...)

	_ = l.handler.Handle(ctx, r)
}
