package utils

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the engine's logging surface. The *Ctx variants pick up the
// long-running-operation fields carried by the context (see WithOp), so a
// reindex worker logs its operation name and run id without threading
// them through every call.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	DebugCtx(ctx context.Context, msg string, args ...any)
	InfoCtx(ctx context.Context, msg string, args ...any)
	WarnCtx(ctx context.Context, msg string, args ...any)
	ErrorCtx(ctx context.Context, msg string, args ...any)
}

type opKey struct{}

type opInfo struct {
	op string
	id string
}

// WithOp tags the context with a long-running operation and its run id;
// every *Ctx log line below it reports both. The run id is the same one
// the status callback sees, which ties log lines to status events.
func WithOp(ctx context.Context, op, id string) context.Context {
	return context.WithValue(ctx, opKey{}, opInfo{op: op, id: id})
}

func opArgs(ctx context.Context, args []any) []any {
	if info, ok := ctx.Value(opKey{}).(opInfo); ok {
		args = append(args, "op", info.op, "op_id", info.id)
	}
	return args
}

type DefaultLogger struct {
	logger *slog.Logger
}

func NewDefaultLogger(level slog.Level) *DefaultLogger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	return &DefaultLogger{logger: logger}
}

// Named returns a copy scoped to one engine component; the component
// shows up as a field on every line.
func (d *DefaultLogger) Named(component string) *DefaultLogger {
	return &DefaultLogger{logger: d.logger.With("component", component)}
}

func (d *DefaultLogger) Debug(msg string, args ...any) { d.logger.Debug(msg, args...) }
func (d *DefaultLogger) Info(msg string, args ...any)  { d.logger.Info(msg, args...) }
func (d *DefaultLogger) Warn(msg string, args ...any)  { d.logger.Warn(msg, args...) }
func (d *DefaultLogger) Error(msg string, args ...any) { d.logger.Error(msg, args...) }

func (d *DefaultLogger) DebugCtx(ctx context.Context, msg string, args ...any) {
	d.logger.Debug(msg, opArgs(ctx, args)...)
}

func (d *DefaultLogger) InfoCtx(ctx context.Context, msg string, args ...any) {
	d.logger.Info(msg, opArgs(ctx, args)...)
}

func (d *DefaultLogger) WarnCtx(ctx context.Context, msg string, args ...any) {
	d.logger.Warn(msg, opArgs(ctx, args)...)
}

func (d *DefaultLogger) ErrorCtx(ctx context.Context, msg string, args ...any) {
	d.logger.Error(msg, opArgs(ctx, args)...)
}
