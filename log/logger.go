package log

import "context"

// Logger is the structured logging interface handed to the composition
// root. Packages below the root log through the package-level zerolog
// logger directly; this interface exists so the server wiring can carry a
// configured logger without binding to zerolog types.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]any)
	Info(ctx context.Context, msg string, fields ...map[string]any)
	Warn(ctx context.Context, msg string, fields ...map[string]any)
	Error(ctx context.Context, msg string, err error, fields ...map[string]any)
	Fatal(ctx context.Context, msg string, err error, fields ...map[string]any)
	With(fields map[string]any) Logger
}
