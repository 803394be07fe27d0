package logger

import "context"

type contextKey struct{}

// WithCommandID tags the context with the ID of the command being run,
// so every log line of one REPL command can be correlated.
func WithCommandID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// CommandIDFromContext extracts the command ID from context.
func CommandIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}
